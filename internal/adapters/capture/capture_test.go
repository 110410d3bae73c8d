package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/bmp"
)

func writeImage(t *testing.T, path string, c color.Color, encode func(*os.File, image.Image) error) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()
}

func encodePNG(f *os.File, img image.Image) error { return png.Encode(f, img) }
func encodeBMP(f *os.File, img image.Image) error { return bmp.Encode(f, img) }

func TestFileReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	writeImage(t, path, color.RGBA{R: 255, A: 255}, encodePNG)

	src, err := Open(0, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	frame, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.Bounds().Dx() != 4 || frame.RGBAAt(1, 1).R != 255 {
		t.Fatalf("unexpected frame %v %v", frame.Bounds(), frame.RGBAAt(1, 1))
	}
	again, _ := src.Capture(context.Background())
	if again != frame {
		t.Fatalf("unchanged file must reuse the decoded frame")
	}

	writeImage(t, path, color.RGBA{G: 255, A: 255}, encodePNG)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	frame, err = src.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture after change: %v", err)
	}
	if px := frame.RGBAAt(0, 0); px.G != 255 || px.R != 0 {
		t.Fatalf("expected reloaded green frame, got %v", px)
	}
}

func TestFileDecodesBMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.bmp")
	writeImage(t, path, color.RGBA{B: 200, A: 255}, encodeBMP)
	frame, err := NewFile(path).Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if frame.RGBAAt(3, 1).B != 200 {
		t.Fatalf("unexpected pixel %v", frame.RGBAAt(3, 1))
	}
}

func TestFileErrors(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "missing.png")).Capture(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFile("x.png").Capture(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
