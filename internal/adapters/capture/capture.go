// Package capture provides frame sources for the screen watcher.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
	_ "golang.org/x/image/bmp"

	"github.com/ghalamif/HapticFlow/internal/ports"
)

// Display grabs a full monitor on every call.
type Display struct {
	index int
}

func NewDisplay(index int) (*Display, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, errors.New("no active displays")
	}
	if index < 0 || index >= n {
		return nil, fmt.Errorf("display %d out of range (have %d)", index, n)
	}
	return &Display{index: index}, nil
}

func (d *Display) Bounds() image.Rectangle { return screenshot.GetDisplayBounds(d.index) }

func (d *Display) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureDisplay(d.index)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", d.index, err)
	}
	return img, nil
}

func (d *Display) Close() error { return nil }

// File serves a PNG or BMP from disk, decoding it again whenever its
// modification time changes. Used for calibration and replaying screenshots.
type File struct {
	path string

	mu    sync.Mutex
	mtime time.Time
	frame *image.RGBA
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Capture(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame != nil && fi.ModTime().Equal(f.mtime) {
		return f.frame, nil
	}
	img, err := decodeFile(f.path)
	if err != nil {
		return nil, err
	}
	f.frame = toRGBA(img)
	f.mtime = fi.ModTime()
	return f.frame, nil
}

func (f *File) Close() error { return nil }

func decodeFile(path string) (image.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Open returns a file source when path is set and a display source otherwise.
func Open(display int, path string) (ports.FrameSource, error) {
	if path != "" {
		return NewFile(path), nil
	}
	return NewDisplay(display)
}

var (
	_ ports.FrameSource = (*Display)(nil)
	_ ports.FrameSource = (*File)(nil)
)
