package screen

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/image/bmp"

	"github.com/ghalamif/HapticFlow/internal/ports"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// debugSaver writes ROI crops as BMP files for calibration. It saves one
// crop per detector plus one per hit, up to a fixed budget.
type debugSaver struct {
	dir   string
	limit int
	obs   ports.Observability

	mu    sync.Mutex
	saved int
	once  map[string]bool
}

func newDebugSaver(cfg DebugConfig, obs ports.Observability) *debugSaver {
	return &debugSaver{dir: cfg.Dir, limit: cfg.MaxSaves, obs: obs, once: make(map[string]bool)}
}

func (s *debugSaver) saveOnce(d Detector, frame image.Image, px image.Rectangle) {
	if s.dir == "" {
		return
	}
	s.mu.Lock()
	done := s.once[d.Name()]
	s.once[d.Name()] = true
	s.mu.Unlock()
	if !done {
		s.save(d.Kind(), d.Name(), frame, px)
	}
}

func (s *debugSaver) saveHit(d Detector, frame image.Image, px image.Rectangle) {
	if s.dir == "" {
		return
	}
	s.save(d.Kind()+"_hit", d.Name(), frame, px)
}

func (s *debugSaver) save(kind, name string, frame image.Image, px image.Rectangle) {
	s.mu.Lock()
	if s.limit > 0 && s.saved >= s.limit {
		s.mu.Unlock()
		return
	}
	s.saved++
	n := s.saved
	s.mu.Unlock()

	file := fmt.Sprintf("%s_%s_%d_%03d.bmp", kind, unsafeFileChars.ReplaceAllString(name, "_"), time.Now().UnixMilli(), n)
	path, err := SaveCrop(filepath.Join(s.dir, kind), file, frame, px)
	if err != nil {
		s.obs.LogError("screen_debug_save_failed", err, ports.Field{Key: "detector", Value: name})
		return
	}
	s.obs.LogInfo("screen_debug_saved", ports.Field{Key: "detector", Value: name}, ports.Field{Key: "path", Value: path})
}

// SaveCrop writes the px region of frame as a BMP into dir and returns the
// file path.
func SaveCrop(dir, file string, frame image.Image, px image.Rectangle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	crop := image.NewRGBA(image.Rect(0, 0, px.Dx(), px.Dy()))
	draw.Draw(crop, crop.Bounds(), frame, px.Min, draw.Src)

	path := filepath.Join(dir, file)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := bmp.Encode(f, crop); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	return path, f.Close()
}
