// Package screen turns captured frames into game events by watching
// calibrated regions of the screen: red damage vignettes and health bars.
package screen

import (
	"fmt"
	"image"
	"math"
)

// NormalizedRect is a region in frame-relative coordinates, all in [0,1].
type NormalizedRect struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// CalibrationError reports a region that cannot be mapped onto a frame.
type CalibrationError struct {
	Detector string
	Reason   string
}

func (e *CalibrationError) Error() string {
	if e.Detector == "" {
		return "screen calibration: " + e.Reason
	}
	return fmt.Sprintf("screen calibration %s: %s", e.Detector, e.Reason)
}

// Validate checks the rect independently of any frame size.
func (r NormalizedRect) Validate() error {
	for _, v := range []float64{r.X, r.Y, r.W, r.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &CalibrationError{Reason: "rect has non-finite coordinates"}
		}
	}
	if r.W <= 0 || r.H <= 0 {
		return &CalibrationError{Reason: "rect.w and rect.h must be > 0"}
	}
	if r.X < 0 || r.Y < 0 || r.X > 1 || r.Y > 1 {
		return &CalibrationError{Reason: "rect.x and rect.y must be in [0,1]"}
	}
	return nil
}

// ToPixels maps the rect onto a w×h frame. The origin is floored, the size
// rounded, and the result clamped to the frame with a 1px minimum.
func (r NormalizedRect) ToPixels(w, h int) (image.Rectangle, error) {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, &CalibrationError{Reason: fmt.Sprintf("empty frame %dx%d", w, h)}
	}
	if err := r.Validate(); err != nil {
		return image.Rectangle{}, err
	}

	// the epsilon keeps 0.29*100 from flooring to 28
	left := int(math.Floor(r.X*float64(w) + 1e-9))
	top := int(math.Floor(r.Y*float64(h) + 1e-9))
	width := int(math.Round(r.W * float64(w)))
	height := int(math.Round(r.H * float64(h)))

	left = clampInt(left, 0, w-1)
	top = clampInt(top, 0, h-1)
	width = clampInt(width, 1, w-left)
	height = clampInt(height, 1, h-top)

	return image.Rect(left, top, left+width, top+height), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
