package screen

import (
	"fmt"
	"image"
)

// Orientation of a health bar. Vertical bars fill from the bottom.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// RGB is a calibration colour.
type RGB struct {
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
}

// ColorSampling classifies bar pixels by L1 distance to sampled colours.
type ColorSampling struct {
	Filled      RGB `yaml:"filled"`
	Empty       RGB `yaml:"empty"`
	ToleranceL1 int `yaml:"tolerance_l1"`
}

// ThresholdFallback classifies bar pixels by brightness or saturation when
// no colours were sampled.
type ThresholdFallback struct {
	Mode string  `yaml:"mode"` // brightness | saturation
	Min  float64 `yaml:"min"`
}

// BarSampler describes how to read one health bar.
type BarSampler struct {
	Color           *ColorSampling
	Fallback        *ThresholdFallback
	ColumnThreshold float64
	Orientation     Orientation
}

func (s BarSampler) validate() error {
	switch {
	case s.Color == nil && s.Fallback == nil:
		return fmt.Errorf("color_sampling or threshold_fallback is required")
	case s.Color != nil && (s.Color.ToleranceL1 < 0 || s.Color.ToleranceL1 > 765):
		return fmt.Errorf("color_sampling.tolerance_l1 must be in [0,765]")
	case s.Fallback != nil && s.Color == nil && s.Fallback.Mode != "brightness" && s.Fallback.Mode != "saturation":
		return fmt.Errorf("threshold_fallback.mode must be brightness or saturation")
	case s.Fallback != nil && (s.Fallback.Min < 0 || s.Fallback.Min > 1):
		return fmt.Errorf("threshold_fallback.min must be in [0,1]")
	case s.ColumnThreshold < 0 || s.ColumnThreshold > 1:
		return fmt.Errorf("column_threshold must be in [0,1]")
	case s.Orientation != Horizontal && s.Orientation != Vertical:
		return fmt.Errorf("orientation must be horizontal or vertical")
	}
	return nil
}

func rgbAt(img image.Image, x, y int) (r, g, b int) {
	if m, ok := img.(*image.RGBA); ok {
		i := m.PixOffset(x, y)
		return int(m.Pix[i]), int(m.Pix[i+1]), int(m.Pix[i+2])
	}
	cr, cg, cb, _ := img.At(x, y).RGBA()
	return int(cr >> 8), int(cg >> 8), int(cb >> 8)
}

// RednessScore is the mean red dominance (R - max(G,B))/255 over the
// region, clipped per pixel to [0,1].
func RednessScore(img image.Image, r image.Rectangle) float64 {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	var total float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb := rgbAt(img, x, y)
			if d := cr - max(cg, cb); d > 0 {
				total += float64(d) / 255
			}
		}
	}
	score := total / float64(r.Dx()*r.Dy())
	if score > 1 {
		return 1
	}
	return score
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (s BarSampler) filled(r, g, b int) bool {
	if c := s.Color; c != nil {
		df := absInt(r-int(c.Filled.R)) + absInt(g-int(c.Filled.G)) + absInt(b-int(c.Filled.B))
		if df > c.ToleranceL1 {
			return false
		}
		de := absInt(r-int(c.Empty.R)) + absInt(g-int(c.Empty.G)) + absInt(b-int(c.Empty.B))
		return df <= de
	}
	mx, mn := max(r, g, b), min(r, g, b)
	if s.Fallback.Mode == "saturation" {
		if mx <= 0 {
			return false
		}
		return float64(mx-mn)/float64(mx) >= s.Fallback.Min
	}
	return float64(mx)/255 >= s.Fallback.Min
}

// HealthBarPercent reads the fill level of a bar in [0,1]: the index of the
// first column (or row, counted from the bottom) whose filled-pixel ratio
// falls below ColumnThreshold, divided by the bar length.
func HealthBarPercent(img image.Image, r image.Rectangle, s BarSampler) float64 {
	r = r.Intersect(img.Bounds())
	if r.Empty() || (s.Color == nil && s.Fallback == nil) {
		return 0
	}

	vertical := s.Orientation == Vertical
	length, depth := r.Dx(), r.Dy()
	if vertical {
		length, depth = r.Dy(), r.Dx()
	}

	for i := 0; i < length; i++ {
		count := 0
		for j := 0; j < depth; j++ {
			x, y := r.Min.X+i, r.Min.Y+j
			if vertical {
				x, y = r.Min.X+j, r.Max.Y-1-i
			}
			if s.filled(rgbAt(img, x, y)) {
				count++
			}
		}
		if float64(count)/float64(depth) < s.ColumnThreshold {
			return float64(i) / float64(length)
		}
	}
	return 1
}
