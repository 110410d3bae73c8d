package screen

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"time"

	"github.com/ghalamif/HapticFlow/internal/haptics"
)

const SourceHealthNumber = "health_number"

// A drop of this many points reads as a full-intensity hit.
const numberFullDrop = 25

// Bitmap is a row-major binary image. 1 is ink.
type Bitmap struct {
	W, H int
	Bits []uint8
}

// Binarize thresholds the grey level of every pixel in r and replicates
// each result scale×scale times.
func Binarize(img image.Image, r image.Rectangle, threshold float64, invert bool, scale int) Bitmap {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return Bitmap{}
	}
	if scale < 1 {
		scale = 1
	}
	thr := int(math.Round(threshold * 255))
	out := Bitmap{W: r.Dx() * scale, H: r.Dy() * scale}
	out.Bits = make([]uint8, out.W*out.H)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			cr, cg, cb := rgbAt(img, r.Min.X+x, r.Min.Y+y)
			gray := (cr*299 + cg*587 + cb*114) / 1000
			var bit uint8
			if (gray >= thr) != invert {
				bit = 1
			}
			for yy := 0; yy < scale; yy++ {
				row := (y*scale + yy) * out.W
				for xx := 0; xx < scale; xx++ {
					out.Bits[row+x*scale+xx] = bit
				}
			}
		}
	}
	return out
}

// Columns copies the columns [x0,x1).
func (b Bitmap) Columns(x0, x1 int) Bitmap {
	out := Bitmap{W: x1 - x0, H: b.H}
	out.Bits = make([]uint8, out.W*out.H)
	for y := 0; y < b.H; y++ {
		copy(out.Bits[y*out.W:(y+1)*out.W], b.Bits[y*b.W+x0:y*b.W+x1])
	}
	return out
}

// Resize scales to w×h with nearest-neighbour sampling.
func (b Bitmap) Resize(w, h int) Bitmap {
	out := Bitmap{W: w, H: h, Bits: make([]uint8, w*h)}
	if b.W == 0 || b.H == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		sy := y * b.H / h
		for x := 0; x < w; x++ {
			out.Bits[y*w+x] = b.Bits[sy*b.W+x*b.W/w]
		}
	}
	return out
}

// Hamming counts differing bits over the shorter of a and b.
func Hamming(a, b []uint8) int {
	n := min(len(a), len(b))
	d := 0
	for i := 0; i < n; i++ {
		if (a[i] != 0) != (b[i] != 0) {
			d++
		}
	}
	return d
}

// NumberPreprocess turns a digit ROI into a bitmap.
type NumberPreprocess struct {
	Invert    bool    `yaml:"invert"`
	Threshold float64 `yaml:"threshold"`
	Scale     int     `yaml:"scale"`
}

// DigitTemplates are per-digit reference bitmaps of Width×Height.
type DigitTemplates struct {
	Width      int              `yaml:"width"`
	Height     int              `yaml:"height"`
	HammingMax int              `yaml:"hamming_max"`
	Digits     map[string][]int `yaml:"digits"`
}

func (t DigitTemplates) validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return errors.New("templates.width and templates.height must be > 0")
	}
	if t.HammingMax < 0 {
		return errors.New("templates.hamming_max must be >= 0")
	}
	if len(t.Digits) == 0 {
		return errors.New("templates.digits is required")
	}
	for k, v := range t.Digits {
		if n, err := strconv.Atoi(k); err != nil || n < 0 || n > 9 || len(k) != 1 {
			return fmt.Errorf("templates.digits key %q must be 0..9", k)
		}
		if len(v) != t.Width*t.Height {
			return fmt.Errorf("templates.digits[%s] must have %d bits", k, t.Width*t.Height)
		}
	}
	return nil
}

// HealthNumberConfig calibrates an on-screen health counter.
type HealthNumberConfig struct {
	Name        string           `yaml:"name"`
	Rect        NormalizedRect   `yaml:"rect"`
	Digits      int              `yaml:"digits"`
	Preprocess  NumberPreprocess `yaml:"preprocess"`
	Min         int              `yaml:"min"`
	Max         int              `yaml:"max"`
	StableReads int              `yaml:"stable_reads"`
	MinDrop     int              `yaml:"min_drop"`
	Cooldown    time.Duration    `yaml:"cooldown"`
	Templates   DigitTemplates   `yaml:"templates"`
}

func (c *HealthNumberConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "health_number"
	}
	if c.Preprocess.Scale == 0 {
		c.Preprocess.Scale = 1
	}
	if c.Min == 0 && c.Max == 0 {
		c.Max = 100
	}
	if c.StableReads == 0 {
		c.StableReads = 2
	}
	if c.MinDrop == 0 {
		c.MinDrop = 1
	}
	if c.Cooldown == 0 {
		c.Cooldown = 150 * time.Millisecond
	}
}

func (c *HealthNumberConfig) Validate() error {
	if err := c.Rect.Validate(); err != nil {
		return fmt.Errorf("health_number %s: %w", c.Name, err)
	}
	var err error
	switch {
	case c.Digits < 1:
		err = errors.New("digits must be >= 1")
	case c.Preprocess.Threshold < 0 || c.Preprocess.Threshold > 1:
		err = errors.New("preprocess.threshold must be in [0,1]")
	case c.Preprocess.Scale < 1:
		err = errors.New("preprocess.scale must be >= 1")
	case c.Min > c.Max:
		err = errors.New("min must be <= max")
	case c.StableReads < 1:
		err = errors.New("stable_reads must be >= 1")
	case c.MinDrop < 1:
		err = errors.New("min_drop must be >= 1")
	default:
		err = c.Templates.validate()
	}
	if err != nil {
		return fmt.Errorf("health_number %s: %w", c.Name, err)
	}
	return nil
}

type digitTemplate struct {
	digit byte
	bits  []uint8
}

// HealthNumberDetector reads a health counter by template matching. A value
// counts only after StableReads identical reads in a row; a drop of at least
// MinDrop between accepted values fires a hit.
type HealthNumberDetector struct {
	cfg       HealthNumberConfig
	templates []digitTemplate
	throttle  *haptics.Throttle

	cand      int
	candCount int
	emitted   bool
	lastValue int
	hasPrev   bool
	prev      int
}

func NewHealthNumberDetector(cfg HealthNumberConfig, throttle *haptics.Throttle) *HealthNumberDetector {
	cfg.ApplyDefaults()
	d := &HealthNumberDetector{cfg: cfg, throttle: throttle}
	for k := byte('0'); k <= '9'; k++ {
		raw, ok := cfg.Templates.Digits[string(k)]
		if !ok {
			continue
		}
		bits := make([]uint8, len(raw))
		for i, v := range raw {
			if v != 0 {
				bits[i] = 1
			}
		}
		d.templates = append(d.templates, digitTemplate{digit: k, bits: bits})
	}
	return d
}

func (d *HealthNumberDetector) Name() string         { return d.cfg.Name }
func (d *HealthNumberDetector) Kind() string         { return SourceHealthNumber }
func (d *HealthNumberDetector) Rect() NormalizedRect { return d.cfg.Rect }

func (d *HealthNumberDetector) Evaluate(img image.Image, px image.Rectangle, now time.Time) Result {
	p := d.cfg.Preprocess
	v, ok := d.Read(Binarize(img, px, p.Threshold, p.Invert, p.Scale))
	return d.Observe(v, ok, now)
}

// Read splits the bitmap into Digits equal slices and matches each against
// the templates. Any slice without a match within HammingMax, or a value
// outside [Min,Max], fails the read.
func (d *HealthNumberDetector) Read(bm Bitmap) (int, bool) {
	n := d.cfg.Digits
	if bm.W == 0 || bm.H == 0 || n < 1 || len(d.templates) == 0 {
		return 0, false
	}
	tw, th := d.cfg.Templates.Width, d.cfg.Templates.Height
	digits := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		x0 := int(math.Round(float64(i*bm.W) / float64(n)))
		x1 := int(math.Round(float64((i+1)*bm.W) / float64(n)))
		x1 = max(x0+1, min(bm.W, x1))
		if x0 >= bm.W {
			return 0, false
		}
		norm := bm.Columns(x0, x1).Resize(tw, th)

		best, bestDist := byte(0), -1
		for _, t := range d.templates {
			if dist := Hamming(norm.Bits, t.bits); bestDist < 0 || dist < bestDist {
				best, bestDist = t.digit, dist
			}
		}
		if bestDist < 0 || bestDist > d.cfg.Templates.HammingMax {
			return 0, false
		}
		digits = append(digits, best)
	}
	v, err := strconv.Atoi(string(digits))
	if err != nil || v < d.cfg.Min || v > d.cfg.Max {
		return 0, false
	}
	return v, true
}

// Observe feeds one read through the stability filter and the drop rule.
func (d *HealthNumberDetector) Observe(value int, ok bool, now time.Time) Result {
	if !ok {
		return Result{}
	}
	res := Result{Score: float64(value)}

	if d.candCount == 0 || d.cand != value {
		d.cand, d.candCount = value, 1
	} else {
		d.candCount++
	}
	if d.candCount < d.cfg.StableReads {
		return res
	}

	if !d.emitted || d.lastValue != value {
		d.emitted, d.lastValue = true, value
		v := value
		res.Value = &v
	}

	prev, hadPrev := d.prev, d.hasPrev
	d.prev, d.hasPrev = value, true
	if !hadPrev {
		return res
	}
	drop := prev - value
	if drop >= d.cfg.MinDrop && d.throttle.ShouldFire("health_number:"+d.cfg.Name, now, d.cfg.Cooldown) {
		res.Hit = &Hit{
			Detector:  d.cfg.Name,
			Source:    SourceHealthNumber,
			Score:     haptics.Clamp01(float64(drop) / numberFullDrop),
			Value:     value,
			PrevValue: prev,
		}
	}
	return res
}

var _ Detector = (*HealthNumberDetector)(nil)
