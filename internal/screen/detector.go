package screen

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/ghalamif/HapticFlow/internal/haptics"
)

const (
	SourceRedness   = "redness"
	SourceHealthBar = "health_bar"
)

// Health reports are repeated at least this often, or sooner on a change of
// at least healthReportDelta.
const (
	healthReportInterval = 500 * time.Millisecond
	healthReportDelta    = 0.005
)

// Hit is one detected damage indication.
type Hit struct {
	Detector  string
	Source    string
	Score     float64 // intensity in [0,1]
	Direction string
	Percent   float64
	Prev      float64
	Value     int // health_number only
	PrevValue int
}

// Result is what a detector saw in one frame.
type Result struct {
	Score  float64  // redness score or bar percent
	Hit    *Hit     // nil unless a hit fired
	Health *float64 // non-nil when a health report is due
	Value  *int     // non-nil when a health number changed
}

// Detector evaluates one calibrated region per frame.
type Detector interface {
	Name() string
	Kind() string
	Rect() NormalizedRect
	Evaluate(img image.Image, px image.Rectangle, now time.Time) Result
}

// RednessConfig calibrates one vignette region.
type RednessConfig struct {
	Name      string         `yaml:"name"`
	Rect      NormalizedRect `yaml:"rect"`
	Direction string         `yaml:"direction"`
	MinScore  float64        `yaml:"min_score"`
	Cooldown  time.Duration  `yaml:"cooldown"`
}

func (c *RednessConfig) ApplyDefaults() {
	if c.MinScore == 0 {
		c.MinScore = 0.35
	}
	if c.Cooldown == 0 {
		c.Cooldown = 200 * time.Millisecond
	}
}

func (c *RednessConfig) Validate() error {
	if c.Name == "" {
		return errors.New("redness.name is required")
	}
	if err := c.Rect.Validate(); err != nil {
		return fmt.Errorf("redness %s: %w", c.Name, err)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("redness %s: min_score must be in [0,1]", c.Name)
	}
	if c.Direction != "" {
		if _, err := haptics.ParseZone(c.Direction); err != nil {
			return fmt.Errorf("redness %s: %w", c.Name, err)
		}
	}
	return nil
}

// RednessDetector fires when a region turns red enough.
type RednessDetector struct {
	cfg      RednessConfig
	throttle *haptics.Throttle
}

func NewRednessDetector(cfg RednessConfig, throttle *haptics.Throttle) *RednessDetector {
	cfg.ApplyDefaults()
	return &RednessDetector{cfg: cfg, throttle: throttle}
}

func (d *RednessDetector) Name() string         { return d.cfg.Name }
func (d *RednessDetector) Kind() string         { return SourceRedness }
func (d *RednessDetector) Rect() NormalizedRect { return d.cfg.Rect }

func (d *RednessDetector) Evaluate(img image.Image, px image.Rectangle, now time.Time) Result {
	score := RednessScore(img, px)
	res := Result{Score: score}
	if score > d.cfg.MinScore && d.throttle.ShouldFire("redness:"+d.cfg.Name, now, d.cfg.Cooldown) {
		res.Hit = &Hit{
			Detector:  d.cfg.Name,
			Source:    SourceRedness,
			Score:     score,
			Direction: d.cfg.Direction,
		}
	}
	return res
}

// HealthBarConfig calibrates one health bar.
type HealthBarConfig struct {
	Name            string             `yaml:"name"`
	Rect            NormalizedRect     `yaml:"rect"`
	Orientation     Orientation        `yaml:"orientation"`
	ColorSampling   *ColorSampling     `yaml:"color_sampling"`
	Fallback        *ThresholdFallback `yaml:"threshold_fallback"`
	ColumnThreshold float64            `yaml:"column_threshold"`
	MinDrop         float64            `yaml:"min_drop"`
	Cooldown        time.Duration      `yaml:"cooldown"`
}

func (c *HealthBarConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "health_bar"
	}
	if c.Orientation == "" {
		c.Orientation = Horizontal
	}
	if c.ColumnThreshold == 0 {
		c.ColumnThreshold = 0.5
	}
	if c.MinDrop == 0 {
		c.MinDrop = 0.02
	}
	if c.Cooldown == 0 {
		c.Cooldown = 150 * time.Millisecond
	}
}

func (c *HealthBarConfig) sampler() BarSampler {
	return BarSampler{
		Color:           c.ColorSampling,
		Fallback:        c.Fallback,
		ColumnThreshold: c.ColumnThreshold,
		Orientation:     c.Orientation,
	}
}

func (c *HealthBarConfig) Validate() error {
	if err := c.Rect.Validate(); err != nil {
		return fmt.Errorf("health_bar %s: %w", c.Name, err)
	}
	if err := c.sampler().validate(); err != nil {
		return fmt.Errorf("health_bar %s: %w", c.Name, err)
	}
	if c.MinDrop < 0 || c.MinDrop > 1 {
		return fmt.Errorf("health_bar %s: min_drop must be in [0,1]", c.Name)
	}
	return nil
}

// HealthBarDetector fires on drops in a health bar and reports the level.
type HealthBarDetector struct {
	cfg      HealthBarConfig
	sampler  BarSampler
	throttle *haptics.Throttle

	hasPrev  bool
	prev     float64
	reported bool
	lastVal  float64
	lastAt   time.Time
}

func NewHealthBarDetector(cfg HealthBarConfig, throttle *haptics.Throttle) *HealthBarDetector {
	cfg.ApplyDefaults()
	return &HealthBarDetector{cfg: cfg, sampler: cfg.sampler(), throttle: throttle}
}

func (d *HealthBarDetector) Name() string         { return d.cfg.Name }
func (d *HealthBarDetector) Kind() string         { return SourceHealthBar }
func (d *HealthBarDetector) Rect() NormalizedRect { return d.cfg.Rect }

func (d *HealthBarDetector) Evaluate(img image.Image, px image.Rectangle, now time.Time) Result {
	return d.Observe(HealthBarPercent(img, px, d.sampler), now)
}

// Observe feeds one measured percent through the drop and report rules.
func (d *HealthBarDetector) Observe(percent float64, now time.Time) Result {
	percent = haptics.Clamp01(percent)
	res := Result{Score: percent}

	if !d.reported || math.Abs(percent-d.lastVal) >= healthReportDelta || now.Sub(d.lastAt) >= healthReportInterval {
		d.reported = true
		d.lastVal = percent
		d.lastAt = now
		v := percent
		res.Health = &v
	}

	prev, hadPrev := d.prev, d.hasPrev
	d.prev, d.hasPrev = percent, true
	if !hadPrev {
		return res
	}
	drop := prev - percent
	if drop > d.cfg.MinDrop && d.throttle.ShouldFire("health_bar:"+d.cfg.Name, now, d.cfg.Cooldown) {
		res.Hit = &Hit{
			Detector: d.cfg.Name,
			Source:   SourceHealthBar,
			Score:    haptics.Clamp01(drop),
			Percent:  percent,
			Prev:     prev,
		}
	}
	return res
}

var (
	_ Detector = (*RednessDetector)(nil)
	_ Detector = (*HealthBarDetector)(nil)
)
