package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/asecurityteam/rolling"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// Config configures a screen watcher.
type Config struct {
	Tick          time.Duration        `yaml:"tick"`
	Display       int                  `yaml:"display"`
	Image         string               `yaml:"image"` // PNG frame source instead of the display
	Redness       []RednessConfig      `yaml:"redness"`
	HealthBars    []HealthBarConfig    `yaml:"health_bars"`
	HealthNumbers []HealthNumberConfig `yaml:"health_numbers"`
	Debug         DebugConfig          `yaml:"debug"`
}

// DebugConfig controls ROI dumps and periodic score logging.
type DebugConfig struct {
	Dir      string `yaml:"dir"`
	MaxSaves int    `yaml:"max_saves"`
	LogEvery int    `yaml:"log_every"`
}

func (c *Config) ApplyDefaults() {
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.Debug.MaxSaves == 0 {
		c.Debug.MaxSaves = 50
	}
	for i := range c.Redness {
		c.Redness[i].ApplyDefaults()
	}
	for i := range c.HealthBars {
		c.HealthBars[i].ApplyDefaults()
	}
	for i := range c.HealthNumbers {
		c.HealthNumbers[i].ApplyDefaults()
	}
}

func (c *Config) Validate() error {
	if c.Tick < 10*time.Millisecond {
		return errors.New("tick must be >= 10ms")
	}
	if len(c.Redness) == 0 && len(c.HealthBars) == 0 && len(c.HealthNumbers) == 0 {
		return errors.New("at least one redness region, health bar or health number is required")
	}
	if c.Display < 0 {
		return errors.New("display must be >= 0")
	}
	seen := make(map[string]bool)
	var errs []error
	for i := range c.Redness {
		errs = append(errs, c.Redness[i].Validate())
		if seen[c.Redness[i].Name] {
			errs = append(errs, fmt.Errorf("duplicate detector name %q", c.Redness[i].Name))
		}
		seen[c.Redness[i].Name] = true
	}
	for i := range c.HealthBars {
		errs = append(errs, c.HealthBars[i].Validate())
		if seen[c.HealthBars[i].Name] {
			errs = append(errs, fmt.Errorf("duplicate detector name %q", c.HealthBars[i].Name))
		}
		seen[c.HealthBars[i].Name] = true
	}
	for i := range c.HealthNumbers {
		errs = append(errs, c.HealthNumbers[i].Validate())
		if seen[c.HealthNumbers[i].Name] {
			errs = append(errs, fmt.Errorf("duplicate detector name %q", c.HealthNumbers[i].Name))
		}
		seen[c.HealthNumbers[i].Name] = true
	}
	return errors.Join(errs...)
}

// Detectors builds the configured detectors over one shared throttle.
func (c *Config) Detectors(throttle *haptics.Throttle) []Detector {
	out := make([]Detector, 0, len(c.Redness)+len(c.HealthBars)+len(c.HealthNumbers))
	for _, rc := range c.Redness {
		out = append(out, NewRednessDetector(rc, throttle))
	}
	for _, hc := range c.HealthBars {
		out = append(out, NewHealthBarDetector(hc, throttle))
	}
	for _, nc := range c.HealthNumbers {
		out = append(out, NewHealthNumberDetector(nc, throttle))
	}
	return out
}

type scoreWindow struct {
	policy *rolling.PointPolicy
}

// Watcher samples a FrameSource on a fixed tick and emits hit_recorded,
// health_percent and health_value events.
type Watcher struct {
	name      string
	cfg       Config
	frames    ports.FrameSource
	obs       ports.Observability
	detectors []Detector
	debug     *debugSaver
	windows   map[string]scoreWindow
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	tick     uint64
	badRects map[string]bool
}

func NewWatcher(name string, cfg Config, frames ports.FrameSource, obs ports.Observability) (*Watcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if frames == nil {
		return nil, errors.New("screen watcher requires a frame source")
	}
	w := &Watcher{
		name:      name,
		cfg:       cfg,
		frames:    frames,
		obs:       obs,
		detectors: cfg.Detectors(haptics.NewThrottle()),
		debug:     newDebugSaver(cfg.Debug, obs),
		windows:   make(map[string]scoreWindow),
		now:       time.Now,
		badRects:  make(map[string]bool),
	}
	if cfg.Debug.LogEvery > 0 {
		for _, d := range w.detectors {
			w.windows[d.Name()] = scoreWindow{policy: rolling.NewPointPolicy(rolling.NewWindow(cfg.Debug.LogEvery))}
		}
	}
	return w, nil
}

func (w *Watcher) Start(out chan<- domain.Signal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("screen watcher %s already started", w.name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.started = true

	w.wg.Add(1)
	go w.loop(ctx, out)
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.started = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	return w.frames.Close()
}

func (w *Watcher) loop(ctx context.Context, out chan<- domain.Signal) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := w.frames.Capture(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.obs.IncCounter("hapticflow_capture_errors_total", 1)
				w.obs.LogError("screen_capture_failed", err, ports.Field{Key: "source", Value: w.name})
				continue
			}
			for _, sig := range w.Process(frame) {
				select {
				case <-ctx.Done():
					return
				case out <- sig:
				}
			}
		}
	}
}

// Process runs every detector against one frame and returns the resulting
// signals.
func (w *Watcher) Process(frame image.Image) []domain.Signal {
	now := w.now()
	w.tick++
	b := frame.Bounds()

	var sigs []domain.Signal
	for _, d := range w.detectors {
		px, err := d.Rect().ToPixels(b.Dx(), b.Dy())
		if err != nil {
			var ce *CalibrationError
			if errors.As(err, &ce) {
				ce.Detector = d.Name()
			}
			if !w.badRects[d.Name()] {
				w.badRects[d.Name()] = true
				w.obs.LogError("screen_roi_invalid", err, ports.Field{Key: "detector", Value: d.Name()})
			}
			continue
		}
		px = px.Add(b.Min)

		res := d.Evaluate(frame, px, now)
		if win, ok := w.windows[d.Name()]; ok {
			win.policy.Append(res.Score)
		}
		w.debug.saveOnce(d, frame, px)

		if res.Health != nil {
			sigs = append(sigs, domain.EventSignal(w.name, now, domain.GameEvent{
				Name:   "health_percent",
				Health: *res.Health,
				Params: map[string]string{"detector": d.Name()},
			}))
		}
		if v := res.Value; v != nil {
			sigs = append(sigs, domain.EventSignal(w.name, now, domain.GameEvent{
				Name:   "health_value",
				Health: float64(*v),
				Params: map[string]string{"detector": d.Name(), "value": strconv.Itoa(*v)},
			}))
		}
		if h := res.Hit; h != nil {
			w.debug.saveHit(d, frame, px)
			params := map[string]string{
				"detector": h.Detector,
				"source":   h.Source,
				"score":    strconv.FormatFloat(h.Score, 'f', 4, 64),
			}
			if h.Source == SourceHealthBar {
				params["percent"] = strconv.FormatFloat(h.Percent, 'f', 4, 64)
				params["prev_percent"] = strconv.FormatFloat(h.Prev, 'f', 4, 64)
			}
			if h.Source == SourceHealthNumber {
				params["value"] = strconv.Itoa(h.Value)
				params["prev_value"] = strconv.Itoa(h.PrevValue)
			}
			sigs = append(sigs, domain.EventSignal(w.name, now, domain.GameEvent{
				Name:      "hit_recorded",
				Intensity: h.Score,
				Direction: h.Direction,
				Params:    params,
			}))
		}
	}

	if n := w.cfg.Debug.LogEvery; n > 0 && w.tick%uint64(n) == 0 {
		w.logScores()
	}
	return sigs
}

func (w *Watcher) logScores() {
	for _, d := range w.detectors {
		win, ok := w.windows[d.Name()]
		if !ok {
			continue
		}
		w.obs.LogInfo("screen_scores",
			ports.Field{Key: "detector", Value: d.Name()},
			ports.Field{Key: "kind", Value: d.Kind()},
			ports.Field{Key: "mean", Value: win.policy.Reduce(rolling.Avg)},
			ports.Field{Key: "max", Value: win.policy.Reduce(rolling.Max)},
		)
	}
}

var _ ports.Source = (*Watcher)(nil)
