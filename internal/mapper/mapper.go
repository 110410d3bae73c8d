// Package mapper converts source signals into throttled haptic pulses. Every
// source kind shares the ports.Mapper interface; the per-game differences
// live in declarative tables (driving channels, event profiles).
package mapper

import (
	"fmt"

	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

const (
	KindDriving = "driving"
	KindEvents  = "events"
)

// Config selects and configures one mapper.
type Config struct {
	Kind    string        `yaml:"kind"`
	Driving DrivingConfig `yaml:"driving"`
	Events  EventsConfig  `yaml:"events"`
}

func (c *Config) ApplyDefaults() {
	switch c.Kind {
	case KindDriving:
		c.Driving.ApplyDefaults()
	case KindEvents:
		c.Events.ApplyDefaults()
	}
}

func (c *Config) Validate() error {
	switch c.Kind {
	case KindDriving:
		return c.Driving.Validate()
	case KindEvents:
		return c.Events.Validate()
	default:
		return fmt.Errorf("unknown mapper kind %q", c.Kind)
	}
}

// New builds a fresh mapper. Each integration gets its own instance so
// previous-sample state and latches are never shared.
func New(cfg Config, layout haptics.Layout, obs ports.Observability) (ports.Mapper, error) {
	switch cfg.Kind {
	case KindDriving:
		return NewDriving(cfg.Driving, layout)
	case KindEvents:
		return NewEvents(cfg.Events, layout, obs)
	default:
		return nil, fmt.Errorf("unknown mapper kind %q", cfg.Kind)
	}
}
