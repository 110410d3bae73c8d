package mapper

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// ChannelConfig toggles and scales one driving channel. Nil fields take the
// channel default; a multiplier of 0 mutes the channel.
type ChannelConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	Threshold  *float64 `yaml:"threshold"`
	Multiplier *float64 `yaml:"multiplier"`
}

func (c ChannelConfig) on() bool { return c.Enabled == nil || *c.Enabled }

func unit() *float64 {
	v := 1.0
	return &v
}

// DrivingConfig configures the continuous telemetry rule set.
type DrivingConfig struct {
	IntensityMultiplier *float64      `yaml:"intensity_multiplier"`
	Cooldown            time.Duration `yaml:"cooldown"`
	MinSpeed            float64       `yaml:"min_speed"`
	DefaultMaxSpeed     float64       `yaml:"default_max_speed"`
	MaxLateralG         float64       `yaml:"max_lateral_g"`
	MaxDamageDelta      float64       `yaml:"max_damage_delta"`

	Braking         ChannelConfig `yaml:"braking"`
	Acceleration    ChannelConfig `yaml:"acceleration"`
	Cornering       ChannelConfig `yaml:"cornering"`
	GearShift       ChannelConfig `yaml:"gear_shift"`
	Collision       ChannelConfig `yaml:"collision"`
	ABS             ChannelConfig `yaml:"abs"`
	TractionControl ChannelConfig `yaml:"traction_control"`
	Rumble          ChannelConfig `yaml:"rumble"`
}

func (c *DrivingConfig) ApplyDefaults() {
	if c.IntensityMultiplier == nil {
		c.IntensityMultiplier = unit()
	}
	if c.Cooldown == 0 {
		c.Cooldown = 50 * time.Millisecond
	}
	if c.MinSpeed == 0 {
		c.MinSpeed = 5
	}
	if c.DefaultMaxSpeed == 0 {
		c.DefaultMaxSpeed = 300
	}
	if c.MaxLateralG == 0 {
		c.MaxLateralG = 3
	}
	if c.MaxDamageDelta == 0 {
		c.MaxDamageDelta = 10
	}
	for _, ch := range drivingChannels {
		cc := ch.cfg(c)
		if cc.Threshold == nil {
			v := ch.threshold
			cc.Threshold = &v
		}
		if cc.Multiplier == nil {
			cc.Multiplier = unit()
		}
	}
}

func (c *DrivingConfig) Validate() error {
	if c.IntensityMultiplier != nil && *c.IntensityMultiplier < 0 {
		return errors.New("intensity_multiplier must be >= 0")
	}
	if c.Cooldown < 0 {
		return errors.New("cooldown must be >= 0")
	}
	for _, ch := range drivingChannels {
		cc := ch.cfg(c)
		if cc.Multiplier != nil && *cc.Multiplier < 0 {
			return fmt.Errorf("%s.multiplier must be >= 0", ch.name)
		}
		if cc.Threshold != nil && (*cc.Threshold < 0 || math.IsNaN(*cc.Threshold)) {
			return fmt.Errorf("%s.threshold must be >= 0", ch.name)
		}
	}
	return nil
}

type emission struct {
	zones     []haptics.Zone
	intensity float64
}

// channel is one row of the driving rule table. eval sees the current sample
// and the previous-tick state; it must not mutate the state.
type channel struct {
	name      string
	threshold float64
	cfg       func(*DrivingConfig) *ChannelConfig
	eval      func(d *Driving, s *domain.TelemetrySample, threshold float64) []emission
}

var wheelZones = [domain.WheelCount]haptics.Zone{
	haptics.FrontLowerLeft, haptics.FrontLowerRight, haptics.BackLowerLeft, haptics.BackLowerRight,
}

// drivingChannels is evaluated top to bottom every tick; a later row wins a
// cell that an earlier row also targeted.
var drivingChannels = []channel{
	{
		name: "braking", threshold: 5,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.Braking },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			if s.Brake <= th || s.Speed <= d.cfg.MinSpeed {
				return nil
			}
			maxSpeed := s.MaxSpeed
			if maxSpeed <= 0 {
				maxSpeed = d.cfg.DefaultMaxSpeed
			}
			speedFactor := 0.5 + 0.5*haptics.Normalize(s.Speed, 0, maxSpeed)
			return []emission{{
				zones:     []haptics.Zone{haptics.FrontUpperLeft, haptics.FrontUpperRight},
				intensity: haptics.Curve(haptics.Normalize(s.Brake, 0, 100)) * speedFactor,
			}}
		},
	},
	{
		name: "acceleration", threshold: 10,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.Acceleration },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			if s.Throttle <= th || s.Speed <= d.cfg.MinSpeed {
				return nil
			}
			return []emission{{
				zones:     []haptics.Zone{haptics.BackUpperLeft, haptics.BackUpperRight},
				intensity: haptics.Curve(haptics.Normalize(s.Throttle, 0, 100)),
			}}
		},
	},
	{
		name: "cornering", threshold: 0.3,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.Cornering },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			g := math.Abs(s.LateralG)
			if g <= th {
				return nil
			}
			// positive lateral G pushes the driver to the right
			zones := []haptics.Zone{haptics.FrontLowerRight, haptics.BackLowerRight}
			if s.LateralG < 0 {
				zones = []haptics.Zone{haptics.FrontLowerLeft, haptics.BackLowerLeft}
			}
			return []emission{{zones: zones, intensity: haptics.Curve(haptics.Normalize(g, 0, d.cfg.MaxLateralG))}}
		},
	},
	{
		name: "gear_shift", threshold: 0,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.GearShift },
		eval: func(d *Driving, s *domain.TelemetrySample, _ float64) []emission {
			if !d.seeded || s.Gear == d.prevGear {
				return nil
			}
			return []emission{{
				zones:     []haptics.Zone{haptics.BackLowerLeft, haptics.BackLowerRight},
				intensity: 0.4,
			}}
		},
	},
	{
		name: "collision", threshold: 0.1,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.Collision },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			if !d.seeded {
				return nil
			}
			var maxDelta float64
			for i := 0; i < domain.WheelCount; i++ {
				if delta := s.WheelDamage[i] - d.prevDamage[i]; delta > maxDelta {
					maxDelta = delta
				}
			}
			if maxDelta <= th {
				return nil
			}
			intensity := math.Max(0.3, haptics.Curve(haptics.Normalize(maxDelta, 0, d.cfg.MaxDamageDelta)))
			return []emission{{zones: []haptics.Zone{haptics.All}, intensity: intensity}}
		},
	},
	{
		name: "abs", threshold: 5,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.ABS },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			if !s.ABSActive || s.Brake <= th {
				return nil
			}
			return []emission{{
				zones:     []haptics.Zone{haptics.FrontLowerLeft, haptics.FrontLowerRight},
				intensity: 0.5,
			}}
		},
	},
	{
		name: "traction_control", threshold: 0,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.TractionControl },
		eval: func(d *Driving, s *domain.TelemetrySample, _ float64) []emission {
			if !s.TCActive {
				return nil
			}
			return []emission{{
				zones:     []haptics.Zone{haptics.BackLowerLeft, haptics.BackLowerRight},
				intensity: 0.5,
			}}
		},
	},
	{
		name: "rumble", threshold: 0.05,
		cfg: func(c *DrivingConfig) *ChannelConfig { return &c.Rumble },
		eval: func(d *Driving, s *domain.TelemetrySample, th float64) []emission {
			var out []emission
			for i := 0; i < domain.WheelCount; i++ {
				r := s.WheelRumble[i]
				if r <= th {
					continue
				}
				out = append(out, emission{zones: []haptics.Zone{wheelZones[i]}, intensity: haptics.Curve(r)})
			}
			return out
		},
	},
}

// Driving maps continuous telemetry through the channel table. It keeps the
// previous gear and wheel damage for delta detection and is not safe for use
// by more than one goroutine.
type Driving struct {
	cfg    DrivingConfig
	layout haptics.Layout

	seeded     bool
	prevGear   int
	prevDamage [domain.WheelCount]float64
}

func NewDriving(cfg DrivingConfig, layout haptics.Layout) (*Driving, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("driving config: %w", err)
	}
	return &Driving{cfg: cfg, layout: layout}, nil
}

func (d *Driving) Kind() string { return KindDriving }

// Map evaluates one tick. Commands for the same cell are concatenated in
// channel order; the dispatcher keeps the last one.
func (d *Driving) Map(sig domain.Signal) []domain.Pulse {
	s := sig.Telemetry
	if s == nil || !s.Valid() {
		return nil
	}
	cmds := d.Commands(s)
	d.advance(s)
	return domain.TriggerPulses(cmds, d.cfg.Cooldown)
}

// Commands evaluates every enabled channel against s without touching the
// previous-tick state.
func (d *Driving) Commands(s *domain.TelemetrySample) []domain.HapticCommand {
	var out []domain.HapticCommand
	for _, ch := range drivingChannels {
		cc := ch.cfg(&d.cfg)
		if !cc.on() {
			continue
		}
		for _, em := range ch.eval(d, s, *cc.Threshold) {
			speed := haptics.ToSpeed(haptics.Clamp01(em.intensity * *cc.Multiplier * *d.cfg.IntensityMultiplier))
			if speed == 0 {
				continue
			}
			for _, cell := range d.layout.CellsFor(em.zones...) {
				out = append(out, domain.HapticCommand{Cell: cell, Speed: speed})
			}
		}
	}
	return out
}

// advance stores the delta-tracking fields regardless of what fired.
func (d *Driving) advance(s *domain.TelemetrySample) {
	d.prevGear = s.Gear
	d.prevDamage = s.WheelDamage
	d.seeded = true
}

var _ ports.Mapper = (*Driving)(nil)
