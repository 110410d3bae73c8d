package mapper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// AngleMode says how a rule reads GameEvent.Angle.
type AngleMode int

const (
	AngleNone AngleMode = iota
	AngleClockwise
	AngleCounterClockwise
)

// EventRule is one row of a discrete event table.
type EventRule struct {
	Zones     []haptics.Zone            // used when no hand-specific entry matches
	HandZones map[string][]haptics.Zone // keyed by "left" / "right"
	Speed     int
	Priority  int
	Cooldown  time.Duration
	Angle     AngleMode

	// SpeedFn overrides Speed; returning 0 suppresses the event.
	SpeedFn func(e *domain.GameEvent) int
	// ZoneFn overrides every other zone source when it returns a non-empty set.
	ZoneFn func(e *domain.GameEvent) []haptics.Zone

	Sets   string   // latch raised by this event; suppresses repeats while raised
	Clears []string // latches lowered before this event is evaluated

	// PrimaryRelative resolves the hand from Params["is_primary_hand"]
	// against the tracked primary hand when the event carries no hand.
	PrimaryRelative bool
	// SetsPrimary records Params["is_primary_left"] as the primary hand.
	SetsPrimary bool
}

func (r EventRule) zonesFor(hand string, e *domain.GameEvent) []haptics.Zone {
	if r.ZoneFn != nil {
		if z := r.ZoneFn(e); len(z) > 0 {
			return z
		}
	}
	if r.Angle != AngleNone && e.Angle != nil {
		a := *e.Angle
		if r.Angle == AngleCounterClockwise {
			a = haptics.Mirror(a)
		}
		return haptics.ZonesForAngle(a)
	}
	if z, ok := r.HandZones[hand]; ok {
		return z
	}
	return r.Zones
}

// Profile is a named event table plus its game-specific conventions.
type Profile struct {
	Name        string
	ForwardCmd  string
	DefaultHand string
	Rules       map[string]EventRule
	// KeyParam, when set, adds Params[KeyParam] to the throttle key so that
	// events from different emitters cool down independently.
	KeyParam string
	// Rename lets a profile route one wire event to different rules
	// depending on its payload.
	Rename func(e *domain.GameEvent) string
}

// RuleConfig overrides or adds a rule from configuration.
type RuleConfig struct {
	Zones      []string      `yaml:"zones"`
	LeftZones  []string      `yaml:"left_zones"`
	RightZones []string      `yaml:"right_zones"`
	Speed      int           `yaml:"speed"`
	Priority   int           `yaml:"priority"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

// EventsConfig configures a discrete-event mapper.
type EventsConfig struct {
	Profile             string                `yaml:"profile"`
	Forward             bool                  `yaml:"forward"`
	ForwardCommand      string                `yaml:"forward_command"`
	Cooldown            time.Duration         `yaml:"cooldown"`
	IntensityMultiplier *float64              `yaml:"intensity_multiplier"`
	DefaultHand         string                `yaml:"default_hand"`
	LowHealthPercent    float64               `yaml:"low_health_percent"`
	Disabled            []string              `yaml:"disabled"`
	Rules               map[string]RuleConfig `yaml:"rules"`
}

func (c *EventsConfig) ApplyDefaults() {
	if c.Profile == "" {
		c.Profile = ProfilePistolWhip
	}
	if c.Cooldown == 0 {
		c.Cooldown = 50 * time.Millisecond
	}
	if c.IntensityMultiplier == nil {
		c.IntensityMultiplier = unit()
	}
	if c.LowHealthPercent == 0 {
		c.LowHealthPercent = 0.25
	}
}

func (c *EventsConfig) Validate() error {
	if _, ok := profileBuilders[c.Profile]; !ok {
		return fmt.Errorf("unknown event profile %q", c.Profile)
	}
	if c.IntensityMultiplier != nil && *c.IntensityMultiplier < 0 {
		return errors.New("intensity_multiplier must be >= 0")
	}
	if c.LowHealthPercent < 0 || c.LowHealthPercent > 1 {
		return errors.New("low_health_percent must be in [0,1]")
	}
	for name, rc := range c.Rules {
		if rc.Speed < 0 || rc.Speed > domain.MaxSpeed {
			return fmt.Errorf("rules.%s.speed must be in 0..%d", name, domain.MaxSpeed)
		}
		for _, z := range append(append(append([]string{}, rc.Zones...), rc.LeftZones...), rc.RightZones...) {
			if _, err := haptics.ParseZone(z); err != nil {
				return fmt.Errorf("rules.%s: %w", name, err)
			}
		}
	}
	return nil
}

// Events maps discrete game events through a profile table.
type Events struct {
	profile  Profile
	layout   haptics.Layout
	forward  bool
	cooldown time.Duration
	mult     float64
	obs      ports.Observability
	latches  map[string]bool

	primaryLeft bool
}

func NewEvents(cfg EventsConfig, layout haptics.Layout, obs ports.Observability) (*Events, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("events config: %w", err)
	}
	p := profileBuilders[cfg.Profile](cfg)
	if cfg.ForwardCommand != "" {
		p.ForwardCmd = cfg.ForwardCommand
	}
	if cfg.DefaultHand != "" {
		p.DefaultHand = strings.ToLower(cfg.DefaultHand)
	}
	for _, name := range cfg.Disabled {
		delete(p.Rules, name)
	}
	for name, rc := range cfg.Rules {
		p.Rules[name] = mergeRule(p.Rules[name], rc)
	}
	return &Events{
		profile:  p,
		layout:   layout,
		forward:  cfg.Forward,
		cooldown: cfg.Cooldown,
		mult:     *cfg.IntensityMultiplier,
		obs:      obs,
		latches:  make(map[string]bool),
	}, nil
}

func mergeRule(base EventRule, rc RuleConfig) EventRule {
	if len(rc.Zones) > 0 {
		base.Zones = parseZones(rc.Zones)
		base.Angle = AngleNone
		base.ZoneFn = nil
	}
	if len(rc.LeftZones) > 0 || len(rc.RightZones) > 0 {
		hz := make(map[string][]haptics.Zone, 2)
		for k, v := range base.HandZones {
			hz[k] = v
		}
		if len(rc.LeftZones) > 0 {
			hz["left"] = parseZones(rc.LeftZones)
		}
		if len(rc.RightZones) > 0 {
			hz["right"] = parseZones(rc.RightZones)
		}
		base.HandZones = hz
	}
	if rc.Speed > 0 {
		base.Speed = rc.Speed
		base.SpeedFn = nil
	}
	if rc.Priority != 0 {
		base.Priority = rc.Priority
	}
	if rc.Cooldown > 0 {
		base.Cooldown = rc.Cooldown
	}
	return base
}

// parseZones ignores invalid names; Validate has already rejected them.
func parseZones(names []string) []haptics.Zone {
	out := make([]haptics.Zone, 0, len(names))
	for _, n := range names {
		if z, err := haptics.ParseZone(n); err == nil {
			out = append(out, z)
		}
	}
	return out
}

func (m *Events) Kind() string { return KindEvents }

func (m *Events) Profile() string { return m.profile.Name }

// Latched reports whether the named latch is currently raised.
func (m *Events) Latched(name string) bool { return m.latches[name] }

// PrimaryHand is "left" or "right".
func (m *Events) PrimaryHand() string { return sideOf(m.primaryLeft) }

func sideOf(left bool) string {
	if left {
		return "left"
	}
	return "right"
}

// handFor resolves a primary-relative flag; a missing flag means the
// primary hand.
func (m *Events) handFor(isPrimary string) string {
	primary := !strings.EqualFold(isPrimary, "false")
	return sideOf(m.primaryLeft == primary)
}

// Map resolves the event's rule, applies latches and produces a single pulse
// keyed "<event>_<hand>", or "<event>:<param>" for profiles with a KeyParam.
func (m *Events) Map(sig domain.Signal) []domain.Pulse {
	if sig.Event == nil {
		return nil
	}
	ev := *sig.Event
	name := ev.Name
	if m.profile.Rename != nil {
		name = m.profile.Rename(&ev)
	}
	rule, ok := m.profile.Rules[name]
	if !ok {
		m.obs.IncCounter("hapticflow_malformed_signals_total", 1)
		m.obs.LogInfo("unknown_event",
			ports.Field{Key: "profile", Value: m.profile.Name},
			ports.Field{Key: "event", Value: ev.Name})
		return nil
	}

	for _, l := range rule.Clears {
		delete(m.latches, l)
	}
	if rule.Sets != "" {
		if m.latches[rule.Sets] {
			return nil
		}
		m.latches[rule.Sets] = true
	}

	if rule.SetsPrimary {
		m.primaryLeft = strings.EqualFold(ev.Params["is_primary_left"], "true")
	}

	hand := strings.ToLower(ev.Hand)
	if hand == "" && rule.PrimaryRelative {
		hand = m.handFor(ev.Params["is_primary_hand"])
	}
	if hand == "" {
		hand = m.profile.DefaultHand
	}
	key := name
	if p := ev.Params[m.profile.KeyParam]; m.profile.KeyParam != "" && p != "" {
		key += ":" + p
	} else if hand != "" {
		key += "_" + hand
	}
	cooldown := rule.Cooldown
	if cooldown == 0 {
		cooldown = m.cooldown
	}

	if m.forward {
		return []domain.Pulse{{
			Key:      key,
			Cooldown: cooldown,
			Messages: []domain.Message{domain.ForwardedEvent(m.profile.ForwardCmd, ev.Name, strings.ToLower(ev.Hand), rule.Priority)},
		}}
	}

	speed := rule.Speed
	if rule.SpeedFn != nil {
		speed = rule.SpeedFn(&ev)
	}
	if speed <= 0 {
		return nil
	}
	if m.mult != 1 {
		speed = haptics.ToSpeed(float64(speed) / domain.MaxSpeed * m.mult)
	}
	if speed > domain.MaxSpeed {
		speed = domain.MaxSpeed
	}
	if speed == 0 {
		return nil
	}

	cells := m.layout.CellsFor(rule.zonesFor(hand, &ev)...)
	if len(cells) == 0 {
		return nil
	}
	msgs := make([]domain.Message, 0, len(cells))
	for _, c := range cells {
		msgs = append(msgs, domain.Trigger(c, speed))
	}
	return []domain.Pulse{{Key: key, Cooldown: cooldown, Messages: msgs}}
}

var _ ports.Mapper = (*Events)(nil)
