package domain

import (
	"math"
	"time"
)

// Wheel indexes used by TelemetrySample arrays.
const (
	WheelFrontLeft = iota
	WheelFrontRight
	WheelRearLeft
	WheelRearRight
	WheelCount
)

// TelemetrySample is one tick of continuous driving telemetry.
type TelemetrySample struct {
	Speed         float64             `json:"speed"`
	MaxSpeed      float64             `json:"max_speed"`
	Brake         float64             `json:"brake"`    // percent 0..100
	Throttle      float64             `json:"throttle"` // percent 0..100
	LateralG      float64             `json:"lateral_g"`
	LongitudinalG float64             `json:"longitudinal_g"`
	Gear          int                 `json:"gear"`
	ABSActive     bool                `json:"abs_active"`
	TCActive      bool                `json:"tc_active"`
	WheelDamage   [WheelCount]float64 `json:"wheel_damage"`
	WheelRumble   [WheelCount]float64 `json:"wheel_rumble"`
}

// Valid rejects samples carrying NaN/Inf or negative magnitudes.
func (s *TelemetrySample) Valid() bool {
	vals := []float64{s.Speed, s.MaxSpeed, s.Brake, s.Throttle, s.LateralG, s.LongitudinalG}
	for i := 0; i < WheelCount; i++ {
		vals = append(vals, s.WheelDamage[i], s.WheelRumble[i])
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.Speed >= 0 && s.MaxSpeed >= 0 && s.Brake >= 0 && s.Throttle >= 0
}

// GameEvent is a discrete signal parsed from a log line, an OSC edge, a mod
// message or a screen detector.
type GameEvent struct {
	Name      string            `json:"event"`
	Hand      string            `json:"hand,omitempty"`
	Weapon    string            `json:"weapon,omitempty"`
	Angle     *float64          `json:"angle,omitempty"`
	Damage    float64           `json:"damage,omitempty"`
	Health    float64           `json:"health,omitempty"`
	Intensity float64           `json:"intensity,omitempty"`
	Direction string            `json:"direction,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// Signal is what a source hands to its mapper. Exactly one payload is set.
type Signal struct {
	Source    string
	At        time.Time
	Telemetry *TelemetrySample
	Event     *GameEvent
}

func TelemetrySignal(source string, at time.Time, s TelemetrySample) Signal {
	return Signal{Source: source, At: at, Telemetry: &s}
}

func EventSignal(source string, at time.Time, e GameEvent) Signal {
	return Signal{Source: source, At: at, Event: &e}
}

// ConnectionState is owned by the daemon connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}
