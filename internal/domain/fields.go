package domain

import (
	"fmt"
	"strings"
)

var wheelSuffix = map[string]int{
	"fl": WheelFrontLeft,
	"fr": WheelFrontRight,
	"rl": WheelRearLeft,
	"rr": WheelRearRight,
}

// SetField assigns one named telemetry field. Field names are snake_case:
// speed, max_speed, brake, throttle, lateral_g, longitudinal_g, gear, abs,
// tc, wheel_damage_<fl|fr|rl|rr>, wheel_rumble_<fl|fr|rl|rr>.
func (s *TelemetrySample) SetField(name string, v float64) error {
	switch strings.ToLower(name) {
	case "speed":
		s.Speed = v
	case "max_speed":
		s.MaxSpeed = v
	case "brake":
		s.Brake = v
	case "throttle":
		s.Throttle = v
	case "lateral_g":
		s.LateralG = v
	case "longitudinal_g":
		s.LongitudinalG = v
	case "gear":
		s.Gear = int(v)
	case "abs":
		s.ABSActive = v > 0.5
	case "tc":
		s.TCActive = v > 0.5
	default:
		lower := strings.ToLower(name)
		for prefix, arr := range map[string]*[WheelCount]float64{
			"wheel_damage_": &s.WheelDamage,
			"wheel_rumble_": &s.WheelRumble,
		} {
			if w, ok := wheelSuffix[strings.TrimPrefix(lower, prefix)]; ok && strings.HasPrefix(lower, prefix) {
				arr[w] = v
				return nil
			}
		}
		return fmt.Errorf("unknown telemetry field %q", name)
	}
	return nil
}

// ValidField reports whether SetField accepts name.
func ValidField(name string) bool {
	var s TelemetrySample
	return s.SetField(name, 0) == nil
}
