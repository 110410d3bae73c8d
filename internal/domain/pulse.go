package domain

import (
	"strconv"
	"time"
)

// Pulse is one throttled unit of mapper output: if Key fires within its
// Cooldown, every message in Messages is sent in order.
type Pulse struct {
	Key      string
	Cooldown time.Duration
	Messages []Message
}

// CellKey is the per-actuator throttle key used by continuous sources.
func CellKey(cell int) string {
	return "cell:" + strconv.Itoa(cell)
}

// TriggerPulses turns a command list into one pulse per command keyed by
// cell. Commands with speed 0 are dropped.
func TriggerPulses(cmds []HapticCommand, cooldown time.Duration) []Pulse {
	out := make([]Pulse, 0, len(cmds))
	for _, c := range cmds {
		if !c.Valid() {
			continue
		}
		out = append(out, Pulse{
			Key:      CellKey(c.Cell),
			Cooldown: cooldown,
			Messages: []Message{Trigger(c.Cell, c.Speed)},
		})
	}
	return out
}
