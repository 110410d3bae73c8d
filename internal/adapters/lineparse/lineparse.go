// Package lineparse turns text lines from game logs and serial links into
// signals.
package lineparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

const (
	FormatTactsuit = "tactsuit"
	FormatJSONL    = "jsonl"
)

// EventParser extracts a game event from one line. ok is false for lines
// that carry no event; err is set for lines that look like events but are
// malformed.
type EventParser func(line string) (ev *domain.GameEvent, ok bool, err error)

func ParserFor(format string) (EventParser, error) {
	switch format {
	case FormatTactsuit:
		return ParseTactsuit, nil
	case FormatJSONL, "":
		return ParseJSONEvent, nil
	default:
		return nil, fmt.Errorf("unknown line format %q", format)
	}
}

var tactsuitPattern = regexp.MustCompile(`\[Tactsuit\]\s*\{([^}]+)\}`)

func handFromFlag(left bool) string {
	if left {
		return "left"
	}
	return "right"
}

// ParseTactsuit reads the "[Tactsuit] {Event|p1|p2|...}" lines the Alyx
// haptics mod writes to console.log.
func ParseTactsuit(line string) (*domain.GameEvent, bool, error) {
	m := tactsuitPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false, nil
	}
	parts := strings.Split(m[1], "|")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return nil, false, errors.New("tactsuit: empty event name")
	}
	ev := &domain.GameEvent{Name: name}
	arg := func(i int) (string, bool) {
		if i < len(parts) {
			return strings.TrimSpace(parts[i]), true
		}
		return "", false
	}

	switch name {
	case "PlayerHurt":
		if len(parts) < 6 {
			return nil, false, fmt.Errorf("tactsuit: PlayerHurt needs 5 params, got %d", len(parts)-1)
		}
		ev.Health = 100
		if h, err := strconv.Atoi(parts[1]); err == nil {
			ev.Health = float64(h)
		}
		a := 0.0
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil {
			a = v
		}
		ev.Angle = &a
		ev.Params = map[string]string{"enemy_class": parts[2], "enemy_name": parts[4], "enemy_debug_name": parts[5]}
	case "PlayerShootWeapon":
		ev.Weapon, _ = arg(1)
	case "PlayerHealth":
		ev.Health = 100
		if s, ok := arg(1); ok {
			if h, err := strconv.Atoi(s); err == nil {
				ev.Health = float64(h)
			}
		}
	case "PlayerHeal":
		if s, ok := arg(1); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				ev.Angle = &v
			}
		}
	case "PlayerDeath":
		if s, ok := arg(1); ok {
			ev.Params = map[string]string{"damagebits": s}
		}
	case "PlayerGrabbityPull", "PlayerGrabbityLockStart", "PlayerGrabbityLockStop", "GrabbityGloveCatch":
		// resolved to a side by the mapper, which tracks PrimaryHandChanged
		if s, ok := arg(1); ok {
			ev.Params = map[string]string{"is_primary_hand": strings.ToLower(s)}
		}
	case "PlayerDropAmmoInBackpack", "PlayerDropResinInBackpack", "PlayerRetrievedBackpackClip",
		"PlayerStoredItemInItemholder", "PlayerRemovedItemFromItemholder", "PlayerUsingHealthstation":
		if s, ok := arg(1); ok {
			ev.Hand = handFromFlag(s == "1")
		}
	case "ItemPickup", "ItemReleased":
		item, _ := arg(1)
		ev.Params = map[string]string{"item": item}
		if s, ok := arg(2); ok {
			ev.Hand = handFromFlag(s == "1")
		}
	case "PlayerShotgunUpgradeGrenadeLauncherState":
		if s, ok := arg(1); ok {
			ev.Params = map[string]string{"state": s}
		}
	case "PrimaryHandChanged":
		if s, ok := arg(1); ok {
			ev.Params = map[string]string{"is_primary_left": strings.ToLower(s)}
		}
	}
	return ev, true, nil
}

type jsonEvent struct {
	Cmd       string            `json:"cmd"`
	Event     string            `json:"event"`
	Hand      string            `json:"hand"`
	Weapon    string            `json:"weapon"`
	Angle     *float64          `json:"angle"`
	Damage    float64           `json:"damage"`
	Health    float64           `json:"health"`
	Intensity float64           `json:"intensity"`
	Direction string            `json:"direction"`
	Params    map[string]string `json:"params"`
}

// ParseJSONEvent reads one JSON object per line: either a bare event
// ({"event":"gun_fire","hand":"left"}) or a forwarded daemon message
// ({"cmd":"pistolwhip_event","event":...}). Other daemon commands are
// ignored.
func ParseJSONEvent(line string) (*domain.GameEvent, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return nil, false, nil
	}
	var je jsonEvent
	if err := json.Unmarshal([]byte(line), &je); err != nil {
		return nil, false, fmt.Errorf("jsonl: %w", err)
	}
	if je.Cmd != "" && !strings.HasSuffix(je.Cmd, "_event") {
		return nil, false, nil
	}
	if je.Event == "" {
		return nil, false, errors.New("jsonl: missing event")
	}
	return &domain.GameEvent{
		Name:      je.Event,
		Hand:      je.Hand,
		Weapon:    je.Weapon,
		Angle:     je.Angle,
		Damage:    je.Damage,
		Health:    je.Health,
		Intensity: je.Intensity,
		Direction: je.Direction,
		Params:    je.Params,
	}, true, nil
}

// ApplyKV folds "key=value[,key=value]" telemetry into s. Keys are
// telemetry field names; spaces and semicolons also separate pairs.
func ApplyKV(s *domain.TelemetrySample, line string) (int, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return 0, errors.New("kv: empty line")
	}
	next := *s
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return 0, fmt.Errorf("kv: %q is not key=value", f)
		}
		fv, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("kv: %s: %w", k, err)
		}
		if err := next.SetField(strings.TrimSpace(k), fv); err != nil {
			return 0, fmt.Errorf("kv: %w", err)
		}
	}
	*s = next
	return len(fields), nil
}
