package mapper

import (
	"reflect"
	"testing"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

func newEvents(t *testing.T, cfg EventsConfig, obs ports.Observability) *Events {
	t.Helper()
	if obs == nil {
		obs = &mockObs{}
	}
	m, err := NewEvents(cfg, haptics.HardwareLayout, obs)
	if err != nil {
		t.Fatalf("new events mapper: %v", err)
	}
	return m
}

func event(name, hand string) domain.Signal {
	return domain.EventSignal("test", time.Unix(0, 0), domain.GameEvent{Name: name, Hand: hand})
}

func singlePulse(t *testing.T, pulses []domain.Pulse) domain.Pulse {
	t.Helper()
	if len(pulses) != 1 {
		t.Fatalf("expected exactly one pulse, got %d: %+v", len(pulses), pulses)
	}
	return pulses[0]
}

func triggerCells(p domain.Pulse) (cells []int, speed int) {
	for _, m := range p.Messages {
		cells = append(cells, m.Command.Cell)
		speed = m.Command.Speed
	}
	return cells, speed
}

func TestPistolWhipHandSpecificCells(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfilePistolWhip}, nil)

	cases := []struct {
		event, hand string
		key         string
		cells       []int
		speed       int
	}{
		{"gun_fire", "right", "gun_fire_right", []int{5, 6}, 5},
		{"gun_fire", "left", "gun_fire_left", []int{1, 2}, 5},
		{"gun_fire", "", "gun_fire_right", []int{5, 6}, 5},
		{"shotgun_fire", "left", "shotgun_fire_left", []int{0, 1, 2, 3}, 8},
		{"melee_hit", "right", "melee_hit_right", []int{5, 6}, 6},
		{"reload_hip", "left", "reload_hip_left", []int{3}, 4},
		{"reload_shoulder", "right", "reload_shoulder_right", []int{6}, 4},
		{"player_hit", "", "player_hit_right", []int{2, 5}, 7},
		{"death", "", "death_right", []int{0, 1, 2, 3, 4, 5, 6, 7}, 10},
		{"empty_gun_fire", "left", "empty_gun_fire_left", []int{2}, 2},
	}
	for _, tc := range cases {
		p := singlePulse(t, m.Map(event(tc.event, tc.hand)))
		cells, speed := triggerCells(p)
		if p.Key != tc.key {
			t.Fatalf("%s/%s: expected key %s, got %s", tc.event, tc.hand, tc.key, p.Key)
		}
		if !reflect.DeepEqual(cells, tc.cells) || speed != tc.speed {
			t.Fatalf("%s/%s: expected cells %v speed %d, got %v %d", tc.event, tc.hand, tc.cells, tc.speed, cells, speed)
		}
		if p.Cooldown != 50*time.Millisecond {
			t.Fatalf("%s: expected default cooldown, got %s", tc.event, p.Cooldown)
		}
	}
}

func TestLowHealthLatch(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfilePistolWhip}, nil)

	if len(m.Map(event("low_health", ""))) != 1 {
		t.Fatalf("first low_health must fire")
	}
	if p := m.Map(event("low_health", "")); p != nil {
		t.Fatalf("latched low_health must not fire again, got %+v", p)
	}
	heal := singlePulse(t, m.Map(event("healing", "")))
	if cells, _ := triggerCells(heal); !reflect.DeepEqual(cells, []int{0, 3, 4, 7}) {
		t.Fatalf("healing should hit lower cells, got %v", cells)
	}
	if m.Latched("low_health") {
		t.Fatalf("healing must clear the latch")
	}
	if len(m.Map(event("low_health", ""))) != 1 {
		t.Fatalf("low_health must fire again after healing")
	}
}

func TestForwardModeEmitsGameEventMessage(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfilePistolWhip, Forward: true}, nil)

	p := singlePulse(t, m.Map(event("shotgun_fire", "left")))
	if len(p.Messages) != 1 {
		t.Fatalf("forward mode must emit one message, got %d", len(p.Messages))
	}
	line, err := p.Messages[0].Line()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"cmd":"pistolwhip_event","event":"shotgun_fire","hand":"left","priority":2}` + "\n"
	if string(line) != want {
		t.Fatalf("expected %s, got %s", want, line)
	}
}

func TestUnknownEventIsCounted(t *testing.T) {
	obs := &mockObs{}
	m := newEvents(t, EventsConfig{Profile: ProfilePistolWhip}, obs)
	if p := m.Map(event("jetpack", "")); p != nil {
		t.Fatalf("unknown event must not map, got %+v", p)
	}
	if obs.counters["hapticflow_malformed_signals_total"] != 1 {
		t.Fatalf("expected malformed counter 1, got %v", obs.counters)
	}
}

func TestGTADamageSpeed(t *testing.T) {
	cases := map[float64]int{0: 0, -3: 0, 1: 3, 20: 4, 24: 4, 25: 5, 37.5: 6, 49: 6, 50: 7, 70: 8, 100: 9, 200: 10}
	for dmg, want := range cases {
		if got := GTADamageSpeed(dmg); got != want {
			t.Fatalf("GTADamageSpeed(%v) = %d, want %d", dmg, got, want)
		}
	}
}

func TestGTAVDamageUsesClockwiseAngle(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileGTAV}, nil)
	angle := 90.0
	sig := domain.EventSignal("gtav", time.Unix(0, 0), domain.GameEvent{Name: "player_damage", Angle: &angle, Damage: 30})

	cells, speed := triggerCells(singlePulse(t, m.Map(sig)))
	if !reflect.DeepEqual(cells, haptics.HardwareLayout.CellsFor(haptics.Right)) || speed != 5 {
		t.Fatalf("expected right side at 5, got %v %d", cells, speed)
	}

	zero := domain.EventSignal("gtav", time.Unix(0, 0), domain.GameEvent{Name: "player_damage", Angle: &angle})
	if p := m.Map(zero); p != nil {
		t.Fatalf("zero damage must not emit, got %+v", p)
	}
}

func TestAlyxRules(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileAlyx}, nil)
	angle := 90.0

	hurt := domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: "PlayerHurt", Angle: &angle, Health: 20})
	cells, speed := triggerCells(singlePulse(t, m.Map(hurt)))
	if !reflect.DeepEqual(cells, haptics.HardwareLayout.CellsFor(haptics.Left)) || speed != 8 {
		t.Fatalf("alyx 90 degrees is left; expected left side at 8, got %v %d", cells, speed)
	}

	shoot := domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: "PlayerShootWeapon", Weapon: "hlvr_weapon_shotgun"})
	p := singlePulse(t, m.Map(shoot))
	if _, speed := triggerCells(p); speed != 7 || p.Cooldown != 80*time.Millisecond {
		t.Fatalf("expected shotgun speed 7 with 80ms cooldown, got %d %s", speed, p.Cooldown)
	}

	healthy := domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: "PlayerHealth", Health: 80})
	if p := m.Map(healthy); p != nil {
		t.Fatalf("healthy player must not pulse, got %+v", p)
	}
	low := domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: "PlayerHealth", Health: 30})
	if cells, _ := triggerCells(singlePulse(t, m.Map(low))); !reflect.DeepEqual(cells, []int{2, 3}) {
		t.Fatalf("expected heartbeat on left front, got %v", cells)
	}
}

func TestScreenProfileHealthLatch(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileScreen, LowHealthPercent: 0.25}, nil)
	health := func(v float64) domain.Signal {
		return domain.EventSignal("screen", time.Unix(0, 0), domain.GameEvent{Name: "health_percent", Health: v})
	}

	if len(m.Map(health(0.2))) != 1 {
		t.Fatalf("dropping below threshold must fire low_health")
	}
	if m.Map(health(0.1)) != nil {
		t.Fatalf("still low must not re-fire")
	}
	if m.Map(health(0.6)) != nil {
		t.Fatalf("recovery emits nothing")
	}
	if len(m.Map(health(0.2))) != 1 {
		t.Fatalf("low_health must fire again after recovery")
	}
}

func TestScreenHitDirection(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileScreen}, nil)

	hit := domain.EventSignal("screen", time.Unix(0, 0), domain.GameEvent{Name: "hit_recorded", Intensity: 0.62, Direction: "back"})
	cells, speed := triggerCells(singlePulse(t, m.Map(hit)))
	if !reflect.DeepEqual(cells, []int{0, 1, 6, 7}) || speed != 6 {
		t.Fatalf("expected back cells at 6, got %v %d", cells, speed)
	}

	plain := domain.EventSignal("screen", time.Unix(0, 0), domain.GameEvent{Name: "hit_recorded"})
	cells, speed = triggerCells(singlePulse(t, m.Map(plain)))
	if !reflect.DeepEqual(cells, []int{2, 3, 4, 5}) || speed != 5 {
		t.Fatalf("expected front fallback at 5, got %v %d", cells, speed)
	}
}

func alyxEvent(name string, params map[string]string) domain.Signal {
	return domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: name, Params: params})
}

func TestAlyxLowHealthLatch(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileAlyx}, nil)
	health := func(v float64) domain.Signal {
		return domain.EventSignal("alyx", time.Unix(0, 0), domain.GameEvent{Name: "PlayerHealth", Health: v})
	}

	if m.Map(health(80)) != nil {
		t.Fatalf("healthy player must not pulse")
	}
	p := singlePulse(t, m.Map(health(30)))
	if p.Key != "PlayerHealthLow" || !m.Latched(latchLowHealth) {
		t.Fatalf("health 30 must latch low health, got key %s", p.Key)
	}
	if m.Map(health(25)) != nil {
		t.Fatalf("latched low health must not repeat")
	}
	if m.Map(health(40)) != nil || m.Latched(latchLowHealth) {
		t.Fatalf("health above 30 must clear the latch silently")
	}
	if len(m.Map(health(20))) != 1 {
		t.Fatalf("low health must fire again after recovery")
	}
	if len(m.Map(alyxEvent("PlayerHeal", nil))) != 1 || m.Latched(latchLowHealth) {
		t.Fatalf("heal must pulse and clear the latch")
	}
	if len(m.Map(health(20))) != 1 {
		t.Fatalf("low health must fire again after a heal")
	}
}

func TestAlyxPrimaryHandTracking(t *testing.T) {
	obs := &mockObs{}
	m := newEvents(t, EventsConfig{Profile: ProfileAlyx}, obs)
	leftCells := haptics.HardwareLayout.CellsFor(haptics.FrontUpperLeft, haptics.FrontLowerLeft)
	rightCells := haptics.HardwareLayout.CellsFor(haptics.FrontUpperRight, haptics.FrontLowerRight)
	pull := func(primary string) domain.Pulse {
		return singlePulse(t, m.Map(alyxEvent("PlayerGrabbityPull", map[string]string{"is_primary_hand": primary})))
	}

	if m.PrimaryHand() != "right" {
		t.Fatalf("primary hand must default to right")
	}
	p := pull("true")
	if cells, _ := triggerCells(p); !reflect.DeepEqual(cells, rightCells) || p.Key != "PlayerGrabbityPull_right" {
		t.Fatalf("primary pull with right primary must hit right, got %v %s", cells, p.Key)
	}
	if cells, _ := triggerCells(pull("false")); !reflect.DeepEqual(cells, leftCells) {
		t.Fatalf("off-hand pull must hit left, got %v", cells)
	}

	if got := m.Map(alyxEvent("PrimaryHandChanged", map[string]string{"is_primary_left": "true"})); got != nil {
		t.Fatalf("hand change must not pulse, got %+v", got)
	}
	if m.PrimaryHand() != "left" || obs.counters["hapticflow_malformed_signals_total"] != 0 {
		t.Fatalf("hand change must be tracked, not counted as malformed")
	}
	p = pull("true")
	if cells, _ := triggerCells(p); !reflect.DeepEqual(cells, leftCells) || p.Key != "PlayerGrabbityPull_left" {
		t.Fatalf("primary pull with left primary must hit left, got %v %s", cells, p.Key)
	}
	if cells, _ := triggerCells(pull("")); !reflect.DeepEqual(cells, leftCells) {
		t.Fatalf("missing flag means the primary hand, got %v", cells)
	}
}

func TestScreenHitKeyedByDetector(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfileScreen}, nil)
	hit := func(detector string) domain.Signal {
		return domain.EventSignal("screen", time.Unix(0, 0), domain.GameEvent{
			Name:   "hit_recorded",
			Params: map[string]string{"detector": detector},
		})
	}
	if p := singlePulse(t, m.Map(hit("vignette_left"))); p.Key != "hit_recorded:vignette_left" {
		t.Fatalf("unexpected key %s", p.Key)
	}
	if p := singlePulse(t, m.Map(hit("hp"))); p.Key != "hit_recorded:hp" {
		t.Fatalf("unexpected key %s", p.Key)
	}
	if got := m.Map(domain.EventSignal("screen", time.Unix(0, 0), domain.GameEvent{Name: "health_value", Health: 70})); got != nil {
		t.Fatalf("health_value carries no pulse, got %+v", got)
	}
}

func TestRuleOverridesAndDisabled(t *testing.T) {
	m := newEvents(t, EventsConfig{
		Profile:  ProfilePistolWhip,
		Disabled: []string{"melee_hit"},
		Rules: map[string]RuleConfig{
			"gun_fire": {Speed: 9, Cooldown: 120 * time.Millisecond},
			"zipline":  {Zones: []string{"upper"}, Speed: 3},
		},
	}, nil)

	p := singlePulse(t, m.Map(event("gun_fire", "left")))
	if cells, speed := triggerCells(p); !reflect.DeepEqual(cells, []int{1, 2}) || speed != 9 || p.Cooldown != 120*time.Millisecond {
		t.Fatalf("override should keep hand zones and change speed/cooldown, got %v %d %s", cells, speed, p.Cooldown)
	}
	if m.Map(event("melee_hit", "left")) != nil {
		t.Fatalf("disabled event must not map")
	}
	if cells, _ := triggerCells(singlePulse(t, m.Map(event("zipline", "")))); !reflect.DeepEqual(cells, []int{1, 2, 5, 6}) {
		t.Fatalf("custom rule should hit upper cells, got %v", cells)
	}

	if _, err := NewEvents(EventsConfig{Rules: map[string]RuleConfig{"x": {Zones: []string{"elbow"}}}}, haptics.HardwareLayout, &mockObs{}); err == nil {
		t.Fatalf("expected invalid zone to be rejected")
	}
}

func TestIntensityMultiplierScalesEventSpeed(t *testing.T) {
	m := newEvents(t, EventsConfig{Profile: ProfilePistolWhip, IntensityMultiplier: f64(0.5)}, nil)
	if _, speed := triggerCells(singlePulse(t, m.Map(event("death", "")))); speed != 5 {
		t.Fatalf("expected halved death speed 5, got %d", speed)
	}
	muted := newEvents(t, EventsConfig{Profile: ProfilePistolWhip, IntensityMultiplier: f64(0)}, nil)
	if p := muted.Map(event("death", "")); p != nil {
		t.Fatalf("intensity_multiplier 0 must mute events, got %+v", p)
	}
}

type mockObs struct {
	counters map[string]float64
	errors   []error
}

func (m *mockObs) LogInfo(string, ...ports.Field)                 {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) { m.errors = append(m.errors, err) }
func (m *mockObs) LogCritical(string, error, ...ports.Field)      {}
func (m *mockObs) IncCounter(name string, v float64) {
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64)                          {}
func (m *mockObs) SetGauge(string, float64)                                {}
func (m *mockObs) RecordDLQ(ports.WALEntryID, *domain.EventRecord, error) {}
