package opcua

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

func newTestSource(t *testing.T) *Source {
	t.Helper()
	c, err := NewSource("rig", Config{
		Endpoint: "opc.tcp://localhost:4840",
		Nodes: []NodeConfig{
			{NodeID: "ns=2;s=Brake", Field: "brake"},
			{NodeID: "ns=2;s=Speed", Field: "speed", Scale: 3.6},
			{NodeID: "ns=2;s=ABS", Field: "abs"},
		},
	}, &mockObs{})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return c
}

func item(handle uint32, v any, ts time.Time) *ua.MonitoredItemNotification {
	return &ua.MonitoredItemNotification{
		ClientHandle: handle,
		Value:        &ua.DataValue{Value: ua.MustVariant(v), ServerTimestamp: ts},
	}
}

func TestApplyBuildsTelemetrySnapshot(t *testing.T) {
	c := newTestSource(t)
	ts := time.Unix(1700000000, 0)

	sig, ok := c.apply(&ua.DataChangeNotification{MonitoredItems: []*ua.MonitoredItemNotification{
		item(1, float32(80), ts),
		item(2, float64(33.3), ts),
		item(3, true, ts),
	}})
	if !ok {
		t.Fatalf("expected a signal")
	}
	s := sig.Telemetry
	if sig.Source != "rig" || !sig.At.Equal(ts) || s == nil {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if s.Brake != 80 || s.Speed < 119.8 || s.Speed > 119.9 || !s.ABSActive {
		t.Fatalf("unexpected snapshot %+v", s)
	}

	// later batches update only the changed fields
	sig, _ = c.apply(&ua.DataChangeNotification{MonitoredItems: []*ua.MonitoredItemNotification{item(1, int32(0), ts)}})
	if sig.Telemetry.Brake != 0 || !sig.Telemetry.ABSActive {
		t.Fatalf("expected partial update, got %+v", sig.Telemetry)
	}
}

func TestApplySkipsUnknownAndUnsupported(t *testing.T) {
	c := newTestSource(t)
	obs := c.obs.(*mockObs)

	_, ok := c.apply(&ua.DataChangeNotification{MonitoredItems: []*ua.MonitoredItemNotification{
		item(9, float64(1), time.Now()),
		item(1, "fast", time.Now()),
	}})
	if ok {
		t.Fatalf("expected no signal")
	}
	if obs.counters["hapticflow_malformed_signals_total"] != 1 {
		t.Fatalf("expected unsupported value to be counted, got %v", obs.counters)
	}
}

func TestNumericWidensVariants(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{true, 1}, {false, 0}, {int8(-3), -3}, {uint16(7), 7}, {int64(12), 12}, {float32(0.5), 0.5},
	}
	for _, tc := range cases {
		got, ok := numeric(ua.MustVariant(tc.in))
		if !ok || got != tc.want {
			t.Fatalf("numeric(%T %v) = %v, %v", tc.in, tc.in, got, ok)
		}
	}
	if _, ok := numeric(ua.MustVariant("fast")); ok {
		t.Fatalf("strings must not widen")
	}
	if _, ok := numeric(nil); ok {
		t.Fatalf("nil variant must not widen")
	}
}

func TestClientOptionsAndStopWithoutStart(t *testing.T) {
	s := newTestSource(t)
	if n := len(clientOptions(s.cfg)); n != 5 {
		t.Fatalf("expected 5 client options, got %d", n)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []Config{
		{Nodes: []NodeConfig{{NodeID: "ns=2;s=Brake", Field: "brake"}}},
		{Endpoint: "opc.tcp://x"},
		{Endpoint: "opc.tcp://x", Nodes: []NodeConfig{{NodeID: "ns=2;s=Brake", Field: "clutch"}}},
		{Endpoint: "opc.tcp://x", Nodes: []NodeConfig{{NodeID: "not a node", Field: "brake"}}},
		{Endpoint: "opc.tcp://x", SecurityMode: "paranoid", Nodes: []NodeConfig{{NodeID: "ns=2;s=Brake", Field: "brake"}}},
	}
	for i, cfg := range cases {
		if _, err := NewSource("x", cfg, &mockObs{}); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

type mockObs struct {
	counters map[string]float64
}

func (m *mockObs) LogInfo(string, ...ports.Field)             {}
func (m *mockObs) LogError(string, error, ...ports.Field)    {}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(name string, v float64) {
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64)                          {}
func (m *mockObs) SetGauge(string, float64)                                {}
func (m *mockObs) RecordDLQ(ports.WALEntryID, *domain.EventRecord, error) {}
