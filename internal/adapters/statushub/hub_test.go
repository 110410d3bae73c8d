package statushub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

type mockObs struct{}

func (mockObs) LogInfo(string, ...ports.Field)                         {}
func (mockObs) LogError(string, error, ...ports.Field)                  {}
func (mockObs) LogCritical(string, error, ...ports.Field)               {}
func (mockObs) IncCounter(string, float64)                              {}
func (mockObs) ObserveLatency(string, float64)                          {}
func (mockObs) SetGauge(string, float64)                                {}
func (mockObs) RecordDLQ(ports.WALEntryID, *domain.EventRecord, error) {}

type fixedRecent []*domain.EventRecord

func (f fixedRecent) Snapshot() []*domain.EventRecord { return f }

func TestStatusEndpoint(t *testing.T) {
	rec := &domain.EventRecord{ID: uuid.New(), Source: "pistolwhip", Key: "gun_fire_right", Command: "trigger", Cell: 5, Speed: 5}
	h := New(fixedRecent{rec}, mockObs{})
	h.SetConnection(domain.Disconnected, errors.New("dial 127.0.0.1:5050: refused"))
	h.SetSource(SourceStatus{Name: "pistolwhip", Transport: "logtail", Mapper: "pistolwhip", Running: true})

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Connection != "disconnected" || !strings.Contains(snap.LastError, "refused") {
		t.Fatalf("unexpected connection fields %+v", snap)
	}
	if len(snap.Sources) != 1 || !snap.Sources[0].Running || len(snap.Recent) != 1 || snap.Recent[0].Cell != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", resp.StatusCode)
	}
}

func readSnapshot(t *testing.T, c *websocket.Conn) Snapshot {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap Snapshot
	if err := c.ReadJSON(&snap); err != nil {
		t.Fatalf("read ws: %v", err)
	}
	return snap
}

func TestWebsocketPushesSnapshots(t *testing.T) {
	h := New(nil, mockObs{})
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if first := readSnapshot(t, conn); first.Connection != "disconnected" || first.Event != nil {
		t.Fatalf("unexpected initial snapshot %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.SetConnection(domain.Connected, nil)
	if snap := readSnapshot(t, conn); snap.Connection != "connected" {
		t.Fatalf("expected connected snapshot, got %+v", snap)
	}

	h.Publish(&domain.EventRecord{Command: "pistolwhip_event", Event: "death", Priority: 5, Cell: -1})
	snap := readSnapshot(t, conn)
	if snap.Event == nil || snap.Event.Event != "death" {
		t.Fatalf("expected event snapshot, got %+v", snap)
	}
}

func TestStartStop(t *testing.T) {
	h := New(nil, mockObs{})
	if err := h.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Start("127.0.0.1:0"); err == nil {
		t.Fatalf("second start must fail")
	}
	resp, err := http.Get("http://" + h.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := h.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
