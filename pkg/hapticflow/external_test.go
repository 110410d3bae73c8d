package hapticflow

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

func TestExternalSourcePublish(t *testing.T) {
	src := NewExternalSource("sdk")
	at := time.Unix(100, 0)
	src.now = func() time.Time { return at }

	if err := src.PublishEvent(GameEvent{Name: "death"}); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed before start, got %v", err)
	}

	out := make(chan domain.Signal, 1)
	if err := src.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := src.Start(out); err == nil {
		t.Fatalf("second start must fail")
	}

	if err := src.PublishTelemetry(TelemetrySample{Speed: 40, MaxSpeed: 100}); err != nil {
		t.Fatalf("publish telemetry: %v", err)
	}
	if err := src.PublishEvent(GameEvent{Name: "death"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull with a full buffer, got %v", err)
	}

	sig := <-out
	if sig.Source != "sdk" || !sig.At.Equal(at) || sig.Telemetry == nil || sig.Telemetry.Speed != 40 {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	if err := src.Publish(Signal{Event: &GameEvent{Name: "heal"}}); err != nil {
		t.Fatalf("publish raw signal: %v", err)
	}
	if sig := <-out; sig.Source != "sdk" || sig.At.IsZero() {
		t.Fatalf("expected source and time to be stamped, got %+v", sig)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := src.PublishEvent(GameEvent{Name: "death"}); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed after stop, got %v", err)
	}
	if err := src.Start(out); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
}
