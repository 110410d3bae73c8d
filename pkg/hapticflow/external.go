package hapticflow

import (
	"errors"
	"sync"
	"time"

	"github.com/ghalamif/HapticFlow/internal/app/pipeline"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// ErrSourceClosed is returned when publishing to a source whose integration
// is not running.
var ErrSourceClosed = errors.New("hapticflow: source not running")

// ErrQueueFull indicates the integration's signal buffer rejected the signal.
var ErrQueueFull = errors.New("hapticflow: signal buffer full")

// ErrWALFull indicates the history journal is at capacity and
// history.policy.on_wal_full is not "block".
var ErrWALFull = pipeline.ErrJournalFull

// ExternalSource lets Go callers push events or telemetry into an
// integration with transport "external". Register it with WithSource.
type ExternalSource struct {
	name string
	now  func() time.Time

	mu  sync.Mutex
	out chan<- domain.Signal
}

func NewExternalSource(name string) *ExternalSource {
	return &ExternalSource{name: name, now: time.Now}
}

func (s *ExternalSource) Start(out chan<- domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return errors.New("external source already started")
	}
	s.out = out
	return nil
}

func (s *ExternalSource) Stop() error {
	s.mu.Lock()
	s.out = nil
	s.mu.Unlock()
	return nil
}

// Publish hands sig to the mapper without blocking. A zero At is stamped
// with the current time.
func (s *ExternalSource) Publish(sig Signal) error {
	if sig.Source == "" {
		sig.Source = s.name
	}
	if sig.At.IsZero() {
		sig.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return ErrSourceClosed
	}
	select {
	case s.out <- sig:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *ExternalSource) PublishEvent(ev GameEvent) error {
	return s.Publish(domain.EventSignal(s.name, s.now(), ev))
}

func (s *ExternalSource) PublishTelemetry(t TelemetrySample) error {
	return s.Publish(domain.TelemetrySignal(s.name, s.now(), t))
}

var _ ports.Source = (*ExternalSource)(nil)
