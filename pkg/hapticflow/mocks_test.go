package hapticflow

import (
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)                         {}
func (s *stubObservability) LogError(string, error, ...Field)                 {}
func (s *stubObservability) LogCritical(string, error, ...Field)              {}
func (s *stubObservability) IncCounter(string, float64)                       {}
func (s *stubObservability) ObserveLatency(string, float64)                   {}
func (s *stubObservability) SetGauge(string, float64)                         {}
func (s *stubObservability) RecordDLQ(WALEntryID, *domain.EventRecord, error) {}

type stubSink struct{}

func (s *stubSink) WriteBatch([]*domain.EventRecord) error { return nil }
func (s *stubSink) Name() string                           { return "stub" }

type stubQueue struct{}

func (s *stubQueue) Enqueue(WALEntryID, *domain.EventRecord) bool { return true }
func (s *stubQueue) DequeueBatch(int) []QueuedRecord              { return nil }
func (s *stubQueue) Len() int                                     { return 0 }

type stubWAL struct{}

func (s *stubWAL) Append(*domain.EventRecord) (WALEntryID, error) { return 0, nil }
func (s *stubWAL) Iterate(WALEntryID, func(WALEntryID, *domain.EventRecord) error) error {
	return nil
}
func (s *stubWAL) Commit(WALEntryID) error  { return nil }
func (s *stubWAL) TruncateCommitted() error { return nil }
func (s *stubWAL) Stats() WALStats          { return WALStats{} }
func (s *stubWAL) Close() error             { return nil }

// leasedSender records messages and counts leases like the daemon connection.
type leasedSender struct {
	mu   sync.Mutex
	msgs []domain.Message
	refs int
	peak int
}

func (s *leasedSender) Send(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *leasedSender) State() domain.ConnectionState { return domain.Connected }

func (s *leasedSender) Acquire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	if s.refs > s.peak {
		s.peak = s.refs
	}
}

func (s *leasedSender) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
}

func (s *leasedSender) snapshot() ([]domain.Message, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.msgs...), s.refs
}

var (
	_ ports.Observability = (*stubObservability)(nil)
	_ ports.WAL           = (*stubWAL)(nil)
	_ ports.RecordQueue   = (*stubQueue)(nil)
)
