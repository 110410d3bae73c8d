package pipeline

import (
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
	dlq      int
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}
func (m *mockObs) RecordDLQ(ports.WALEntryID, *domain.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq++
}

func (m *mockObs) count(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []domain.Message
	gate chan struct{}
}

func (s *recordingSender) Send(msg domain.Message) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSender) State() domain.ConnectionState { return domain.Connected }

func (s *recordingSender) sent() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.msgs...)
}

type stubSource struct {
	mu      sync.Mutex
	out     chan<- domain.Signal
	started int
	stopped int
}

func (s *stubSource) Start(out chan<- domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
	s.started++
	return nil
}

func (s *stubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *stubSource) emit(sig domain.Signal) {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	out <- sig
}

type countingLease struct {
	mu   sync.Mutex
	refs int
}

func (l *countingLease) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs++
}

func (l *countingLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs--
}

func (l *countingLease) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

type recordingSink struct {
	mu      sync.Mutex
	records []*domain.EventRecord
	fail    error
}

func (s *recordingSink) WriteBatch(records []*domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
