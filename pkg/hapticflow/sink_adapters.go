package hapticflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

// ErrChannelSinkClosed rejects writes after the close func ran.
var ErrChannelSinkClosed = errors.New("hapticflow: channel sink closed")

// RecordBatchSink is invoked with ordered batches of history records.
type RecordBatchSink func([]EventRecord) error

// NewCallbackSink wraps fn as a Sink. An error from fn leaves the batch in
// the journal for the next attempt.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink delivers each batch on the returned channel. Writes block
// while the buffer is full; call the returned func once the runtime stopped.
func NewChannelSink(name string, buffer int) (Sink, <-chan []EventRecord, func()) {
	if name == "" {
		name = "channel"
	}
	ch := make(chan []EventRecord, max(buffer, 0))
	s := &channelSink{name: name, ch: ch, closed: make(chan struct{})}
	return s, ch, s.close
}

type callbackSink struct {
	name string
	fn   RecordBatchSink
}

func (s *callbackSink) WriteBatch(records []*domain.EventRecord) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(copyBatch(records))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []EventRecord
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(records []*domain.EventRecord) error {
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(records) == 0 {
		return nil
	}
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- copyBatch(records):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

// copyBatch detaches records from the journal's buffers.
func copyBatch(records []*domain.EventRecord) []EventRecord {
	out := make([]EventRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}
