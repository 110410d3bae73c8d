package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// ErrHistoryClosed is returned by Record after Stop.
var ErrHistoryClosed = errors.New("history closed")

// History journals every emitted record (WAL → bounded queue → sink) so the
// event log survives restarts and slow databases. Recording never blocks the
// dispatch path: a full inbox drops the record and counts it.
type History struct {
	wal  ports.WAL
	q    ports.RecordQueue
	sink ports.Sink
	pol  ports.Policy
	obs  ports.Observability

	mu      sync.RWMutex
	in      chan *domain.EventRecord
	started bool
	closed  bool

	cancel       context.CancelFunc
	recorderDone chan struct{}
	ingestDone   chan struct{}
}

func NewHistory(wal ports.WAL, q ports.RecordQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) *History {
	buf := pol.MaxQueueLen
	if buf <= 0 || buf > 4096 {
		buf = 4096
	}
	return &History{wal: wal, q: q, sink: sink, pol: pol, obs: obs, in: make(chan *domain.EventRecord, buf)}
}

// Start replays uncommitted journal entries into the queue, then starts the
// recorder and ingest loops.
func (h *History) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return errors.New("history already started")
	}
	if err := ReplayWAL(h.wal, h.q, h.pol, h.obs); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.recorderDone = make(chan struct{})
	h.ingestDone = make(chan struct{})
	h.started = true

	go func() {
		defer close(h.recorderDone)
		runRecorder(h.in, h.wal, h.q, h.pol, h.obs)
	}()
	go func() {
		defer close(h.ingestDone)
		RunIngest(ctx, h.wal, h.q, h.sink, h.pol, h.obs)
	}()
	return nil
}

func (h *History) Record(rec *domain.EventRecord) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHistoryClosed
	}
	if h.pol.OnWALFull != "block" && h.pol.MaxWALSizeBytes > 0 && h.wal.Stats().SizeBytes >= h.pol.MaxWALSizeBytes {
		h.obs.IncCounter("hapticflow_history_dropped_total", 1)
		return ErrJournalFull
	}
	select {
	case h.in <- rec:
		return nil
	default:
		h.obs.IncCounter("hapticflow_history_dropped_total", 1)
		return ErrHistoryFull
	}
}

var (
	// ErrHistoryFull is returned when the recorder inbox is full.
	ErrHistoryFull = errors.New("history inbox full")
	// ErrJournalFull is returned when the journal is at max_wal_size_bytes
	// and on_wal_full is not "block".
	ErrJournalFull = errors.New("history journal full")
)

// Stop drains the inbox into the journal, flushes the queue to the sink and
// closes the journal.
func (h *History) Stop() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.in)
	started := h.started
	h.mu.Unlock()

	if started {
		<-h.recorderDone
		h.cancel()
		<-h.ingestDone
	}
	return h.wal.Close()
}

func (h *History) Stats() ports.WALStats { return h.wal.Stats() }

func (h *History) QueueLen() int { return h.q.Len() }

func runRecorder(in <-chan *domain.EventRecord, wal ports.WAL, q ports.RecordQueue, pol ports.Policy, obs ports.Observability) {
	for rec := range in {
		if !waitForWALCapacity(wal, pol, obs) {
			obs.IncCounter("hapticflow_history_dropped_total", 1)
			continue
		}

		id, err := wal.Append(rec)
		if err != nil {
			obs.LogCritical("wal_append_failed", err)
			continue
		}

		if !enqueueWithPolicy(q, id, rec, pol, obs) {
			obs.IncCounter("hapticflow_history_dropped_total", 1)
		}
	}
}

func waitForWALCapacity(wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			time.Sleep(sleep)
		case "drop":
			obs.LogError("wal_full_drop", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("wal_policy_invalid", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(q ports.RecordQueue, id ports.WALEntryID, r *domain.EventRecord, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(id, r); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			time.Sleep(sleep)
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}

// ReplayWAL re-enqueues journal entries the sink never acknowledged.
func ReplayWAL(wal ports.WAL, q ports.RecordQueue, pol ports.Policy, obs ports.Observability) error {
	stats := wal.Stats()
	if stats.LatestAppended == 0 {
		return nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return nil
	}

	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	var replayed int
	err := wal.Iterate(start, func(id ports.WALEntryID, rec *domain.EventRecord) error {
		for {
			if q.Enqueue(id, rec) {
				replayed++
				return nil
			}
			switch pol.OnQueueFull {
			case "drop", "reject":
				return fmt.Errorf("queue full during journal replay")
			default:
				time.Sleep(sleep)
			}
		}
	})
	if err != nil {
		return err
	}
	if replayed > 0 {
		obs.LogInfo("wal_replay_complete",
			ports.Field{Key: "records", Value: replayed},
			ports.Field{Key: "from_id", Value: start})
	}
	return nil
}
