package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

var errIncompleteRecord = errors.New("record has no id or command")

// RunIngest moves queued records into the sink and commits the journal
// behind each written batch. It returns once ctx is done and the queue has
// been flushed once more.
func RunIngest(ctx context.Context, wal ports.WAL, q ports.RecordQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	g := &ingester{wal: wal, q: q, sink: sink, pol: pol, obs: obs}
	for {
		select {
		case <-ctx.Done():
			for g.backlog() {
				if !g.step() {
					return
				}
			}
			return
		default:
		}

		if !g.backlog() {
			select {
			case <-ctx.Done():
			case <-time.After(idle):
			}
			continue
		}
		if !g.step() {
			select {
			case <-ctx.Done():
			case <-time.After(idle):
			}
		}
	}
}

// ingester holds a rejected batch until the sink takes it. Later records
// stay queued behind it, so the journal watermark never passes a record the
// sink has not acknowledged.
type ingester struct {
	wal  ports.WAL
	q    ports.RecordQueue
	sink ports.Sink
	pol  ports.Policy
	obs  ports.Observability

	pending      []*domain.EventRecord
	pendingMaxID ports.WALEntryID
}

func (g *ingester) backlog() bool { return g.pending != nil || g.q.Len() > 0 }

// step writes one batch. It reports false when the sink rejected it; the
// batch is retried on the next step and replayed from the journal after a
// restart.
func (g *ingester) step() bool {
	out, maxID := g.pending, g.pendingMaxID
	if out == nil {
		batch := g.q.DequeueBatch(g.pol.MaxBatchSize)
		if len(batch) == 0 {
			return true
		}
		out = make([]*domain.EventRecord, 0, len(batch))
		for _, item := range batch {
			if item.ID > maxID {
				maxID = item.ID
			}
			if item.Record == nil || item.Record.ID == uuid.Nil || item.Record.Command == "" {
				g.obs.RecordDLQ(item.ID, item.Record, errIncompleteRecord)
				continue
			}
			out = append(out, item.Record)
		}
	}

	if len(out) > 0 {
		start := time.Now()
		if err := g.sink.WriteBatch(out); err != nil {
			g.obs.LogError("sink_write_failed", err, ports.Field{Key: "sink", Value: g.sink.Name()})
			g.pending, g.pendingMaxID = out, maxID
			return false
		}
		g.obs.ObserveLatency("hapticflow_history_sink_latency_seconds", time.Since(start).Seconds())
		g.obs.IncCounter("hapticflow_history_ingested_total", float64(len(out)))
	}
	g.pending, g.pendingMaxID = nil, 0

	if err := g.wal.Commit(maxID); err != nil {
		g.obs.LogError("wal_commit_failed", err)
		return true
	}
	if g.pol.MaxWALSizeBytes > 0 && g.wal.Stats().SizeBytes >= g.pol.MaxWALSizeBytes/2 {
		if err := g.wal.TruncateCommitted(); err != nil {
			g.obs.LogError("wal_compact_failed", err)
		}
	}
	return true
}
