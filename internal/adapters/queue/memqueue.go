package queue

import (
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// MemQueue is a bounded FIFO of journaled event records backed by a ring.
type MemQueue struct {
	mu   sync.Mutex
	ring []ports.QueuedRecord
	head int
	n    int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{ring: make([]ports.QueuedRecord, capacity)}
}

func (q *MemQueue) Enqueue(id ports.WALEntryID, r *domain.EventRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.n)%len(q.ring)] = ports.QueuedRecord{ID: id, Record: r}
	q.n++
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	if max <= 0 || max > q.n {
		max = q.n
	}
	out := make([]ports.QueuedRecord, max)
	for i := range out {
		slot := (q.head + i) % len(q.ring)
		out[i] = q.ring[slot]
		q.ring[slot] = ports.QueuedRecord{}
	}
	q.head = (q.head + max) % len(q.ring)
	q.n -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *MemQueue) Cap() int { return len(q.ring) }

var _ ports.RecordQueue = (*MemQueue)(nil)
