package sink

import (
	"sync"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// RecentRing holds the last N emitted records in memory for the status
// surface. It doubles as the sink for the "none" history backend.
type RecentRing struct {
	mu   sync.Mutex
	buf  []*domain.EventRecord
	next int
	full bool
}

func NewRecentRing(size int) *RecentRing {
	if size <= 0 {
		size = 50
	}
	return &RecentRing{buf: make([]*domain.EventRecord, size)}
}

func (r *RecentRing) Name() string { return "recent" }

func (r *RecentRing) Add(rec *domain.EventRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *RecentRing) WriteBatch(records []*domain.EventRecord) error {
	for _, rec := range records {
		r.Add(rec)
	}
	return nil
}

// Snapshot returns the held records, newest first.
func (r *RecentRing) Snapshot() []*domain.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]*domain.EventRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}

var _ ports.Sink = (*RecentRing)(nil)
