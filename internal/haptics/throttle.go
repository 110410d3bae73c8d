package haptics

import (
	"sync"
	"time"
)

// Throttle remembers when each key last fired and rejects keys that fire
// again inside their cooldown.
type Throttle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{last: make(map[string]time.Time)}
}

// ShouldFire records now for key and returns true when the key is new or its
// cooldown has elapsed. A rejected call leaves the stored time untouched.
func (t *Throttle) ShouldFire(key string, now time.Time, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[key]; ok && now.Sub(prev) < cooldown {
		return false
	}
	t.last[key] = now
	return true
}

// Prune drops keys that last fired before olderThan and returns how many
// were removed.
func (t *Throttle) Prune(olderThan time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, at := range t.last {
		if at.Before(olderThan) {
			delete(t.last, k)
			n++
		}
	}
	return n
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
