package ports

import "github.com/ghalamif/HapticFlow/internal/domain"

// Sink persists batches of emitted event records.
type Sink interface {
	WriteBatch(records []*domain.EventRecord) error
	Name() string
}
