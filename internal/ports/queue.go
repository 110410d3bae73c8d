package ports

import "github.com/ghalamif/HapticFlow/internal/domain"

type QueuedRecord struct {
	ID     WALEntryID
	Record *domain.EventRecord
}

type RecordQueue interface {
	Enqueue(id WALEntryID, r *domain.EventRecord) bool
	DequeueBatch(max int) []QueuedRecord
	Len() int
}
