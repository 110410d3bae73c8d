package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventRecord is the history entry for one accepted wire message.
type EventRecord struct {
	ID       uuid.UUID `json:"id"`
	Session  uuid.UUID `json:"session"`
	Source   string    `json:"source"`
	Key      string    `json:"key"`
	Command  string    `json:"cmd"`
	Cell     int       `json:"cell"`
	Speed    int       `json:"speed"`
	Event    string    `json:"event,omitempty"`
	Hand     string    `json:"hand,omitempty"`
	Priority int       `json:"priority"`
	At       time.Time `json:"ts"`
}

// NewEventRecord derives a record from an accepted message. Non-trigger
// messages carry cell -1.
func NewEventRecord(session uuid.UUID, source, key string, msg Message, at time.Time) *EventRecord {
	rec := &EventRecord{
		ID:      uuid.New(),
		Session: session,
		Source:  source,
		Key:     key,
		Cell:    -1,
		At:      at,
	}
	switch msg.Kind {
	case KindTrigger:
		rec.Command = string(KindTrigger)
		rec.Cell = msg.Command.Cell
		rec.Speed = msg.Command.Speed
	case KindGameEvent:
		rec.Command = msg.Cmd
		if rec.Command == "" {
			rec.Command = DefaultEventCommand
		}
		rec.Event = msg.Event
		rec.Hand = msg.Hand
		rec.Priority = msg.Priority
	default:
		rec.Command = string(msg.Kind)
	}
	return rec
}
