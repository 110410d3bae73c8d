package hapticflow

import (
	"github.com/ghalamif/HapticFlow/internal/adapters/statushub"
	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/ports"
)

// EventRecord is one accepted wire message as kept in the event history.
type EventRecord = domain.EventRecord

// Signal is what a source hands to its mapper.
type Signal = domain.Signal

// TelemetrySample is one tick of driving telemetry.
type TelemetrySample = domain.TelemetrySample

// GameEvent is a discrete game signal.
type GameEvent = domain.GameEvent

// Message is one newline-delimited JSON command for the daemon.
type Message = domain.Message

// ConnectionState reports whether the daemon socket is open.
type ConnectionState = domain.ConnectionState

// Source streams signals from a game integration into its mapper.
type Source = ports.Source

// FrameSource captures frames for screen integrations.
type FrameSource = ports.FrameSource

// CommandSender delivers messages to the daemon.
type CommandSender = ports.CommandSender

// Sink persists batches of event records.
type Sink = ports.Sink

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the event history journal.
type WAL = ports.WAL

type WALStats = ports.WALStats

type WALEntryID = ports.WALEntryID

// RecordQueue buffers journaled records ahead of the sink.
type RecordQueue = ports.RecordQueue

type QueuedRecord = ports.QueuedRecord

// Message constructors.
var (
	Trigger        = domain.Trigger
	Stop           = domain.Stop
	Ping           = domain.Ping
	ForwardedEvent = domain.ForwardedEvent
)

// Status is the /status document and websocket payload.
type Status = statushub.Snapshot

// SourceStatus describes one integration in Status.
type SourceStatus = statushub.SourceStatus
