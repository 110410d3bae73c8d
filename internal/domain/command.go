package domain

import (
	"encoding/json"
	"fmt"
)

// CellCount is the number of independently addressable actuators on the vest.
const CellCount = 8

// MaxSpeed is the strongest level the daemon accepts.
const MaxSpeed = 10

// HapticCommand drives one cell at one speed. Speed 0 means "do not emit" and
// never reaches the wire.
type HapticCommand struct {
	Cell  int `json:"cell"`
	Speed int `json:"speed"`
}

func (c HapticCommand) Valid() bool {
	return c.Cell >= 0 && c.Cell < CellCount && c.Speed >= 1 && c.Speed <= MaxSpeed
}

// MessageKind enumerates the daemon commands the bridge produces.
type MessageKind string

const (
	KindTrigger   MessageKind = "trigger"
	KindStop      MessageKind = "stop"
	KindPing      MessageKind = "ping"
	KindGameEvent MessageKind = "game_event"
)

// DefaultEventCommand is the cmd name used for forwarded game events.
const DefaultEventCommand = "pistolwhip_event"

// Message is a single newline-delimited JSON line for the daemon.
type Message struct {
	Kind     MessageKind
	Command  HapticCommand
	Cmd      string // wire cmd for KindGameEvent
	Event    string
	Hand     string
	Priority int
}

func Trigger(cell, speed int) Message {
	return Message{Kind: KindTrigger, Command: HapticCommand{Cell: cell, Speed: speed}}
}

func Stop() Message { return Message{Kind: KindStop} }

func Ping() Message { return Message{Kind: KindPing} }

// ForwardedEvent builds the game-event variant. An empty cmd falls back to
// DefaultEventCommand.
func ForwardedEvent(cmd, event, hand string, priority int) Message {
	if cmd == "" {
		cmd = DefaultEventCommand
	}
	return Message{Kind: KindGameEvent, Cmd: cmd, Event: event, Hand: hand, Priority: priority}
}

type triggerWire struct {
	Cmd   string `json:"cmd"`
	Cell  int    `json:"cell"`
	Speed int    `json:"speed"`
}

type bareWire struct {
	Cmd string `json:"cmd"`
}

type eventWire struct {
	Cmd      string `json:"cmd"`
	Event    string `json:"event"`
	Hand     string `json:"hand,omitempty"`
	Priority int    `json:"priority"`
}

// MarshalJSON emits the exact field layout the daemon parses.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindTrigger:
		return json.Marshal(triggerWire{Cmd: string(KindTrigger), Cell: m.Command.Cell, Speed: m.Command.Speed})
	case KindStop, KindPing:
		return json.Marshal(bareWire{Cmd: string(m.Kind)})
	case KindGameEvent:
		cmd := m.Cmd
		if cmd == "" {
			cmd = DefaultEventCommand
		}
		return json.Marshal(eventWire{Cmd: cmd, Event: m.Event, Hand: m.Hand, Priority: m.Priority})
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

// Line returns the framed wire form, terminated by '\n'.
func (m Message) Line() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Valid reports whether the message may be written. Triggers must carry an
// in-range cell and a nonzero speed.
func (m Message) Valid() bool {
	switch m.Kind {
	case KindTrigger:
		return m.Command.Valid()
	case KindStop, KindPing:
		return true
	case KindGameEvent:
		return m.Event != ""
	default:
		return false
	}
}

func (m Message) String() string {
	switch m.Kind {
	case KindTrigger:
		return fmt.Sprintf("trigger cell=%d speed=%d", m.Command.Cell, m.Command.Speed)
	case KindGameEvent:
		return fmt.Sprintf("%s event=%s hand=%s priority=%d", m.Cmd, m.Event, m.Hand, m.Priority)
	default:
		return string(m.Kind)
	}
}
