package pipeline

import (
	"testing"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

func TestDispatcherPreservesOrderAndSendsStop(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatchPolicy{QueueLen: 8}, &mockObs{})
	d.Start()

	for cell := 0; cell < 4; cell++ {
		if !d.Enqueue(domain.Trigger(cell, 5)) {
			t.Fatalf("enqueue %d failed", cell)
		}
	}
	d.StopAll(true)

	msgs := sender.sent()
	if len(msgs) != 5 {
		t.Fatalf("expected 4 triggers and a stop, got %d", len(msgs))
	}
	for cell := 0; cell < 4; cell++ {
		if msgs[cell].Command.Cell != cell {
			t.Fatalf("messages out of order: %v", msgs)
		}
	}
	if msgs[4].Kind != domain.KindStop {
		t.Fatalf("expected trailing stop, got %v", msgs[4])
	}
	if d.Enqueue(domain.Trigger(1, 1)) {
		t.Fatalf("enqueue after StopAll must fail")
	}
	d.StopAll(true)
	if len(sender.sent()) != 5 {
		t.Fatalf("second StopAll must be a no-op")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	gate := make(chan struct{})
	sender := &recordingSender{gate: gate}
	obs := &mockObs{}
	d := NewDispatcher(sender, DispatchPolicy{QueueLen: 1, OnQueueFull: "drop"}, obs)

	if !d.Enqueue(domain.Trigger(0, 5)) {
		t.Fatalf("first enqueue must fit")
	}
	if d.Enqueue(domain.Trigger(1, 5)) {
		t.Fatalf("second enqueue must be dropped")
	}
	if got := obs.count("hapticflow_commands_dropped_total"); got != 1 {
		t.Fatalf("expected 1 drop, got %v", got)
	}

	d.Start()
	close(gate)
	d.StopAll(false)
	if msgs := sender.sent(); len(msgs) != 1 || msgs[0].Command.Cell != 0 {
		t.Fatalf("unexpected sent messages %v", msgs)
	}
}

func TestDispatcherBlockWaitsForRoom(t *testing.T) {
	gate := make(chan struct{})
	sender := &recordingSender{gate: gate}
	d := NewDispatcher(sender, DispatchPolicy{QueueLen: 1, OnQueueFull: "block", EnqueueTimeout: time.Second}, &mockObs{})
	d.Start()

	d.Enqueue(domain.Trigger(0, 5)) // taken by the sender, blocked on gate
	waitFor(t, "sender to pick up the first message", func() bool { return d.Len() == 0 })
	d.Enqueue(domain.Trigger(1, 5)) // fills the queue

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	if !d.Enqueue(domain.Trigger(2, 5)) {
		t.Fatalf("block policy must wait for room")
	}
	d.StopAll(false)
	if got := len(sender.sent()); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}

	timeout := NewDispatcher(&recordingSender{}, DispatchPolicy{QueueLen: 1, OnQueueFull: "block", EnqueueTimeout: 5 * time.Millisecond}, &mockObs{})
	timeout.Enqueue(domain.Trigger(0, 5))
	if timeout.Enqueue(domain.Trigger(1, 5)) {
		t.Fatalf("enqueue must give up after the timeout")
	}
}
