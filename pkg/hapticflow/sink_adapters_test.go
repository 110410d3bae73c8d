package hapticflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/HapticFlow/internal/domain"
)

func sampleRecord(key string) *domain.EventRecord {
	return &domain.EventRecord{
		ID:      uuid.New(),
		At:      time.Unix(1, 0),
		Source:  "pistolwhip",
		Key:     key,
		Command: "trigger",
		Cell:    3,
		Speed:   7,
	}
}

func TestNewCallbackSink(t *testing.T) {
	var received []EventRecord
	sink := NewCallbackSink("cb", func(batch []EventRecord) error {
		received = append(received, batch...)
		return nil
	})

	input := sampleRecord("gun_fire_right")
	if err := sink.WriteBatch([]*domain.EventRecord{input}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}
	got := received[0]
	if got.ID != input.ID || got.Key != input.Key || got.Cell != 3 {
		t.Fatalf("mismatched record payload: %+v vs %+v", got, input)
	}
	input.Cell = 5
	if received[0].Cell != 3 {
		t.Fatalf("expected records to be copied")
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %q", sink.Name())
	}
	if err := sink.WriteBatch([]*domain.EventRecord{sampleRecord("x")}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := sampleRecord("cell:3")
	errCh := make(chan error, 1)

	go func() {
		errCh <- sink.WriteBatch([]*domain.EventRecord{input})
	}()

	var batch []EventRecord
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].Key != input.Key {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch([]*domain.EventRecord{input}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
}
