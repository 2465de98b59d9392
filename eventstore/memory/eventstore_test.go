package memory_test

import (
	"context"
	"errors"
	"testing"

	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/eventstore/memory"
	"github.com/terraskye/formations/eventstore/storetest"
	"github.com/terraskye/formations/fixtures"
)

func TestMemoryStore(t *testing.T) {
	storetest.EventStore(t, "memory", func(t *testing.T, decode es.Decoder) es.EventStore {
		return memory.NewMemoryStore(decode)
	})
}

func TestMemoryStore_Records(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStore(fixtures.DecodeTestEvent)

	ev := fixtures.NewTestEvent().With("title", "hello").Build()
	if err := store.Append(ctx, ev); err != nil {
		t.Fatal(err)
	}

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].EventID != ev.EventID() || records[0].Name != fixtures.KindTestEvent {
		t.Errorf("unexpected record: %+v", records[0])
	}

	records[0].Changes["title"] = "tampered"
	if got := store.Records()[0].Changes["title"]; got != "hello" {
		t.Errorf("title = %v, want hello", got)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memory.NewMemoryStore(fixtures.DecodeTestEvent)

	if err := store.Append(ctx, fixtures.NewTestEvent().Build()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(store.Records()) != 0 {
		t.Error("a cancelled append was stored")
	}
}
