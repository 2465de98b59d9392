// Package storetest is a conformance suite for EventStore implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/fixtures"
	"golang.org/x/sync/errgroup"
)

// Factory creates an empty store that decodes with decode. Stores are closed
// by the suite.
type Factory func(t *testing.T, decode es.Decoder) es.EventStore

// EventStore tests an EventStore implementation.
func EventStore(t *testing.T, name string, newStore Factory) {
	t.Run(name, func(t *testing.T) {
		run(t, "AppendAndList", newStore, testAppendAndList)
		run(t, "FreshSlices", newStore, testFreshSlices)
		run(t, "Metadata", newStore, testMetadata)
		run(t, "Revisions", newStore, testRevisions)
		run(t, "InvalidBatch", newStore, testInvalidBatch)
		run(t, "UnknownKind", newStore, testUnknownKind)
		run(t, "Concurrency", newStore, testConcurrency)
		run(t, "Closed", newStore, testClosed)
	})
}

func run(t *testing.T, name string, newStore Factory, runner func(*testing.T, Factory)) {
	t.Run(name, func(t *testing.T) {
		runner(t, newStore)
	})
}

func open(t *testing.T, newStore Factory) es.EventStore {
	t.Helper()
	store := newStore(t, fixtures.DecodeTestEvent)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func titles(t *testing.T, events []es.Event) []string {
	t.Helper()
	out := make([]string, 0, len(events))
	for _, ev := range events {
		title, _ := ev.Changes()["title"].(string)
		out = append(out, title)
	}
	return out
}

func testAppendAndList(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := open(t, newStore)

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() on an empty store failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected an empty non-nil slice, got %#v", events)
	}

	// Append order is kept even when creation times disagree.
	for i, title := range []string{"first", "second", "third"} {
		ev := fixtures.NewTestEvent().
			WithID(fmt.Sprintf("agg-%d", i%2)).
			At(fixtures.Epoch(10-i)).
			With("title", title).
			Build()
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s) error = %v", title, err)
		}
	}

	result, err := store.AppendStream(ctx, "agg-0", []es.Event{
		fixtures.NewTestEvent().WithID("agg-0").With("title", "fourth").Build(),
		fixtures.NewTestEvent().WithID("agg-0").With("title", "fifth").Build(),
	}, es.Any{})
	if err != nil {
		t.Fatalf("AppendStream() error = %v", err)
	}
	if result.AggregateID != "agg-0" || result.NextExpectedVersion != 4 {
		t.Errorf("AppendStream() = %+v, want agg-0 at version 4", result)
	}

	events, err = store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	want := []string{"first", "second", "third", "fourth", "fifth"}
	if diff := cmp.Diff(want, titles(t, events)); diff != "" {
		t.Errorf("append order mismatch (-want +got):\n%s", diff)
	}
}

func testFreshSlices(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := open(t, newStore)

	if err := store.Append(ctx, fixtures.NewTestEvent().With("title", "original").Build()); err != nil {
		t.Fatal(err)
	}

	first, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first[0].Changes()["title"] = "tampered"
	first[0] = nil

	second, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second[0] == nil {
		t.Fatal("ListAll returned a shared slice")
	}
	if got := second[0].Changes()["title"]; got != "original" {
		t.Errorf("title = %v, want original", got)
	}
}

func testMetadata(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := open(t, newStore)

	ev := fixtures.NewTestEvent().
		WithID("agg-1").
		At(fixtures.Epoch(42)).
		With("title", "hello").
		With("tags", "a,b").
		Build()
	if err := store.Append(ctx, ev); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.EventID() != ev.EventID() {
		t.Errorf("EventID() = %s, want %s", got.EventID(), ev.EventID())
	}
	if got.Kind() != fixtures.KindTestEvent {
		t.Errorf("Kind() = %q, want %q", got.Kind(), fixtures.KindTestEvent)
	}
	if got.AggregateID() != "agg-1" {
		t.Errorf("AggregateID() = %q, want agg-1", got.AggregateID())
	}
	if !got.CreatedAt().Equal(ev.CreatedAt()) {
		t.Errorf("CreatedAt() = %v, want %v", got.CreatedAt(), ev.CreatedAt())
	}
	if diff := cmp.Diff(ev.Changes(), got.Changes()); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func testRevisions(t *testing.T, newStore Factory) {
	tests := []struct {
		name     string
		existing int
		expected es.StreamState
		wantErr  error
		conflict bool
	}{
		{name: "any on empty", expected: es.Any{}},
		{name: "any on existing", existing: 2, expected: es.Any{}},
		{name: "no stream on empty", expected: es.NoStream{}},
		{name: "no stream on existing", existing: 1, expected: es.NoStream{}, wantErr: es.ErrStreamExists},
		{name: "stream exists on existing", existing: 1, expected: es.StreamExists{}},
		{name: "stream exists on empty", expected: es.StreamExists{}, wantErr: es.ErrStreamNotFound},
		{name: "matching revision", existing: 2, expected: es.Revision(2)},
		{name: "stale revision", existing: 2, expected: es.Revision(1), conflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t, newStore)

			for range tt.existing {
				if err := store.Append(ctx, fixtures.NewTestEvent().WithID("agg-1").Build()); err != nil {
					t.Fatal(err)
				}
			}
			// Another aggregate must not count towards agg-1.
			if err := store.Append(ctx, fixtures.NewTestEvent().WithID("agg-2").Build()); err != nil {
				t.Fatal(err)
			}

			batch := []es.Event{fixtures.NewTestEvent().WithID("agg-1").Build()}
			result, err := store.AppendStream(ctx, "agg-1", batch, tt.expected)

			switch {
			case tt.conflict:
				var conflict *es.StreamRevisionConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected StreamRevisionConflictError, got %v", err)
				}
				if int(conflict.ActualRevision) != tt.existing {
					t.Errorf("ActualRevision = %d, want %d", conflict.ActualRevision, tt.existing)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("AppendStream() error = %v", err)
				}
				if int(result.NextExpectedVersion) != tt.existing+1 {
					t.Errorf("NextExpectedVersion = %d, want %d", result.NextExpectedVersion, tt.existing+1)
				}
				return
			}

			events, err := store.ListAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(events) != tt.existing+1 {
				t.Errorf("a rejected append changed the log: %d events", len(events))
			}
		})
	}
}

func testInvalidBatch(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := open(t, newStore)

	mixed := []es.Event{
		fixtures.NewTestEvent().WithID("agg-1").Build(),
		fixtures.NewTestEvent().WithID("agg-2").Build(),
	}
	if _, err := store.AppendStream(ctx, "agg-1", mixed, es.Any{}); !errors.Is(err, es.ErrInvalidEventBatch) {
		t.Errorf("expected ErrInvalidEventBatch, got %v", err)
	}

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("an invalid batch was partially stored: %d events", len(events))
	}
}

type foreignEvent struct {
	es.EventMeta
}

func (foreignEvent) Kind() es.EventKind      { return "Foreign" }
func (foreignEvent) Changes() map[string]any { return map[string]any{} }
func (e foreignEvent) ToRecord() es.Record   { return e.Record(e.Kind(), nil) }

func testUnknownKind(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := open(t, newStore)

	if err := store.Append(ctx, foreignEvent{es.NewEventMeta("agg-1", fixtures.Epoch(0))}); err != nil {
		t.Fatal(err)
	}

	_, err := store.ListAll(ctx)
	var kindErr *es.UnknownEventKindError
	if !errors.As(err, &kindErr) {
		t.Fatalf("expected UnknownEventKindError, got %v", err)
	}
	if kindErr.Kind != "Foreign" {
		t.Errorf("Kind = %q, want Foreign", kindErr.Kind)
	}
}

func testConcurrency(t *testing.T, newStore Factory) {
	const writers, perWriter = 4, 5

	ctx := context.Background()
	store := open(t, newStore)

	g, gctx := errgroup.WithContext(ctx)
	for w := range writers {
		g.Go(func() error {
			for i := range perWriter {
				ev := fixtures.NewTestEvent().
					WithID(fmt.Sprintf("agg-%d", w)).
					With("title", fmt.Sprintf("%d-%d", w, i)).
					Build()
				if err := store.Append(gctx, ev); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Append() error = %v", err)
	}

	events, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != writers*perWriter {
		t.Fatalf("expected %d events, got %d", writers*perWriter, len(events))
	}

	// Each writer's own events keep their relative order.
	next := make(map[string]int)
	for _, ev := range events {
		want := fmt.Sprintf("%s-%d", ev.AggregateID()[len("agg-"):], next[ev.AggregateID()])
		if got := ev.Changes()["title"]; got != want {
			t.Errorf("title = %v, want %s", got, want)
		}
		next[ev.AggregateID()]++
	}
}

func testClosed(t *testing.T, newStore Factory) {
	ctx := context.Background()
	store := newStore(t, fixtures.DecodeTestEvent)

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := store.Append(ctx, fixtures.NewTestEvent().Build()); !errors.Is(err, es.ErrStoreClosed) {
		t.Errorf("Append() after Close: expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.ListAll(ctx); !errors.Is(err, es.ErrStoreClosed) {
		t.Errorf("ListAll() after Close: expected ErrStoreClosed, got %v", err)
	}
}
