package eventsourcing_test

import (
	"errors"
	"fmt"
	"testing"

	es "github.com/terraskye/formations"
)

func TestUnknownEventKindError(t *testing.T) {
	err := fmt.Errorf("decode: %w", &es.UnknownEventKindError{Kind: "Nope"})

	if !errors.Is(err, es.ErrUnknownEventKind) {
		t.Error("expected errors.Is to match ErrUnknownEventKind")
	}

	var kindErr *es.UnknownEventKindError
	if !errors.As(err, &kindErr) {
		t.Fatal("expected errors.As to find UnknownEventKindError")
	}
	if kindErr.Kind != "Nope" {
		t.Errorf("Kind = %q, want %q", kindErr.Kind, "Nope")
	}
	if got, want := kindErr.Error(), `unknown event kind "Nope"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStreamRevisionConflictError(t *testing.T) {
	err := &es.StreamRevisionConflictError{
		AggregateID:      "f-1",
		ExpectedRevision: es.Revision(1),
		ActualRevision:   2,
	}

	want := `concurrency conflict on aggregate "f-1": (expected version 1, actual 2)`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStorageWriteError(t *testing.T) {
	if es.WrapStorageWriteError(nil) != nil {
		t.Error("expected nil for a nil cause")
	}

	cause := errors.New("disk full")
	err := es.WrapStorageWriteError(cause)

	var writeErr *es.StorageWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected StorageWriteError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be unwrapped")
	}
	if got, want := err.Error(), "storage write error: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
