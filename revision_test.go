package eventsourcing

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCheckRevision(t *testing.T) {
	tests := []struct {
		name     string
		expected StreamState
		current  uint64
		wantErr  error
		conflict bool
	}{
		{name: "any on empty", expected: Any{}, current: 0},
		{name: "any on existing", expected: Any{}, current: 3},
		{name: "no stream on empty", expected: NoStream{}, current: 0},
		{name: "no stream on existing", expected: NoStream{}, current: 1, wantErr: ErrStreamExists},
		{name: "stream exists on existing", expected: StreamExists{}, current: 2},
		{name: "stream exists on empty", expected: StreamExists{}, current: 0, wantErr: ErrStreamNotFound},
		{name: "revision match", expected: Revision(2), current: 2},
		{name: "revision zero on empty", expected: Revision(0), current: 0},
		{name: "revision behind", expected: Revision(1), current: 2, conflict: true},
		{name: "revision ahead", expected: Revision(3), current: 2, conflict: true},
		{name: "nil expectation", expected: nil, current: 0, wantErr: ErrInvalidRevision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRevision("agg-1", tt.expected, tt.current)

			switch {
			case tt.conflict:
				var conflict *StreamRevisionConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected StreamRevisionConflictError, got %T: %v", err, err)
				}
				if uint64(conflict.ActualRevision) != tt.current {
					t.Errorf("ActualRevision = %d, want %d", conflict.ActualRevision, tt.current)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
			}
		})
	}
}

type batchEvent struct {
	EventMeta
}

func (batchEvent) Kind() EventKind         { return "BatchEvent" }
func (batchEvent) Changes() map[string]any { return map[string]any{} }
func (e batchEvent) ToRecord() Record      { return e.Record(e.Kind(), nil) }
func newBatchEvent(aggregateID string) batchEvent {
	return batchEvent{NewEventMeta(aggregateID, now())}
}

func TestCheckBatch(t *testing.T) {
	if err := CheckBatch("a", []Event{newBatchEvent("a"), newBatchEvent("a")}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := CheckBatch("a", []Event{newBatchEvent("a"), newBatchEvent("b")}); !errors.Is(err, ErrInvalidEventBatch) {
		t.Errorf("expected ErrInvalidEventBatch for mixed ids, got %v", err)
	}
	if err := CheckBatch("", []Event{newBatchEvent("")}); !errors.Is(err, ErrInvalidEventBatch) {
		t.Errorf("expected ErrInvalidEventBatch for empty id, got %v", err)
	}
	if err := CheckBatch("a", []Event{nil}); !errors.Is(err, ErrInvalidEventBatch) {
		t.Errorf("expected ErrInvalidEventBatch for nil event, got %v", err)
	}
}

func TestEventMeta_RecordRoundTrip(t *testing.T) {
	ev := newBatchEvent("a")
	r := ev.ToRecord()

	if r.EventID == uuid.Nil {
		t.Error("expected an event id")
	}
	meta := EventMetaFromRecord(r)
	if meta != ev.EventMeta {
		t.Errorf("EventMetaFromRecord() = %+v, want %+v", meta, ev.EventMeta)
	}
}
