package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrAggregateNotFound is returned when no event exists for an aggregate id.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrUnknownEventKind is matched by every UnknownEventKindError.
	ErrUnknownEventKind = errors.New("unknown event kind")

	ErrInvalidEventBatch = errors.New("invalid event batch")
	ErrInvalidRevision   = errors.New("invalid revision")
	ErrStreamExists      = errors.New("stream already exists")
	ErrStreamNotFound    = errors.New("stream not found")
	ErrStoreClosed       = errors.New("event store closed")
)

// UnknownEventKindError is returned when a record carries a kind tag outside
// the closed set of event variants.
type UnknownEventKindError struct {
	Kind EventKind
}

func (e *UnknownEventKindError) Error() string {
	return fmt.Sprintf("unknown event kind %q", string(e.Kind))
}

func (e *UnknownEventKindError) Is(target error) bool {
	return target == ErrUnknownEventKind
}

// StreamRevisionConflictError is returned when an append expected a different
// number of events for the aggregate than the store holds.
type StreamRevisionConflictError struct {
	AggregateID      string
	ExpectedRevision StreamState
	ActualRevision   Revision
}

func (s StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %q: (expected version %s, actual %d)",
		s.AggregateID, s.ExpectedRevision, uint64(s.ActualRevision))
}

// StorageWriteError wraps a failure of a durable store to write events.
// Appends are never retried by the store.
type StorageWriteError struct {
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage write error: %v", e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

// WrapStorageWriteError wraps err in a StorageWriteError. It returns nil for a
// nil error.
func WrapStorageWriteError(err error) error {
	if err == nil {
		return nil
	}
	return &StorageWriteError{Err: err}
}
