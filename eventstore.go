package eventsourcing

import (
	"context"
)

// EventStore defines the contract for an append-only log of event records.
//
// Implementations convert events to their Record form on append and back into
// typed events on read. No deletion or mutation API exists.
//
// Implementations must guarantee:
//   - ListAll yields records in append order, not business-time order.
//   - ListAll returns a freshly allocated slice on every call; mutating it
//     never affects the store.
//   - The revision check and the append in AppendStream are atomic with
//     respect to other writers.
type EventStore interface {
	// Append converts event to a Record and adds it to the log.
	//
	// Durable implementations return a *StorageWriteError when the write fails.
	Append(ctx context.Context, event Event) error

	// AppendStream appends events for a single aggregate in the given order,
	// after checking the expected revision against the number of events the
	// store already holds for that aggregate.
	//
	// Errors:
	//   - ErrInvalidEventBatch if an event belongs to a different aggregate.
	//   - *StreamRevisionConflictError if a Revision expectation does not match.
	//   - ErrStreamExists / ErrStreamNotFound for NoStream / StreamExists.
	//   - *StorageWriteError for write failures of durable backends.
	AppendStream(ctx context.Context, aggregateID string, events []Event, expected StreamState) (AppendResult, error)

	// ListAll returns every event in the log in append order.
	//
	// A record whose kind cannot be decoded fails the whole call with an
	// error matching ErrUnknownEventKind.
	ListAll(ctx context.Context) ([]Event, error)

	// Close releases any resources held by the EventStore. After Close,
	// operations fail with ErrStoreClosed. Close is idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	AggregateID string

	// NextExpectedVersion is the number of events stored for the aggregate
	// after the append.
	NextExpectedVersion uint64
}
