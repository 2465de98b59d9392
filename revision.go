package eventsourcing

import (
	"fmt"
	"strconv"
)

// StreamState is the expectation an append places on the number of events
// already stored for an aggregate.
type StreamState interface {
	fmt.Stringer
	streamState()
}

// Any means append without checking the current revision.
type Any struct{}

func (Any) streamState()   {}
func (Any) String() string { return "any" }

// NoStream means the aggregate must not have any events yet.
type NoStream struct{}

func (NoStream) streamState()   {}
func (NoStream) String() string { return "no stream" }

// StreamExists means the aggregate must have at least one event.
type StreamExists struct{}

func (StreamExists) streamState()   {}
func (StreamExists) String() string { return "stream exists" }

// Revision matches exactly the number of events stored for the aggregate.
type Revision uint64

func (Revision) streamState()     {}
func (r Revision) String() string { return strconv.FormatUint(uint64(r), 10) }

// CheckRevision validates expected against the current event count of an
// aggregate. Stores call it while holding their write lock.
func CheckRevision(aggregateID string, expected StreamState, current uint64) error {
	switch rev := expected.(type) {
	case Any:
	case NoStream:
		if current != 0 {
			return fmt.Errorf("aggregate %q: %w", aggregateID, ErrStreamExists)
		}
	case StreamExists:
		if current == 0 {
			return fmt.Errorf("aggregate %q: %w", aggregateID, ErrStreamNotFound)
		}
	case Revision:
		if current != uint64(rev) {
			return &StreamRevisionConflictError{
				AggregateID:      aggregateID,
				ExpectedRevision: rev,
				ActualRevision:   Revision(current),
			}
		}
	default:
		return fmt.Errorf("aggregate %q: unsupported revision %T: %w", aggregateID, expected, ErrInvalidRevision)
	}
	return nil
}

// CheckBatch verifies that every event in a batch belongs to aggregateID.
func CheckBatch(aggregateID string, events []Event) error {
	if aggregateID == "" {
		return fmt.Errorf("empty aggregate id: %w", ErrInvalidEventBatch)
	}
	for i, ev := range events {
		if ev == nil {
			return fmt.Errorf("append to aggregate %q: %w: event %d is nil", aggregateID, ErrInvalidEventBatch, i)
		}
		if ev.AggregateID() != aggregateID {
			return fmt.Errorf(
				"append to aggregate %q: %w: event %d has different aggregate ID %q",
				aggregateID, ErrInvalidEventBatch, i, ev.AggregateID(),
			)
		}
	}
	return nil
}
