package eventsourcing

import (
	"slices"
	"time"
)

var now = time.Now

// Aggregate is the interface that all aggregates must implement.
type Aggregate interface {

	// AggregateID returns the unique identifier of the aggregate.
	AggregateID() string

	// AggregateVersion returns the number of stored events the aggregate was
	// derived from.
	AggregateVersion() uint64

	// SetAggregateVersion sets the version of the aggregate.
	SetAggregateVersion(version uint64)

	// UncommittedEvents returns the events recorded since the aggregate was
	// loaded or last persisted.
	UncommittedEvents() []Event

	// ClearUncommittedEvents clears all uncommitted events from the aggregate.
	ClearUncommittedEvents()
}

// AggregateBase is embedded by aggregates and owns their pending event buffer.
// It is not safe for concurrent use.
type AggregateBase struct {
	id     string
	v      uint64
	events []Event
	last   time.Time
	clock  func() time.Time
}

// NewAggregateBase creates an aggregate.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Event, 0),
		clock:  now,
	}
}

// AggregateID implements the AggregateID method of the Aggregate interface.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// AggregateVersion implements the AggregateVersion method of the Aggregate interface.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// SetAggregateVersion implements the SetAggregateVersion method of the Aggregate interface.
func (a *AggregateBase) SetAggregateVersion(v uint64) {
	a.v = v
}

// UncommittedEvents returns a copy of the pending events in recording order.
func (a *AggregateBase) UncommittedEvents() []Event {
	return slices.Clone(a.events)
}

// ClearUncommittedEvents implements the ClearUncommittedEvents method of the
// Aggregate interface.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = a.events[:0]
}

// RecordEvent appends an event to the pending list.
func (a *AggregateBase) RecordEvent(event Event) {
	a.events = append(a.events, event)
	if t := event.CreatedAt(); t.After(a.last) {
		a.last = t
	}
}

// SetClock replaces the time source used by NextEventTime.
func (a *AggregateBase) SetClock(clock func() time.Time) {
	a.clock = clock
}

// NextEventTime returns the creation time for the next event. The result is
// always after the time of every event this instance recorded.
func (a *AggregateBase) NextEventTime() time.Time {
	clock := a.clock
	if clock == nil {
		clock = now
	}
	t := clock()
	if !a.last.IsZero() && !t.After(a.last) {
		t = a.last.Add(time.Nanosecond)
	}
	return t
}
