package eventsourcing

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// EventKind tags a domain event variant. It is the name under which records
// are stored and the key used to reconstruct the typed event.
type EventKind string

// Record is the storage shape of a domain event. It is the only
// serialization contract between the domain model and an EventStore.
type Record struct {
	EventID     uuid.UUID      `json:"eventId"`
	Name        EventKind      `json:"name"`
	AggregateID string         `json:"aggregateId"`
	CreatedAt   time.Time      `json:"createdAt"`
	Changes     map[string]any `json:"changes"`
}

// Clone returns a copy of the record whose Changes map is not shared with r.
func (r Record) Clone() Record {
	r.Changes = CloneChanges(r.Changes)
	return r
}

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	EventID() uuid.UUID
	Kind() EventKind
	AggregateID() string
	CreatedAt() time.Time

	// Changes returns the payload of field changes. The returned map is owned
	// by the caller.
	Changes() map[string]any

	// ToRecord converts the event into its storage shape.
	ToRecord() Record
}

// Decoder reconstructs a typed Event from its Record. A Decoder must fail
// with an error matching ErrUnknownEventKind for tags it does not know.
type Decoder func(record Record) (Event, error)

// EventMeta holds the fields shared by every event variant. Variants embed it
// and add their kind and payload.
type EventMeta struct {
	id          uuid.UUID
	aggregateID string
	createdAt   time.Time
}

// NewEventMeta stamps a new event identity for aggregateID. A zero createdAt
// defaults to the current time.
func NewEventMeta(aggregateID string, createdAt time.Time) EventMeta {
	if createdAt.IsZero() {
		createdAt = now()
	}
	return EventMeta{
		id:          uuid.New(),
		aggregateID: aggregateID,
		createdAt:   createdAt,
	}
}

// EventMetaFromRecord restores the metadata of a stored event. The original
// identity and timestamp are preserved.
func EventMetaFromRecord(record Record) EventMeta {
	return EventMeta{
		id:          record.EventID,
		aggregateID: record.AggregateID,
		createdAt:   record.CreatedAt,
	}
}

func (m EventMeta) EventID() uuid.UUID   { return m.id }
func (m EventMeta) AggregateID() string  { return m.aggregateID }
func (m EventMeta) CreatedAt() time.Time { return m.createdAt }

// Record builds the storage shape for an event of the given kind.
func (m EventMeta) Record(kind EventKind, changes map[string]any) Record {
	return Record{
		EventID:     m.id,
		Name:        kind,
		AggregateID: m.aggregateID,
		CreatedAt:   m.createdAt,
		Changes:     CloneChanges(changes),
	}
}

// CloneChanges returns a shallow copy of changes. A nil map yields an empty one.
func CloneChanges(changes map[string]any) map[string]any {
	if changes == nil {
		return map[string]any{}
	}
	return maps.Clone(changes)
}
