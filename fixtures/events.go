package fixtures

import (
	"time"

	es "github.com/terraskye/formations"
)

// KindTestEvent is the only kind DecodeTestEvent understands.
const KindTestEvent es.EventKind = "TestEvent"

// TestEvent is an event with an arbitrary payload, for exercising the store
// and the fold independently of any domain.
type TestEvent struct {
	es.EventMeta
	Payload map[string]any
}

func (TestEvent) Kind() es.EventKind { return KindTestEvent }

func (e TestEvent) Changes() map[string]any { return es.CloneChanges(e.Payload) }

func (e TestEvent) ToRecord() es.Record {
	return e.EventMeta.Record(e.Kind(), e.Payload)
}

// DecodeTestEvent is the Decoder for TestEvent records.
func DecodeTestEvent(r es.Record) (es.Event, error) {
	if r.Name != KindTestEvent {
		return nil, &es.UnknownEventKindError{Kind: r.Name}
	}
	return TestEvent{EventMeta: es.EventMetaFromRecord(r), Payload: es.CloneChanges(r.Changes)}, nil
}

// TestEventBuilder provides a fluent API for constructing test events.
type TestEventBuilder struct {
	id      string
	at      time.Time
	changes map[string]any
}

// NewTestEvent creates a new TestEventBuilder with sensible defaults.
func NewTestEvent() *TestEventBuilder {
	return &TestEventBuilder{
		id:      "aggregate-1",
		changes: map[string]any{},
	}
}

// WithID sets the aggregate ID.
func (b *TestEventBuilder) WithID(id string) *TestEventBuilder {
	b.id = id
	return b
}

// At sets the creation time. Without it the event is stamped with the
// current time.
func (b *TestEventBuilder) At(t time.Time) *TestEventBuilder {
	b.at = t
	return b
}

// With sets a single payload field.
func (b *TestEventBuilder) With(key string, value any) *TestEventBuilder {
	b.changes[key] = value
	return b
}

// Build constructs the TestEvent.
func (b *TestEventBuilder) Build() TestEvent {
	return TestEvent{
		EventMeta: es.NewEventMeta(b.id, b.at),
		Payload:   es.CloneChanges(b.changes),
	}
}

// Epoch returns a fixed base time plus n seconds, for deterministic ordering.
func Epoch(n int) time.Time {
	return time.Date(2021, time.May, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}
