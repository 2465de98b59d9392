package formation

import (
	"errors"
	"fmt"
	"time"

	es "github.com/terraskye/formations"
)

const (
	KindFormationCreated   es.EventKind = "FormationCreated"
	KindFormationScheduled es.EventKind = "FormationScheduled"
)

// Payload keys shared by events and the projection.
const (
	keyID             = "id"
	keyName           = "name"
	keyDurationHours  = "durationHours"
	keyDate           = "date"
	keyInstructorName = "instructorName"
)

// ErrInvalidPayload is returned when a change payload or projection holds a
// value of the wrong type.
var ErrInvalidPayload = errors.New("invalid payload")

// CreatedChanges is the full initial projection of a formation.
type CreatedChanges struct {
	ID            string
	Name          string
	DurationHours int

	// raw is the decoded payload. It keeps the stored key set so that
	// absent keys stay absent and unknown keys survive a round trip.
	raw map[string]any
}

func (c CreatedChanges) Map() map[string]any {
	return overlay(c.raw, map[string]any{
		keyID:            c.ID,
		keyName:          c.Name,
		keyDurationHours: c.DurationHours,
	})
}

// ScheduledChanges records when and by whom a formation is given. A decoded
// payload only carries the keys present in its record.
type ScheduledChanges struct {
	Date           string
	InstructorName string

	raw map[string]any
}

func (c ScheduledChanges) Map() map[string]any {
	return overlay(c.raw, map[string]any{
		keyDate:           c.Date,
		keyInstructorName: c.InstructorName,
	})
}

// overlay writes the typed values onto a copy of raw for the keys raw holds
// a value for. A nil raw means the payload was built in code and is complete.
func overlay(raw, typed map[string]any) map[string]any {
	if raw == nil {
		return typed
	}
	m := es.CloneChanges(raw)
	for k, v := range typed {
		if m[k] != nil {
			m[k] = v
		}
	}
	return m
}

// FormationCreated is emitted once, when a formation comes into existence.
type FormationCreated struct {
	es.EventMeta
	Payload CreatedChanges
}

// NewFormationCreated stamps a FormationCreated event with the current time.
func NewFormationCreated(aggregateID string, changes CreatedChanges) FormationCreated {
	return newFormationCreated(aggregateID, changes, time.Time{})
}

func newFormationCreated(aggregateID string, changes CreatedChanges, at time.Time) FormationCreated {
	return FormationCreated{
		EventMeta: es.NewEventMeta(aggregateID, at),
		Payload:   changes,
	}
}

func (FormationCreated) Kind() es.EventKind { return KindFormationCreated }

func (e FormationCreated) Changes() map[string]any { return e.Payload.Map() }

func (e FormationCreated) ToRecord() es.Record {
	return e.EventMeta.Record(e.Kind(), e.Changes())
}

// FormationScheduled is emitted every time a formation is (re)scheduled.
type FormationScheduled struct {
	es.EventMeta
	Payload ScheduledChanges
}

// NewFormationScheduled stamps a FormationScheduled event with the current time.
func NewFormationScheduled(aggregateID string, changes ScheduledChanges) FormationScheduled {
	return newFormationScheduled(aggregateID, changes, time.Time{})
}

func newFormationScheduled(aggregateID string, changes ScheduledChanges, at time.Time) FormationScheduled {
	return FormationScheduled{
		EventMeta: es.NewEventMeta(aggregateID, at),
		Payload:   changes,
	}
}

func (FormationScheduled) Kind() es.EventKind { return KindFormationScheduled }

func (e FormationScheduled) Changes() map[string]any { return e.Payload.Map() }

func (e FormationScheduled) ToRecord() es.Record {
	return e.EventMeta.Record(e.Kind(), e.Changes())
}

var (
	_ es.Event   = FormationCreated{}
	_ es.Event   = FormationScheduled{}
	_ es.Decoder = FromRecord
)

// FromRecord reconstructs the typed event for record. The original event id
// and creation time are preserved. Unknown kinds fail with an
// *es.UnknownEventKindError.
func FromRecord(record es.Record) (es.Event, error) {
	switch record.Name {
	case KindFormationCreated:
		changes, err := decodeCreated(record.Changes)
		if err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", record.Name, record.EventID, err)
		}
		return FormationCreated{EventMeta: es.EventMetaFromRecord(record), Payload: changes}, nil
	case KindFormationScheduled:
		changes, err := decodeScheduled(record.Changes)
		if err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", record.Name, record.EventID, err)
		}
		return FormationScheduled{EventMeta: es.EventMetaFromRecord(record), Payload: changes}, nil
	default:
		return nil, &es.UnknownEventKindError{Kind: record.Name}
	}
}

func decodeCreated(m map[string]any) (CreatedChanges, error) {
	var (
		c   = CreatedChanges{raw: es.CloneChanges(m)}
		err error
	)
	if c.ID, _, err = stringField(m, keyID); err != nil {
		return c, err
	}
	if c.Name, _, err = stringField(m, keyName); err != nil {
		return c, err
	}
	if c.DurationHours, _, err = intField(m, keyDurationHours); err != nil {
		return c, err
	}
	return c, nil
}

func decodeScheduled(m map[string]any) (ScheduledChanges, error) {
	var (
		c   = ScheduledChanges{raw: es.CloneChanges(m)}
		err error
	)
	if c.Date, _, err = stringField(m, keyDate); err != nil {
		return c, err
	}
	if c.InstructorName, _, err = stringField(m, keyInstructorName); err != nil {
		return c, err
	}
	return c, nil
}
