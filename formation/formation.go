// Package formation implements the Formation aggregate: a training session
// with a name and a duration that can be scheduled on a date with an
// instructor. Its state is only ever derived from its events.
package formation

import (
	"errors"
	"fmt"

	es "github.com/terraskye/formations"
)

// ErrEmptyID is returned when a formation would be created without an id.
var ErrEmptyID = errors.New("formation id is empty")

// Formation is an event-sourced aggregate. Every mutation records an event in
// its pending list; the store is only touched by the repository.
type Formation struct {
	*es.AggregateBase

	name           string
	durationHours  int
	scheduledDate  *string
	instructorName *string
}

var _ es.Aggregate = (*Formation)(nil)

// Create starts a new formation and records a FormationCreated event carrying
// its full initial state. Uniqueness of id is not checked here; use a
// repository with optimistic concurrency to reject duplicates.
func Create(id, name string, durationHours int) (*Formation, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	f := &Formation{
		AggregateBase: es.NewAggregateBase(id),
		name:          name,
		durationHours: durationHours,
	}

	f.RecordEvent(newFormationCreated(id, CreatedChanges{
		ID:            id,
		Name:          name,
		DurationHours: durationHours,
	}, f.NextEventTime()))

	return f, nil
}

// ScheduleOn sets the date and instructor and records a FormationScheduled
// event. Any strings are accepted.
func (f *Formation) ScheduleOn(date, instructorName string) {
	f.scheduledDate = &date
	f.instructorName = &instructorName

	f.RecordEvent(newFormationScheduled(f.AggregateID(), ScheduledChanges{
		Date:           date,
		InstructorName: instructorName,
	}, f.NextEventTime()))
}

func (f *Formation) ID() string         { return f.AggregateID() }
func (f *Formation) Name() string       { return f.name }
func (f *Formation) DurationHours() int { return f.durationHours }

// ScheduledDate returns the date the formation is scheduled on, if any.
func (f *Formation) ScheduledDate() (string, bool) {
	if f.scheduledDate == nil {
		return "", false
	}
	return *f.scheduledDate, true
}

// InstructorName returns the instructor of the formation, if scheduled.
func (f *Formation) InstructorName() (string, bool) {
	if f.instructorName == nil {
		return "", false
	}
	return *f.instructorName, true
}

// rehydrate restores a formation from its projection state. Missing optional
// fields stay unset and no event is recorded.
func rehydrate(state es.Projection) (*Formation, error) {
	id, _, err := stringField(state, keyID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrEmptyID
	}

	f := &Formation{AggregateBase: es.NewAggregateBase(id)}

	if f.name, _, err = stringField(state, keyName); err != nil {
		return nil, err
	}
	if f.durationHours, _, err = intField(state, keyDurationHours); err != nil {
		return nil, err
	}

	date, ok, err := stringField(state, keyDate)
	if err != nil {
		return nil, err
	}
	if ok {
		f.scheduledDate = &date
	}

	instructor, ok, err := stringField(state, keyInstructorName)
	if err != nil {
		return nil, err
	}
	if ok {
		f.instructorName = &instructor
	}

	return f, nil
}

// Repository loads and persists formations.
type Repository = es.Repository[*Formation]

// NewRepository returns a repository of formations backed by store.
func NewRepository(store es.EventStore, opts ...es.RepositoryOption) *Repository {
	return es.NewRepository(store, rehydrate, opts...)
}

func (f *Formation) String() string {
	date, _ := f.ScheduledDate()
	instructor, _ := f.InstructorName()
	return fmt.Sprintf("Formation{id=%s name=%q hours=%d date=%q instructor=%q version=%d pending=%d}",
		f.ID(), f.name, f.durationHours, date, instructor, f.AggregateVersion(), len(f.UncommittedEvents()))
}
