package eventsourcing

import (
	"maps"
	"slices"
)

// Projection is the state obtained by folding the change payloads of an
// aggregate's events. It is the memento aggregates are rehydrated from.
type Projection map[string]any

// Clone returns a copy of p.
func (p Projection) Clone() Projection {
	return maps.Clone(p)
}

// SortByCreatedAt returns a copy of events ordered ascending by creation time.
// The sort is stable: events with equal timestamps keep their input order.
func SortByCreatedAt(events []Event) []Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		return a.CreatedAt().Compare(b.CreatedAt())
	})
	return sorted
}

// Fold sorts events by creation time and merges their change payloads from
// left to right. A later event overwrites the keys of earlier ones.
func Fold(events []Event) Projection {
	state := Projection{}
	for _, ev := range SortByCreatedAt(events) {
		maps.Copy(state, ev.Changes())
	}
	return state
}

// FilterByAggregate returns the events belonging to aggregateID, preserving
// their order.
func FilterByAggregate(events []Event, aggregateID string) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.AggregateID() == aggregateID {
			out = append(out, ev)
		}
	}
	return out
}
