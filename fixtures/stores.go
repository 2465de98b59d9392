package fixtures

import (
	"context"
	"slices"
	"sync"

	es "github.com/terraskye/formations"
)

var _ es.EventStore = (*StoreSpy)(nil)

// StoreSpy is a configurable EventStore for testing.
// It tracks calls and allows injecting failures. Without injected failures it
// behaves like an unconditional in-memory log of events.
type StoreSpy struct {
	mu sync.Mutex

	events []es.Event

	// Call tracking
	AppendCalls       int
	AppendStreamCalls int
	ListAllCalls      int
	CloseCalls        int

	// Captured arguments from last call
	LastExpected es.StreamState

	// Error injection
	appendErr error
	listErr   error
}

// NewStoreSpy creates a new StoreSpy with default behavior.
func NewStoreSpy() *StoreSpy {
	return &StoreSpy{}
}

// WithEvents pre-populates the log.
func (s *StoreSpy) WithEvents(events ...es.Event) *StoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s
}

// FailOnAppend configures the store to return err on append operations.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// FailOnList configures the store to return err from ListAll.
func (s *StoreSpy) FailOnList(err error) *StoreSpy {
	s.listErr = err
	return s
}

func (s *StoreSpy) Append(ctx context.Context, event es.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls++
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *StoreSpy) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendStreamCalls++
	s.LastExpected = expected
	if s.appendErr != nil {
		return es.AppendResult{}, s.appendErr
	}

	var current uint64
	for _, ev := range s.events {
		if ev.AggregateID() == aggregateID {
			current++
		}
	}
	if err := es.CheckRevision(aggregateID, expected, current); err != nil {
		return es.AppendResult{}, err
	}

	s.events = append(s.events, events...)
	return es.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: current + uint64(len(events)),
	}, nil
}

func (s *StoreSpy) ListAll(ctx context.Context) ([]es.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListAllCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return slices.Clone(s.events), nil
}

func (s *StoreSpy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Events returns a copy of everything appended so far.
func (s *StoreSpy) Events() []es.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}
