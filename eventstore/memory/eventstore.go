package memory

import (
	"context"
	"fmt"
	"sync"

	es "github.com/terraskye/formations"
)

var _ es.EventStore = (*MemoryStore)(nil)

// MemoryStore keeps the event log in process memory. Records are stored in
// their serialized form and decoded on every read.
type MemoryStore struct {
	mu      sync.RWMutex
	decode  es.Decoder
	records []es.Record
	counts  map[string]uint64
	closed  bool
}

// NewMemoryStore returns an empty store that reconstructs events with decode.
func NewMemoryStore(decode es.Decoder) *MemoryStore {
	return &MemoryStore{
		decode:  decode,
		records: make([]es.Record, 0),
		counts:  make(map[string]uint64),
	}
}

func (m *MemoryStore) Append(ctx context.Context, event es.Event) error {
	if event == nil {
		return fmt.Errorf("append: %w: nil event", es.ErrInvalidEventBatch)
	}
	_, err := m.AppendStream(ctx, event.AggregateID(), []es.Event{event}, es.Any{})
	return err
}

func (m *MemoryStore) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return es.AppendResult{}, err
	}
	if err := es.CheckBatch(aggregateID, events); err != nil {
		return es.AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return es.AppendResult{}, es.ErrStoreClosed
	}

	current := m.counts[aggregateID]
	if err := es.CheckRevision(aggregateID, expected, current); err != nil {
		return es.AppendResult{}, err
	}

	for _, ev := range events {
		m.records = append(m.records, ev.ToRecord())
		current++
	}
	m.counts[aggregateID] = current

	return es.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: current,
	}, nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, es.ErrStoreClosed
	}
	records := make([]es.Record, len(m.records))
	for i, r := range m.records {
		records[i] = r.Clone()
	}
	m.mu.RUnlock()

	events := make([]es.Event, 0, len(records))
	for i, r := range records {
		ev, err := m.decode(r)
		if err != nil {
			return nil, fmt.Errorf("list events: record %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Records returns a copy of the raw log in append order.
func (m *MemoryStore) Records() []es.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]es.Record, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
