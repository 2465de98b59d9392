// Package sqlite provides a SQLite-backed EventStore.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/formations"
	_ "modernc.org/sqlite"
)

var _ es.EventStore = (*Store)(nil)

//go:embed schema.sql
var schema string

// Store persists the event log in a single SQLite table. Append order is the
// autoincrement sequence; timestamps are stored as Unix nanoseconds in UTC.
type Store struct {
	mu     sync.RWMutex
	sqlDB  *sql.DB
	decode es.Decoder
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

// Open opens a SQLite event store at path and applies the schema.
func Open(path string, decode es.Decoder) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, decode: decode}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sqlDB == nil {
		return nil
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}

func (s *Store) Append(ctx context.Context, event es.Event) error {
	if event == nil {
		return fmt.Errorf("append: %w: nil event", es.ErrInvalidEventBatch)
	}
	_, err := s.AppendStream(ctx, event.AggregateID(), []es.Event{event}, es.Any{})
	return err
}

func (s *Store) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return es.AppendResult{}, err
	}
	if err := es.CheckBatch(aggregateID, events); err != nil {
		return es.AppendResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sqlDB == nil {
		return es.AppendResult{}, es.ErrStoreClosed
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return es.AppendResult{}, es.WrapStorageWriteError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var current uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&current); err != nil {
		return es.AppendResult{}, fmt.Errorf("count events of %q: %w", aggregateID, err)
	}

	if err := es.CheckRevision(aggregateID, expected, current); err != nil {
		return es.AppendResult{}, err
	}

	for _, ev := range events {
		r := ev.ToRecord()
		changes, err := json.Marshal(r.Changes)
		if err != nil {
			return es.AppendResult{}, es.WrapStorageWriteError(fmt.Errorf("encode changes of %s: %w", r.EventID, err))
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, name, aggregate_id, created_at, changes) VALUES (?, ?, ?, ?, ?)`,
			r.EventID.String(),
			string(r.Name),
			r.AggregateID,
			toNanos(r.CreatedAt),
			string(changes),
		); err != nil {
			return es.AppendResult{}, es.WrapStorageWriteError(fmt.Errorf("insert event %s: %w", r.EventID, err))
		}
		current++
	}

	if err := tx.Commit(); err != nil {
		return es.AppendResult{}, es.WrapStorageWriteError(fmt.Errorf("commit: %w", err))
	}

	return es.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: current,
	}, nil
}

func (s *Store) ListAll(ctx context.Context) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Close waits for readers so the handle outlives the query.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sqlDB == nil {
		return nil, es.ErrStoreClosed
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_id, name, aggregate_id, created_at, changes FROM events ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		var (
			eventID   string
			name      string
			r         es.Record
			createdAt int64
			changes   string
		)
		if err := rows.Scan(&eventID, &name, &r.AggregateID, &createdAt, &changes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if r.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", eventID, err)
		}
		r.Name = es.EventKind(name)
		r.CreatedAt = fromNanos(createdAt)
		if err := json.Unmarshal([]byte(changes), &r.Changes); err != nil {
			return nil, fmt.Errorf("decode changes of %s: %w", eventID, err)
		}

		ev, err := s.decode(r)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []es.Event{}
	}
	return events, nil
}
