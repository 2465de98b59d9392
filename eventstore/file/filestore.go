// Package file provides an EventStore persisted as a JSON-lines log on disk.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	es "github.com/terraskye/formations"
)

var _ es.EventStore = (*FileStore)(nil)

// LogName is the name of the log file inside the store directory.
const LogName = "events.jsonl"

// FileStore appends one JSON document per event to a single log file. The
// file is opened in append mode and synced after every batch. Only the first
// size bytes of the file hold committed events; anything past them is cut
// before the next write.
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	size   int64
	decode es.Decoder
	counts map[string]uint64
}

// NewFileStore opens (or creates) the log in dir. Existing records are
// scanned once to restore per-aggregate event counts.
func NewFileStore(dir string, decode es.Decoder) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	path := filepath.Join(dir, LogName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	s := &FileStore{
		path:   path,
		file:   f,
		decode: decode,
		counts: make(map[string]uint64),
	}

	records, size, err := s.readRecords(-1)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	// Drop a torn trailing write so the next append starts on a fresh line.
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("truncate event log: %w", err)
	}
	s.size = size
	for _, r := range records {
		s.counts[r.AggregateID]++
	}
	return s, nil
}

func (s *FileStore) Append(ctx context.Context, event es.Event) error {
	if event == nil {
		return fmt.Errorf("append: %w: nil event", es.ErrInvalidEventBatch)
	}
	_, err := s.AppendStream(ctx, event.AggregateID(), []es.Event{event}, es.Any{})
	return err
}

func (s *FileStore) AppendStream(ctx context.Context, aggregateID string, events []es.Event, expected es.StreamState) (es.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return es.AppendResult{}, err
	}
	if err := es.CheckBatch(aggregateID, events); err != nil {
		return es.AppendResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return es.AppendResult{}, es.ErrStoreClosed
	}

	current := s.counts[aggregateID]
	if err := es.CheckRevision(aggregateID, expected, current); err != nil {
		return es.AppendResult{}, err
	}

	var buf []byte
	for _, ev := range events {
		line, err := json.Marshal(toStored(ev.ToRecord()))
		if err != nil {
			return es.AppendResult{}, es.WrapStorageWriteError(fmt.Errorf("encode event %s: %w", ev.EventID(), err))
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	if err := s.rewind(); err != nil {
		return es.AppendResult{}, es.WrapStorageWriteError(err)
	}
	// A single write keeps the batch contiguous in the log.
	if _, err := s.file.Write(buf); err != nil {
		return es.AppendResult{}, s.rollback(fmt.Errorf("write %s: %w", s.path, err))
	}
	if err := s.file.Sync(); err != nil {
		return es.AppendResult{}, s.rollback(fmt.Errorf("sync %s: %w", s.path, err))
	}
	s.size += int64(len(buf))

	current += uint64(len(events))
	s.counts[aggregateID] = current

	return es.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: current,
	}, nil
}

func (s *FileStore) ListAll(ctx context.Context) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return nil, es.ErrStoreClosed
	}
	records, _, err := s.readRecords(s.size)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	events := make([]es.Event, 0, len(records))
	for i, r := range records {
		ev, err := s.decode(r)
		if err != nil {
			return nil, fmt.Errorf("list events: %s line %d: %w", s.path, i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// rewind cuts anything past the committed size, such as the remains of a
// failed write, so the next batch starts on a fresh line.
func (s *FileStore) rewind() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.Size() == s.size {
		return nil
	}
	if err := s.file.Truncate(s.size); err != nil {
		return fmt.Errorf("truncate %s: %w", s.path, err)
	}
	return nil
}

// rollback drops a partially written batch and wraps cause as a storage
// write error.
func (s *FileStore) rollback(cause error) error {
	if err := s.file.Truncate(s.size); err != nil {
		cause = errors.Join(cause, fmt.Errorf("truncate %s: %w", s.path, err))
	}
	return es.WrapStorageWriteError(cause)
}

// readRecords reads the complete lines within the first limit bytes of the
// log (the whole file when limit is negative) and returns the byte size they
// occupy. A trailing line without newline is a torn write and is skipped.
// Callers hold s.mu.
func (s *FileStore) readRecords(limit int64) ([]es.Record, int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var (
		records []es.Record
		size    int64
		src     io.Reader = f
	)
	if limit >= 0 {
		src = io.LimitReader(f, limit)
	}
	r := bufio.NewReader(src)
	for line := 1; ; line++ {
		data, err := r.ReadBytes('\n')
		if len(data) > 0 && data[len(data)-1] == '\n' {
			var stored storedEvent
			if uerr := json.Unmarshal(data, &stored); uerr != nil {
				return nil, 0, fmt.Errorf("read %s line %d: %w", s.path, line, uerr)
			}
			records = append(records, stored.record())
			size += int64(len(data))
		}
		if errors.Is(err, io.EOF) {
			return records, size, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", s.path, err)
		}
	}
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

type storedEvent struct {
	EventID     uuid.UUID      `json:"event_id"`
	AggregateID string         `json:"aggregate_id"`
	EventType   string         `json:"event_type"`
	Changes     map[string]any `json:"changes"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toStored(r es.Record) storedEvent {
	return storedEvent{
		EventID:     r.EventID,
		AggregateID: r.AggregateID,
		EventType:   string(r.Name),
		Changes:     r.Changes,
		CreatedAt:   r.CreatedAt,
	}
}

func (s storedEvent) record() es.Record {
	return es.Record{
		EventID:     s.EventID,
		Name:        es.EventKind(s.EventType),
		AggregateID: s.AggregateID,
		CreatedAt:   s.CreatedAt,
		Changes:     es.CloneChanges(s.Changes),
	}
}
