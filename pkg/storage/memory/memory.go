package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return New(), nil
	})
}

// Storage stores rows in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	rows []record.Row
	mu   sync.RWMutex

	queries atomic.Int64
	counts  atomic.Int64
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		rows: make([]record.Row, 0, 1024),
	}
}

// Insert appends rows. Rows are copied so callers may reuse their maps.
func (s *Storage) Insert(ctx context.Context, rows []record.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		s.rows = append(s.rows, r.Project(nil))
	}
	return nil
}

// Delete removes every row matching spec and returns how many were removed.
func (s *Storage) Delete(ctx context.Context, spec filter.Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rows[:0]
	removed := 0
	for _, r := range s.rows {
		if spec.Matches(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return removed, nil
}

// Query retrieves rows matching the request
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.queries.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.Apply(s.rows, req), nil
}

// Count returns the number of rows matching spec
func (s *Storage) Count(ctx context.Context, spec filter.Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.counts.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.rows {
		if spec.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Calls returns how many Query and Count calls the store has served.
func (s *Storage) Calls() (queries, counts int64) {
	return s.queries.Load(), s.counts.Load()
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Rough size estimate (each row ~256 bytes)
	return &storage.Stats{
		TotalRows: uint64(len(s.rows)),
		SizeBytes: uint64(len(s.rows)) * 256,
	}, nil
}
