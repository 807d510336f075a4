package storage

import (
	"context"
	"errors"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
)

// MaxPageSize is the hard per-query row cap every backend enforces.
const MaxPageSize = config.MaxPageSize

var (
	// ErrInvalidColumn is returned when a request names a column that is not
	// a valid identifier for the backend.
	ErrInvalidColumn = errors.New("invalid column name")

	// ErrUnknownKind is returned by New for an unregistered backend kind.
	ErrUnknownKind = errors.New("unknown storage kind")
)

// Querier is the range-query half of the remote store contract.
type Querier interface {
	// Query returns at most min(req.Limit, MaxPageSize) rows matching req.
	Query(ctx context.Context, req QueryRequest) ([]record.Row, error)
}

// Counter is the head-count half of the remote store contract.
type Counter interface {
	// Count returns the number of rows matching spec without materializing them.
	Count(ctx context.Context, spec filter.Spec) (int, error)
}

// Storage defines the interface for technician record backends.
// Implementations: memory (testing), badger (embedded), postgres and sqlite (SQL).
type Storage interface {
	Querier
	Counter

	// Close cleanly shuts down the storage
	Close() error
}

// Loader is implemented by backends that accept new rows. Only seeding and
// tests write; the reporting pipeline is read-only.
type Loader interface {
	Insert(ctx context.Context, rows []record.Row) error
}

// TableCreator is implemented by SQL backends that can create their table.
type TableCreator interface {
	EnsureTable(ctx context.Context, columns []string) error
}

// Order is a sort directive.
type Order struct {
	Column string
	Desc   bool
}

// Cursor asks for rows whose Column value is strictly greater than After.
type Cursor struct {
	Column string
	After  any
}

// QueryRequest specifies which rows to retrieve
type QueryRequest struct {
	// Columns to project (empty = all columns)
	Columns []string

	// Filter applied before ordering and paging
	Filter filter.Spec

	// Order applied before paging (optional, but required for stable paging)
	Order []Order

	// After restricts the result to rows past a keyset cursor (optional)
	After *Cursor

	// Offset and Limit select the page (Limit 0 = MaxPageSize)
	Offset int
	Limit  int
}

// PageLimit returns the effective row limit after applying the backend cap.
func (r QueryRequest) PageLimit() int {
	if r.Limit <= 0 || r.Limit > MaxPageSize {
		return MaxPageSize
	}
	return r.Limit
}

// StatsProvider is implemented by backends that can report their size.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Stats provides storage health and usage info
type Stats struct {
	// Total rows stored
	TotalRows uint64 `json:"total_rows"`

	// Storage size in bytes (estimate for in-process backends)
	SizeBytes uint64 `json:"size_bytes"`
}
