// Package fetch reads a complete logical table through a store that caps
// every response at a fixed number of rows.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
)

// ErrMissingCursor is returned in keyset mode when a fetched row has no value
// for the cursor column.
var ErrMissingCursor = errors.New("row has no value for cursor column")

// Request describes one logical fetch. Filter and Order are reused unchanged
// for every batch.
type Request struct {
	Columns []string
	Filter  filter.Spec
	Order   []storage.Order

	// Cursor names a monotonically increasing column. When set, batches are
	// requested strictly after the last value seen instead of by offset, and
	// rows are ordered by that column.
	Cursor string

	// BestEffort returns rows accumulated before a failed batch, flagged as
	// partial, alongside the error.
	BestEffort bool
}

// Result is the outcome of a fetch.
type Result struct {
	Rows          []record.Row
	Batches       int
	Partial       bool
	PartialReason string
}

// BatchError reports the range query that aborted a fetch.
type BatchError struct {
	Batch  int
	Offset int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d at offset %d failed: %v", e.Batch, e.Offset, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Fetcher pages through a storage.Querier.
type Fetcher struct {
	querier   storage.Querier
	batchSize int
	maxRows   int
	logger    *zap.Logger
	recorder  metrics.Recorder
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBatchSize sets the rows requested per range query. Values outside
// [1, storage.MaxPageSize] are ignored.
func WithBatchSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 && n <= storage.MaxPageSize {
			f.batchSize = n
		}
	}
}

// WithMaxRows sets the safety ceiling on rows accumulated by one fetch.
func WithMaxRows(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxRows = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(f *Fetcher) { f.recorder = metrics.OrNop(r) }
}

// New creates a Fetcher with the default batch size and ceiling.
func New(q storage.Querier, opts ...Option) *Fetcher {
	f := &Fetcher{
		querier:   q,
		batchSize: config.BatchSize,
		maxRows:   config.MaxFetchRows,
		logger:    zap.NewNop(),
		recorder:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BatchSize returns the configured batch size.
func (f *Fetcher) BatchSize() int { return f.batchSize }

// FetchAll issues range queries of BatchSize rows, in increasing offset order,
// until a batch comes back short or empty. It stops early with a partial
// result when the safety ceiling is reached and more rows remain.
func (f *Fetcher) FetchAll(ctx context.Context, req Request) (*Result, error) {
	base := storage.QueryRequest{
		Columns: req.Columns,
		Filter:  req.Filter,
		Order:   req.Order,
	}
	if req.Cursor != "" {
		base.Order = []storage.Order{{Column: req.Cursor}}
		if len(base.Columns) > 0 && !slices.Contains(base.Columns, req.Cursor) {
			base.Columns = append(append([]string(nil), base.Columns...), req.Cursor)
		}
	}

	maxBatches := (f.maxRows+f.batchSize-1)/f.batchSize + 1
	res := &Result{}
	offset := 0
	var after *storage.Cursor

	for {
		if len(res.Rows) >= f.maxRows || res.Batches >= maxBatches {
			more, err := f.probe(ctx, base, offset, after)
			if err != nil {
				return f.fail(req, res, offset, err)
			}
			if more {
				res.Partial = true
				res.PartialReason = fmt.Sprintf("safety ceiling reached after %d rows in %d batches", len(res.Rows), res.Batches)
				f.logger.Warn("fetch stopped at safety ceiling",
					zap.Int("rows", len(res.Rows)),
					zap.Int("batches", res.Batches),
					zap.Int("max_rows", f.maxRows))
			}
			break
		}

		if err := ctx.Err(); err != nil {
			return f.fail(req, res, offset, err)
		}

		q := base
		q.Limit = min(f.batchSize, f.maxRows-len(res.Rows))
		if req.Cursor != "" {
			q.After = after
		} else {
			q.Offset = offset
		}

		batch, err := f.querier.Query(ctx, q)
		if err != nil {
			return f.fail(req, res, offset, err)
		}
		res.Batches++
		f.recorder.BatchFetched(len(batch))
		f.logger.Debug("batch fetched",
			zap.Int("batch", res.Batches),
			zap.Int("offset", offset),
			zap.Int("rows", len(batch)))

		res.Rows = append(res.Rows, batch...)
		offset += len(batch)

		if req.Cursor != "" && len(batch) > 0 {
			last, ok := batch[len(batch)-1][req.Cursor]
			if !ok || last == nil {
				return f.fail(req, res, offset, fmt.Errorf("%w %q", ErrMissingCursor, req.Cursor))
			}
			after = &storage.Cursor{Column: req.Cursor, After: last}
		}

		if len(batch) < q.Limit {
			break
		}
	}

	f.recorder.FetchFinished(res.Partial)
	return res, nil
}

// probe checks whether at least one row exists past the current position.
func (f *Fetcher) probe(ctx context.Context, base storage.QueryRequest, offset int, after *storage.Cursor) (bool, error) {
	q := base
	q.Limit = 1
	if after != nil {
		q.After = after
	} else {
		q.Offset = offset
	}
	rows, err := f.querier.Query(ctx, q)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (f *Fetcher) fail(req Request, res *Result, offset int, err error) (*Result, error) {
	berr := &BatchError{Batch: res.Batches + 1, Offset: offset, Err: err}
	f.logger.Error("fetch aborted",
		zap.Int("batch", berr.Batch),
		zap.Int("offset", offset),
		zap.Int("rows_so_far", len(res.Rows)),
		zap.Bool("best_effort", req.BestEffort),
		zap.Error(err))

	if !req.BestEffort {
		return nil, berr
	}
	res.Partial = true
	res.PartialReason = berr.Error()
	f.recorder.FetchFinished(true)
	return res, berr
}
