package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/storage/memory"
)

// recordingQuerier serves rows from memory and records every request.
type recordingQuerier struct {
	rows   []record.Row
	failAt int // 1-based call number that fails; 0 = never

	mu    sync.Mutex
	calls []storage.QueryRequest
}

var errBoom = errors.New("connection reset by peer")

func (q *recordingQuerier) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	q.mu.Lock()
	q.calls = append(q.calls, req)
	n := len(q.calls)
	q.mu.Unlock()

	if q.failAt > 0 && n == q.failAt {
		return nil, errBoom
	}
	return storage.Apply(q.rows, req), nil
}

func makeRows(n int) []record.Row {
	rows := make([]record.Row, n)
	for i := range rows {
		rows[i] = record.Row{"id": int64(i + 1), "national_id": record.Format(1000000 + i)}
	}
	return rows
}

func TestFetchAllCompleteness(t *testing.T) {
	for _, n := range []int{0, 1, 999, 1000, 1001, 2000} {
		q := &recordingQuerier{rows: makeRows(n)}
		res, err := New(q).FetchAll(context.Background(), Request{})
		require.NoError(t, err, "n=%d", n)
		require.Len(t, res.Rows, n, "n=%d", n)
		require.False(t, res.Partial, "n=%d", n)

		// Exact multiples need one extra, empty batch to detect the end.
		wantBatches := n/1000 + 1
		require.Equal(t, wantBatches, res.Batches, "n=%d", n)
	}
}

func TestFetchAllBatchSizes(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(2500)}
	res, err := New(q).FetchAll(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2500)
	require.Equal(t, 3, res.Batches)

	require.Len(t, q.calls, 3)
	for i, call := range q.calls {
		require.Equal(t, i*1000, call.Offset)
		require.Equal(t, 1000, call.Limit)
	}
	require.Equal(t, int64(2500), res.Rows[2499]["id"])
}

func TestFetchAllReusesFilterAndOrder(t *testing.T) {
	spec := filter.Spec{Terms: []filter.Term{{Column: "national_id", Mode: filter.Partial, Value: "1"}}}
	order := []storage.Order{{Column: "id", Desc: true}}

	q := &recordingQuerier{rows: makeRows(1500)}
	_, err := New(q).FetchAll(context.Background(), Request{Filter: spec, Order: order})
	require.NoError(t, err)

	for _, call := range q.calls {
		require.Equal(t, spec, call.Filter)
		require.Equal(t, order, call.Order)
	}
}

func TestFetchAllSafetyCeiling(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(350)}
	res, err := New(q, WithBatchSize(100), WithMaxRows(300)).FetchAll(context.Background(), Request{})
	require.NoError(t, err)
	require.True(t, res.Partial)
	require.NotEmpty(t, res.PartialReason)
	require.Len(t, res.Rows, 300)
	require.Equal(t, 3, res.Batches)
}

func TestFetchAllCeilingExactlyReached(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(300)}
	res, err := New(q, WithBatchSize(100), WithMaxRows(300)).FetchAll(context.Background(), Request{})
	require.NoError(t, err)
	require.False(t, res.Partial, "no rows remain past the ceiling")
	require.Len(t, res.Rows, 300)
}

func TestFetchAllBatchErrorAborts(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(2500), failAt: 2}
	res, err := New(q).FetchAll(context.Background(), Request{})
	require.Nil(t, res)

	var berr *BatchError
	require.ErrorAs(t, err, &berr)
	require.Equal(t, 2, berr.Batch)
	require.Equal(t, 1000, berr.Offset)
	require.ErrorIs(t, err, errBoom)
	require.Len(t, q.calls, 2, "failed batches are not retried")
}

func TestFetchAllBestEffort(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(2500), failAt: 3}
	res, err := New(q).FetchAll(context.Background(), Request{BestEffort: true})
	require.ErrorIs(t, err, errBoom)
	require.NotNil(t, res)
	require.True(t, res.Partial)
	require.Len(t, res.Rows, 2000)
	require.Contains(t, res.PartialReason, "offset 2000")
}

func TestFetchAllKeyset(t *testing.T) {
	q := &recordingQuerier{rows: makeRows(2500)}
	res, err := New(q).FetchAll(context.Background(), Request{Cursor: "id", Columns: []string{"national_id"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2500)
	require.Equal(t, 3, res.Batches)

	require.Nil(t, q.calls[0].After)
	require.Equal(t, int64(1000), q.calls[1].After.After)
	require.Equal(t, int64(2000), q.calls[2].After.After)
	for _, call := range q.calls {
		require.Zero(t, call.Offset)
		require.Equal(t, []string{"national_id", "id"}, call.Columns)
	}
}

func TestFetchAllKeysetStableUnderInsert(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, makeRows(1500)))

	// Insert a row with a lower sort position between the first and second batch.
	q := &insertingQuerier{Storage: store}
	res, err := New(q).FetchAll(ctx, Request{Cursor: "id"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1500)

	seen := make(map[any]bool)
	for _, r := range res.Rows {
		require.False(t, seen[r["id"]], "duplicate id %v", r["id"])
		seen[r["id"]] = true
	}
}

type insertingQuerier struct {
	*memory.Storage
	calls int
}

func (q *insertingQuerier) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	q.calls++
	if q.calls == 2 {
		if err := q.Storage.Insert(ctx, []record.Row{{"id": int64(0), "national_id": "late"}}); err != nil {
			return nil, err
		}
	}
	return q.Storage.Query(ctx, req)
}

func TestFetchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := &recordingQuerier{rows: makeRows(10)}
	_, err := New(q).FetchAll(ctx, Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, q.calls)
}
