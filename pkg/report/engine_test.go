package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/fetch"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/reconcile"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, store Store, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(store, Catalog(config.DefaultCategories()), opts...)
}

func seed(t *testing.T, rows []record.Row) *memory.Storage {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.Insert(context.Background(), rows))
	return s
}

func TestProvidersDiscrepancyIsNotFatal(t *testing.T) {
	providers := []string{"Nokia", "ZTE", "Huawei"}
	var rows []record.Row
	for i := 0; i < 1780; i++ {
		rows = append(rows, record.Row{
			"id":          i + 1,
			"national_id": fmt.Sprintf("%013d", i),
			"provider":    providers[i%len(providers)],
		})
	}
	// Seven duplicated identities: the head count sees 1787 rows.
	for i := 0; i < 7; i++ {
		rows = append(rows, record.Row{
			"id":          1781 + i,
			"national_id": fmt.Sprintf("%013d ", i),
			"provider":    providers[i%len(providers)],
		})
	}
	store := seed(t, rows)
	e := newEngine(t, store)

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{Debug: true})
	require.NoError(t, err)

	require.Equal(t, 1787, p.Total)
	require.Equal(t, reconcile.SourceAuthoritative, p.TotalSource)
	require.False(t, p.Partial)
	require.Equal(t, fixedNow, p.GeneratedAt)

	require.NotNil(t, p.Debug)
	require.Equal(t, 1787, p.Debug.RowsFetched)
	require.Equal(t, 2, p.Debug.Batches)
	require.Equal(t, 1780, p.Debug.UniqueEntities)
	require.Len(t, p.Debug.Reconciliation, 1)
	require.Equal(t, 7, *p.Debug.Reconciliation[0].Discrepancy)

	sum := 0
	for _, b := range p.Breakdown {
		sum += b.Count
	}
	require.Equal(t, 1780, sum)
}

func TestTrainingCategoriesAndChecks(t *testing.T) {
	store := seed(t, []record.Row{
		{"id": 1, "national_id": "1", "provider": "Nokia", "training_passed": "Yes"},
		{"id": 2, "national_id": "2", "provider": "Nokia", "training_passed": "yes "},
		{"id": 3, "national_id": "3", "provider": "ZTE", "training_passed": "No"},
		{"id": 4, "national_id": "4", "provider": "ZTE", "training_passed": "Maybe"},
		{"id": 5, "national_id": "", "provider": "ZTE", "training_passed": "Yes"},
	})
	e := newEngine(t, store)

	p, err := e.Run(context.Background(), "training", nil, RunOptions{})
	require.NoError(t, err)

	require.Len(t, p.Breakdown, 2)
	require.Equal(t, "Yes", p.Breakdown[0].Category)
	require.Equal(t, 2, p.Breakdown[0].Count)
	require.Equal(t, 67, p.Breakdown[0].Percentage)
	require.Equal(t, 1, p.Breakdown[1].Count)

	// training embeds diagnostics by default
	require.NotNil(t, p.Debug)
	require.Equal(t, 5, p.Debug.RowsConsidered)
	require.Equal(t, 1, p.Debug.RowsSkipped)
	require.Equal(t, 1, p.Debug.Uncategorized)

	byDim := map[string]reconcile.Report{}
	for _, r := range p.Debug.Reconciliation {
		byDim[r.Dimension] = r
	}
	require.Equal(t, 1, *byDim["total"].Discrepancy)
	require.Equal(t, 2, *byDim["Yes"].AuthoritativeCount, "exact head count sees only the canonical spelling")
	require.Equal(t, 0, *byDim["Yes"].Discrepancy)
	require.Equal(t, 0, *byDim["No"].Discrepancy)

	require.Len(t, p.Groups, 2)
	require.Equal(t, "Nokia", p.Groups[0].Label)
}

func TestRunAppliesFilters(t *testing.T) {
	store := seed(t, []record.Row{
		{"id": 1, "national_id": "1", "provider": "Nokia", "gender": "F", "tech_id": "T-100"},
		{"id": 2, "national_id": "2", "provider": "ZTE", "gender": "M", "tech_id": "T-200"},
		{"id": 3, "national_id": "3", "provider": "Nokia", "gender": "M", "tech_id": "T-300"},
	})
	e := newEngine(t, store)

	p, err := e.Run(context.Background(), "gender", url.Values{"provider": {"Nokia"}}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, p.Total)
	require.Nil(t, p.Debug)

	p, err = e.Run(context.Background(), "gender", url.Values{"q": {"t-2"}}, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, p.Total)
	require.Equal(t, "M", p.Breakdown[0].Category)
}

func TestRegionProviderRequiresManager(t *testing.T) {
	store := seed(t, []record.Row{
		{"id": 1, "national_id": "1", "region_code": "R1", "provider": "Nokia", "rsm": "Karim"},
		{"id": 2, "national_id": "2", "region_code": "R1", "provider": "Nokia", "rsm": "null"},
		{"id": 3, "national_id": "3", "region_code": "R2", "provider": "ZTE", "rsm": "Lina"},
	})
	e := newEngine(t, store)

	p, err := e.Run(context.Background(), "region-provider", nil, RunOptions{})
	require.NoError(t, err)
	require.Len(t, p.Breakdown, 2)
	require.Equal(t, 50, p.Breakdown[0].Percentage)
	require.Equal(t, 3, p.Total)
}

func TestUnknownReport(t *testing.T) {
	e := newEngine(t, memory.New())
	_, err := e.Run(context.Background(), "nope", nil, RunOptions{})
	require.ErrorIs(t, err, ErrUnknownReport)
}

type failingStore struct {
	*memory.Storage
	queryErr error
	countErr error
}

func (f failingStore) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Storage.Query(ctx, req)
}

func (f failingStore) Count(ctx context.Context, spec filter.Spec) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.Storage.Count(ctx, spec)
}

func TestFetchFailureFailsReport(t *testing.T) {
	e := newEngine(t, failingStore{Storage: memory.New(), queryErr: errors.New("connection reset")})

	_, err := e.Run(context.Background(), "providers", nil, RunOptions{})
	require.Error(t, err)
	var berr *fetch.BatchError
	require.ErrorAs(t, err, &berr)
	require.Equal(t, 0, berr.Offset)
}

func TestCountFailureFallsBackToAggregated(t *testing.T) {
	mem := seed(t, []record.Row{
		{"id": 1, "national_id": "1", "provider": "Nokia"},
		{"id": 2, "national_id": "1", "provider": "Nokia"},
	})
	e := newEngine(t, failingStore{Storage: mem, countErr: errors.New("503")})

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{Debug: true})
	require.NoError(t, err)
	require.Equal(t, 1, p.Total)
	require.Equal(t, reconcile.SourceAggregated, p.TotalSource)
	require.Nil(t, p.Debug.Reconciliation[0].Discrepancy)
	require.Equal(t, "503", p.Debug.Reconciliation[0].Error)
}

func TestCeilingMarksPartial(t *testing.T) {
	var rows []record.Row
	for i := 0; i < 30; i++ {
		rows = append(rows, record.Row{"id": i + 1, "national_id": fmt.Sprint(i), "provider": "Nokia"})
	}
	e := newEngine(t, seed(t, rows), WithFetchOptions(fetch.WithBatchSize(10), fetch.WithMaxRows(20)))

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{})
	require.NoError(t, err)
	require.True(t, p.Partial)
	require.NotEmpty(t, p.PartialReason)
	require.Equal(t, 30, p.Total, "authoritative count still reflects the whole table")
}

func TestKeysetRun(t *testing.T) {
	var rows []record.Row
	for i := 0; i < 25; i++ {
		rows = append(rows, record.Row{"id": i + 1, "national_id": fmt.Sprint(i), "provider": "ZTE"})
	}
	e := newEngine(t, seed(t, rows), WithFetchOptions(fetch.WithBatchSize(10)))

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{Cursor: "id", Debug: true})
	require.NoError(t, err)
	require.Equal(t, "keyset", p.Debug.Paging)
	require.Equal(t, 3, p.Debug.Batches)
	require.Equal(t, 25, p.Debug.UniqueEntities)
}

func TestKeysetRejectsNonUniqueCursor(t *testing.T) {
	// Uneven provider groups: a cursor on provider would skip the ties at
	// every batch boundary.
	providers := []string{"Nokia", "Nokia", "ZTE", "Huawei", "Huawei", "Huawei"}
	var rows []record.Row
	for i := 0; i < 40; i++ {
		rows = append(rows, record.Row{"id": i + 1, "national_id": fmt.Sprint(i), "provider": providers[i%len(providers)]})
	}
	e := newEngine(t, seed(t, rows), WithFetchOptions(fetch.WithBatchSize(10)))

	for _, col := range []string{"provider", "rsm", "status", "updated_at"} {
		_, err := e.Run(context.Background(), "providers", nil, RunOptions{Cursor: col})
		require.ErrorIs(t, err, ErrInvalidCursor, col)
	}

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{Cursor: ColID, Debug: true})
	require.NoError(t, err)
	require.Equal(t, 40, p.Debug.RowsFetched)
	require.Equal(t, 40, p.Debug.UniqueEntities)
	require.False(t, p.Partial)
}

// orderSpy records the order of every range query.
type orderSpy struct {
	*memory.Storage
	mu     sync.Mutex
	orders [][]storage.Order
}

func (s *orderSpy) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	s.mu.Lock()
	s.orders = append(s.orders, req.Order)
	s.mu.Unlock()
	return s.Storage.Query(ctx, req)
}

func TestOffsetFetchOrdersByID(t *testing.T) {
	var rows []record.Row
	for i := 0; i < 25; i++ {
		rows = append(rows, record.Row{"id": i + 1, "national_id": fmt.Sprint(i), "provider": "Nokia"})
	}
	spy := &orderSpy{Storage: seed(t, rows)}
	e := newEngine(t, spy, WithFetchOptions(fetch.WithBatchSize(10)))

	p, err := e.Run(context.Background(), "providers", nil, RunOptions{Debug: true})
	require.NoError(t, err)
	require.Equal(t, 3, p.Debug.Batches)

	require.Len(t, spy.orders, 3)
	for i, o := range spy.orders {
		require.Equal(t, []storage.Order{{Column: ColID}}, o, "batch %d", i+1)
	}
}

func TestCatalogNames(t *testing.T) {
	var names []string
	for _, d := range Catalog(config.DefaultCategories()) {
		names = append(names, d.Name)
	}
	require.Equal(t, []string{
		"providers", "training", "card-status", "region-provider",
		"gender", "degree", "work-type", "status",
	}, names)
}

func TestCatalogUsesConfiguredYesNo(t *testing.T) {
	cats := config.DefaultCategories()
	cats.Yes = []string{"Oui", "O"}
	cats.No = []string{"Non"}

	var training *Definition
	for _, d := range Catalog(cats) {
		if d.Name == "training" {
			training = d
		}
	}
	require.NotNil(t, training)

	var dims []string
	for _, c := range training.Checks {
		dims = append(dims, c.Dimension)
		if c.Category != "" {
			require.Equal(t, c.Category, c.Terms[0].Value)
		}
	}
	require.Equal(t, []string{"total", "Oui", "Non"}, dims)

	e := NewEngine(seed(t, []record.Row{
		{"id": 1, "national_id": "1", "training_passed": "o"},
		{"id": 2, "national_id": "2", "training_passed": "Yes"},
	}), Catalog(cats))
	p, err := e.Run(context.Background(), "training", nil, RunOptions{})
	require.NoError(t, err)
	require.Len(t, p.Breakdown, 1)
	require.Equal(t, "Oui", p.Breakdown[0].Category)
	require.Equal(t, 1, p.Breakdown[0].Count)
}
