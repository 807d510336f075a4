// Package report runs the shared reporting pipeline: compile filters, fetch
// every matching row while head counts run alongside, aggregate, reconcile and
// summarize.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nicktill/techboard/pkg/aggregate"
	"github.com/nicktill/techboard/pkg/fetch"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/reconcile"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/summary"
)

var (
	// ErrUnknownReport is returned when no definition has the requested name.
	ErrUnknownReport = errors.New("unknown report")

	// ErrInvalidCursor is returned when keyset paging is requested on a
	// column that is not a unique key.
	ErrInvalidCursor = errors.New("invalid cursor column")
)

// CursorColumns are the unique, increasing columns keyset paging may use.
// Paging past the last value of a non-unique column would skip its ties.
var CursorColumns = []string{ColID}

// fetchOrder is the offset-mode order; every batch must use the same total order.
var fetchOrder = []storage.Order{{Column: ColID}}

// Store is what the engine needs from a backend.
type Store interface {
	storage.Querier
	storage.Counter
}

// RunOptions tune a single report run.
type RunOptions struct {
	// Debug embeds diagnostics even when the definition does not.
	Debug     bool
	RequestID string
	// Cursor switches the fetch to keyset paging on this column, which must be
	// one of CursorColumns.
	Cursor string
	// BestEffort serves rows fetched before a failed batch as a partial result.
	BestEffort bool
}

// Engine runs report definitions against a store.
type Engine struct {
	store      Store
	defs       map[string]*Definition
	order      []*Definition
	fetcher    *fetch.Fetcher
	counter    *reconcile.Counter
	reconciler *reconcile.Reconciler
	logger     *zap.Logger
	recorder   metrics.Recorder
	version    int
	now        func() time.Time
	fetchOpts  []fetch.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = metrics.OrNop(r) }
}

// WithFetchOptions passes options to the paginated fetcher.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(e *Engine) { e.fetchOpts = append(e.fetchOpts, opts...) }
}

// WithCategoriesVersion stamps diagnostics with the category list version.
func WithCategoriesVersion(v int) Option {
	return func(e *Engine) { e.version = v }
}

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine serving defs.
func NewEngine(store Store, defs []*Definition, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		defs:     make(map[string]*Definition, len(defs)),
		order:    defs,
		logger:   zap.NewNop(),
		recorder: metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, d := range defs {
		e.defs[d.Name] = d
	}

	fetchOpts := append([]fetch.Option{
		fetch.WithLogger(e.logger),
		fetch.WithRecorder(e.recorder),
	}, e.fetchOpts...)
	e.fetcher = fetch.New(store, fetchOpts...)
	e.counter = reconcile.NewCounter(store, e.logger, e.recorder)
	e.reconciler = reconcile.NewReconciler(e.logger, e.recorder)
	return e
}

// Definitions returns the served reports in catalog order.
func (e *Engine) Definitions() []*Definition {
	return e.order
}

// Definition looks up a report by name.
func (e *Engine) Definition(name string) (*Definition, bool) {
	d, ok := e.defs[name]
	return d, ok
}

// Run executes the named report with filter parameters from params.
func (e *Engine) Run(ctx context.Context, name string, params url.Values, opts RunOptions) (*summary.Payload, error) {
	def, ok := e.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}
	return e.RunDefinition(ctx, def, filter.CompileValues(params, TechnicianFilters), opts)
}

// RunDefinition executes def with an already compiled filter.
func (e *Engine) RunDefinition(ctx context.Context, def *Definition, spec filter.Spec, opts RunOptions) (payload *summary.Payload, err error) {
	start := time.Now()
	defer func() {
		partial := payload != nil && payload.Partial
		e.recorder.ReportFinished(def.Name, metrics.Status(err, partial), time.Since(start))
	}()

	if opts.Cursor != "" && !slices.Contains(CursorColumns, opts.Cursor) {
		return nil, fmt.Errorf("%w: %q (allowed: %v)", ErrInvalidCursor, opts.Cursor, CursorColumns)
	}

	logger := e.logger.With(zap.String("report", def.Name))
	if opts.RequestID != "" {
		logger = logger.With(zap.String("request_id", opts.RequestID))
	}

	var (
		fetched   *fetch.Result
		fetchErr  error
		authority = make([]*int, len(def.Checks))
		countErrs = make([]error, len(def.Checks))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, fetchErr = e.fetcher.FetchAll(gctx, fetch.Request{
			Columns:    def.Columns,
			Filter:     spec,
			Order:      fetchOrder,
			Cursor:     opts.Cursor,
			BestEffort: opts.BestEffort,
		})
		if fetched == nil {
			return fetchErr
		}
		return nil
	})
	for i, c := range def.Checks {
		g.Go(func() error {
			authority[i], countErrs[i] = e.counter.Count(gctx, def.Name, c.Dimension, spec.With(c.Terms...))
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return nil, fmt.Errorf("report %s: %w", def.Name, werr)
	}
	if fetchErr != nil {
		logger.Warn("serving partial report after fetch failure", zap.Error(fetchErr))
	}

	res := aggregate.Aggregate(fetched.Rows, def.Aggregation)

	checks := make([]reconcile.Check, len(def.Checks))
	for i, c := range def.Checks {
		checks[i] = reconcile.Check{
			Dimension:     c.Dimension,
			Aggregated:    aggregatedFigure(res, c),
			Authoritative: authority[i],
			Err:           countErrs[i],
		}
	}
	reports := e.reconciler.Reconcile(def.Name, checks)

	payload = &summary.Payload{
		Report:        def.Name,
		Total:         res.Overall.Entities(),
		TotalSource:   reconcile.SourceAggregated,
		Breakdown:     e.breakdown(def, res),
		Partial:       fetched.Partial,
		PartialReason: fetched.PartialReason,
		GeneratedAt:   e.now().UTC(),
	}
	for _, r := range reports {
		if r.Dimension == "total" {
			payload.Total, payload.TotalSource = r.Preferred()
		}
	}
	if def.GroupsFrom != "" {
		if g := res.Group(def.GroupsFrom); g != nil {
			payload.Groups = summary.Groups(g, def.GroupMetric)
		}
	}
	if payload.Breakdown == nil {
		payload.Breakdown = []summary.Entry{}
	}

	if def.Debug || opts.Debug {
		uncategorized := 0
		for _, m := range def.Aggregation.Metrics {
			uncategorized += res.Overall.Uncategorized(m.Name)
		}
		paging := "offset"
		if opts.Cursor != "" {
			paging = "keyset"
		}
		payload.Debug = &summary.Debug{
			RequestID:         opts.RequestID,
			Paging:            paging,
			RowsFetched:       len(fetched.Rows),
			Batches:           fetched.Batches,
			RowsConsidered:    res.RowsConsidered,
			RowsSkipped:       res.RowsSkipped,
			UniqueEntities:    res.Overall.Entities(),
			Uncategorized:     uncategorized,
			CategoriesVersion: e.version,
			Reconciliation:    reports,
			PartialReason:     fetched.PartialReason,
			DurationMS:        time.Since(start).Milliseconds(),
		}
	}

	logger.Debug("report built",
		zap.Int("rows", len(fetched.Rows)),
		zap.Int("batches", fetched.Batches),
		zap.Int("total", payload.Total),
		zap.Bool("partial", payload.Partial))
	return payload, nil
}

func (e *Engine) breakdown(def *Definition, res *aggregate.Result) []summary.Entry {
	switch {
	case def.BreakdownGroup != "":
		if g := res.Group(def.BreakdownGroup); g != nil {
			return summary.FromGroup(g)
		}
		return nil
	case def.BreakdownMetric != "":
		return summary.FromBucket(res.Overall, def.BreakdownMetric)
	}
	return nil
}

func aggregatedFigure(res *aggregate.Result, c Check) int {
	switch {
	case c.Metric == "":
		return res.Overall.Entities()
	case c.Category == "":
		return res.Overall.Categorized(c.Metric)
	default:
		return res.Overall.Count(c.Metric, c.Category)
	}
}
