// Package reconcile cross-checks aggregated counts against authoritative
// head counts. Mismatches are reported, never fatal.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/storage"
)

// Source names where a reported total came from.
type Source string

const (
	SourceAuthoritative Source = "authoritative"
	SourceAggregated    Source = "aggregated"
)

// Counter issues head-count queries. Failures are soft: they are logged and
// returned so the caller can fall back to its aggregated figure.
type Counter struct {
	store    storage.Counter
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewCounter wraps a store's Count.
func NewCounter(store storage.Counter, logger *zap.Logger, recorder metrics.Recorder) *Counter {
	return &Counter{
		store:    store,
		logger:   logging.OrNop(logger),
		recorder: metrics.OrNop(recorder),
	}
}

// Count returns the number of rows matching spec. On error it returns nil and
// the error; callers must not fail the request because of it.
func (c *Counter) Count(ctx context.Context, report, dimension string, spec filter.Spec) (*int, error) {
	n, err := c.store.Count(ctx, spec)
	if err != nil {
		c.recorder.CountFailed(report, dimension)
		c.logger.Warn("authoritative count failed, falling back to aggregated total",
			zap.String("report", report),
			zap.String("dimension", dimension),
			zap.Error(err))
		return nil, err
	}
	return &n, nil
}

// Check pairs an aggregated figure with its authoritative counterpart.
type Check struct {
	Dimension     string
	Aggregated    int
	Authoritative *int
	Err           error
}

// Report is the reconciliation outcome for one dimension.
type Report struct {
	Dimension          string `json:"dimension"`
	AggregatedCount    int    `json:"aggregated_count"`
	AuthoritativeCount *int   `json:"authoritative_count"`
	// Discrepancy is authoritative minus aggregated; nil when no
	// authoritative count was available.
	Discrepancy *int   `json:"discrepancy"`
	Error       string `json:"error,omitempty"`
}

// Compare builds the report for one check.
func Compare(c Check) Report {
	r := Report{
		Dimension:          c.Dimension,
		AggregatedCount:    c.Aggregated,
		AuthoritativeCount: c.Authoritative,
	}
	if c.Err != nil {
		r.Error = c.Err.Error()
	}
	if c.Authoritative != nil {
		d := *c.Authoritative - c.Aggregated
		r.Discrepancy = &d
	}
	return r
}

// Preferred returns the figure to show callers: the authoritative count when
// available, otherwise the aggregated one.
func (r Report) Preferred() (int, Source) {
	if r.AuthoritativeCount != nil {
		return *r.AuthoritativeCount, SourceAuthoritative
	}
	return r.AggregatedCount, SourceAggregated
}

// Reconciler compares checks and surfaces discrepancies through logs and
// metrics.
type Reconciler struct {
	logger   *zap.Logger
	recorder metrics.Recorder
}

// NewReconciler creates a Reconciler.
func NewReconciler(logger *zap.Logger, recorder metrics.Recorder) *Reconciler {
	return &Reconciler{logger: logging.OrNop(logger), recorder: metrics.OrNop(recorder)}
}

// Reconcile returns one report per check, in order.
func (r *Reconciler) Reconcile(report string, checks []Check) []Report {
	out := make([]Report, len(checks))
	for i, c := range checks {
		rep := Compare(c)
		out[i] = rep
		if rep.Discrepancy == nil {
			continue
		}
		r.recorder.Discrepancy(report, rep.Dimension, *rep.Discrepancy)
		if *rep.Discrepancy != 0 {
			r.logger.Warn("reconciliation discrepancy",
				zap.String("report", report),
				zap.String("dimension", rep.Dimension),
				zap.Int("aggregated", rep.AggregatedCount),
				zap.Int("authoritative", *rep.AuthoritativeCount),
				zap.Int("discrepancy", *rep.Discrepancy))
		}
	}
	return out
}
