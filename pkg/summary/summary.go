// Package summary turns aggregation buckets into the JSON payload served to
// dashboards: totals, sorted breakdowns with percentages, and diagnostics.
package summary

import (
	"math"
	"sort"
	"time"

	"github.com/nicktill/techboard/pkg/aggregate"
	"github.com/nicktill/techboard/pkg/reconcile"
)

// Entry is one breakdown line.
type Entry struct {
	Category   string `json:"category"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// Group is the breakdown of one pivot bucket.
type Group struct {
	Key       []string `json:"key"`
	Label     string   `json:"label"`
	Total     int      `json:"total"`
	Breakdown []Entry  `json:"breakdown,omitempty"`
}

// Debug carries pipeline diagnostics. It is serialized as "_debug" so
// operators can spot data drift without it being treated as an outage.
type Debug struct {
	RequestID         string             `json:"request_id,omitempty"`
	Paging            string             `json:"paging"`
	RowsFetched       int                `json:"rows_fetched"`
	Batches           int                `json:"batches"`
	RowsConsidered    int                `json:"rows_considered"`
	RowsSkipped       int                `json:"rows_skipped"`
	UniqueEntities    int                `json:"unique_entities"`
	Uncategorized     int                `json:"uncategorized"`
	CategoriesVersion int                `json:"categories_version"`
	Reconciliation    []reconcile.Report `json:"reconciliation"`
	PartialReason     string             `json:"partial_reason,omitempty"`
	DurationMS        int64              `json:"duration_ms"`
}

// Payload is the response body of a report.
type Payload struct {
	Report      string           `json:"report"`
	Total       int              `json:"total"`
	TotalSource reconcile.Source `json:"total_source"`
	Breakdown   []Entry          `json:"breakdown"`
	Groups      []Group          `json:"groups,omitempty"`
	Partial     bool             `json:"partial"`
	// PartialReason explains why Partial is set.
	PartialReason string    `json:"partial_reason,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	Debug         *Debug    `json:"_debug,omitempty"`
}

// Percentage returns round(100*count/total), or 0 when total is not positive.
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(total)))
}

// Breakdown converts category counts into entries sorted by count,
// descending. Ties keep input order. Percentages are relative to the sum of
// counts; when plain rounding drifts more than one point from 100 they are
// redistributed by largest remainder.
func Breakdown(counts []aggregate.CategoryCount) []Entry {
	total := 0
	for _, c := range counts {
		total += c.Count
	}

	entries := make([]Entry, len(counts))
	sum := 0
	for i, c := range counts {
		p := Percentage(c.Count, total)
		entries[i] = Entry{Category: c.Category, Count: c.Count, Percentage: p}
		sum += p
	}
	if total > 0 && (sum < 99 || sum > 101) {
		largestRemainder(entries, total)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

// largestRemainder assigns floor percentages and hands the leftover points to
// the entries with the largest fractional parts, earliest first on ties.
func largestRemainder(entries []Entry, total int) {
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(entries))
	assigned := 0
	for i := range entries {
		exact := 100 * float64(entries[i].Count) / float64(total)
		floor := math.Floor(exact)
		entries[i].Percentage = int(floor)
		assigned += int(floor)
		rems[i] = rem{idx: i, frac: exact - floor}
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for k := 0; k < 100-assigned && k < len(rems); k++ {
		entries[rems[k].idx].Percentage++
	}
}

// FromBucket builds the breakdown of one metric within a bucket.
func FromBucket(b *aggregate.Bucket, metric string) []Entry {
	return Breakdown(b.Counts(metric))
}

// FromGroup builds a breakdown whose categories are the group's buckets,
// counted by distinct entity.
func FromGroup(g *aggregate.Group) []Entry {
	counts := make([]aggregate.CategoryCount, len(g.Buckets))
	for i, b := range g.Buckets {
		counts[i] = aggregate.CategoryCount{Category: b.Key.String(), Count: b.Entities()}
	}
	return Breakdown(counts)
}

// Groups renders every bucket of g, largest first. When metric is non-empty
// each group carries that metric's breakdown.
func Groups(g *aggregate.Group, metric string) []Group {
	out := make([]Group, len(g.Buckets))
	for i, b := range g.Buckets {
		out[i] = Group{
			Key:   append([]string(nil), b.Key...),
			Label: b.Key.String(),
			Total: b.Entities(),
		}
		if metric != "" {
			out[i].Breakdown = FromBucket(b, metric)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// Stable returns a copy of p without the fields that change on every run
// (timestamps, timings, request IDs), suitable for computing an ETag.
func (p Payload) Stable() Payload {
	p.GeneratedAt = time.Time{}
	if p.Debug != nil {
		d := *p.Debug
		d.DurationMS = 0
		d.RequestID = ""
		p.Debug = &d
	}
	return p
}
