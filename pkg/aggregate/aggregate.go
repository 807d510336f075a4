// Package aggregate deduplicates fetched rows by entity and accumulates
// per-group, per-category entity sets.
//
// Counting uses sets keyed by the entity identifier, so an entity that shows
// up twice (for example in two overlapping pages of an offset fetch) is
// counted once per bucket and category. An entity whose category changed
// between pages is counted once in each category it was seen in.
package aggregate

import (
	"strings"

	"github.com/nicktill/techboard/pkg/record"
)

// Metric classifies rows by one column.
type Metric struct {
	Name        string
	Column      string
	Categorizer Categorizer
}

// Grouping defines one pivot: a GroupKey is built from Dimensions, all of
// which must be present. Require lists extra columns that must be present
// for the row to enter this grouping.
type Grouping struct {
	Name       string
	Dimensions []string
	Require    []string
}

// Spec configures an aggregation.
type Spec struct {
	// EntityColumn holds the identity used for deduplication.
	EntityColumn string
	// Require lists columns without which a row is skipped entirely.
	Require   []string
	Groupings []Grouping
	Metrics   []Metric
}

// GroupKey is the tuple of dimension values identifying a bucket.
type GroupKey []string

func (k GroupKey) String() string {
	return strings.Join(k, " / ")
}

func (k GroupKey) id() string {
	return strings.Join(k, "\x1f")
}

// Bucket accumulates the rows and entities of one GroupKey.
type Bucket struct {
	Key GroupKey
	// Rows counts raw rows, duplicates included.
	Rows     int
	entities map[string]struct{}

	// per metric: category -> entity set
	categories map[string]map[string]map[string]struct{}
	// per metric: categories in first-encounter order
	categoryOrder map[string][]string
	// per metric: rows whose value was present but outside the category set
	uncategorized map[string]int
}

func newBucket(key GroupKey) *Bucket {
	return &Bucket{
		Key:           key,
		entities:      make(map[string]struct{}),
		categories:    make(map[string]map[string]map[string]struct{}),
		categoryOrder: make(map[string][]string),
		uncategorized: make(map[string]int),
	}
}

// Entities returns the number of distinct entities in the bucket.
func (b *Bucket) Entities() int {
	return len(b.entities)
}

// Has reports whether entity was counted in the bucket.
func (b *Bucket) Has(entity string) bool {
	_, ok := b.entities[entity]
	return ok
}

// Count returns the distinct entities in a metric category.
func (b *Bucket) Count(metric, category string) int {
	return len(b.categories[metric][category])
}

// Categorized returns the distinct entities that fell in any category of
// metric. An entity seen in two categories is counted once.
func (b *Bucket) Categorized(metric string) int {
	seen := make(map[string]struct{})
	for _, set := range b.categories[metric] {
		for e := range set {
			seen[e] = struct{}{}
		}
	}
	return len(seen)
}

// Uncategorized returns the rows whose metric value fell outside the
// category domain.
func (b *Bucket) Uncategorized(metric string) int {
	return b.uncategorized[metric]
}

// CategoryCount is one category and its distinct entity count.
type CategoryCount struct {
	Category string
	Count    int
}

// Counts lists the categories of metric in first-encounter order.
func (b *Bucket) Counts(metric string) []CategoryCount {
	order := b.categoryOrder[metric]
	out := make([]CategoryCount, len(order))
	for i, c := range order {
		out[i] = CategoryCount{Category: c, Count: b.Count(metric, c)}
	}
	return out
}

func (b *Bucket) add(entity string, cats map[string]string) {
	b.Rows++
	b.entities[entity] = struct{}{}
	for metric, label := range cats {
		byCat, ok := b.categories[metric]
		if !ok {
			byCat = make(map[string]map[string]struct{})
			b.categories[metric] = byCat
		}
		set, ok := byCat[label]
		if !ok {
			set = make(map[string]struct{})
			byCat[label] = set
			b.categoryOrder[metric] = append(b.categoryOrder[metric], label)
		}
		set[entity] = struct{}{}
	}
}

// Group holds the buckets of one Grouping in first-encounter order.
type Group struct {
	Name       string
	Dimensions []string
	Buckets    []*Bucket
	index      map[string]*Bucket
}

// Bucket returns the bucket for the given dimension values, or nil.
func (g *Group) Bucket(values ...string) *Bucket {
	return g.index[GroupKey(values).id()]
}

func (g *Group) bucket(key GroupKey) *Bucket {
	id := key.id()
	if b, ok := g.index[id]; ok {
		return b
	}
	b := newBucket(key)
	g.index[id] = b
	g.Buckets = append(g.Buckets, b)
	return b
}

// Result is the output of Aggregate.
type Result struct {
	// RowsConsidered counts every input row.
	RowsConsidered int
	// RowsSkipped counts rows without an entity key or a required column.
	RowsSkipped int
	// Overall holds every row that was not skipped.
	Overall *Bucket
	Groups  []*Group
}

// Group returns the named grouping, or nil.
func (r *Result) Group(name string) *Group {
	for _, g := range r.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Aggregate walks rows once. It never fails: rows with an absent entity key
// or required column are skipped, absent dimension values exclude a row from
// that grouping only, and out-of-domain metric values are left uncategorized.
func Aggregate(rows []record.Row, spec Spec) *Result {
	res := &Result{Overall: newBucket(nil)}
	for _, g := range spec.Groupings {
		res.Groups = append(res.Groups, &Group{
			Name:       g.Name,
			Dimensions: g.Dimensions,
			index:      make(map[string]*Bucket),
		})
	}

	for _, row := range rows {
		res.RowsConsidered++

		entity, ok := Value(row, spec.EntityColumn)
		if !ok || !present(row, spec.Require) {
			res.RowsSkipped++
			continue
		}

		cats := make(map[string]string, len(spec.Metrics))
		var outside []string
		for _, m := range spec.Metrics {
			v, ok := Value(row, m.Column)
			if !ok {
				continue
			}
			categorizer := m.Categorizer
			if categorizer == nil {
				categorizer = Open{}
			}
			if label, ok := categorizer.Categorize(v); ok {
				cats[m.Name] = label
			} else {
				outside = append(outside, m.Name)
			}
		}

		place := func(b *Bucket) {
			b.add(entity, cats)
			for _, name := range outside {
				b.uncategorized[name]++
			}
		}

		place(res.Overall)
		for i, g := range spec.Groupings {
			if !present(row, g.Require) {
				continue
			}
			key, ok := groupKey(row, g.Dimensions)
			if !ok {
				continue
			}
			place(res.Groups[i].bucket(key))
		}
	}
	return res
}

func present(row record.Row, columns []string) bool {
	for _, c := range columns {
		if _, ok := Value(row, c); !ok {
			return false
		}
	}
	return true
}

func groupKey(row record.Row, dims []string) (GroupKey, bool) {
	key := make(GroupKey, len(dims))
	for i, d := range dims {
		v, ok := Value(row, d)
		if !ok {
			return nil, false
		}
		key[i] = v
	}
	return key, true
}
