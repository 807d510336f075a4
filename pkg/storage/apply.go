package storage

import (
	"sort"

	"github.com/nicktill/techboard/pkg/record"
)

// Match reports whether row passes the request's filter and cursor.
func Match(row record.Row, req QueryRequest) bool {
	if !req.Filter.Matches(row) {
		return false
	}
	if req.After != nil {
		v, ok := row[req.After.Column]
		if !ok || v == nil || record.Compare(v, req.After.After) <= 0 {
			return false
		}
	}
	return true
}

// Apply evaluates a request against rows held in process: filter, cursor,
// order, offset, limit, projection. Rows are expected in insertion order,
// which is the fallback order when none is requested.
func Apply(rows []record.Row, req QueryRequest) []record.Row {
	matched := make([]record.Row, 0, len(rows))
	for _, row := range rows {
		if Match(row, req) {
			matched = append(matched, row)
		}
	}

	order := req.Order
	if len(order) == 0 && req.After != nil {
		order = []Order{{Column: req.After.Column}}
	}
	if len(order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range order {
				c := record.Compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if req.Offset >= len(matched) {
		return []record.Row{}
	}
	if req.Offset > 0 {
		matched = matched[req.Offset:]
	}
	if limit := req.PageLimit(); len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]record.Row, len(matched))
	for i, row := range matched {
		out[i] = row.Project(req.Columns)
	}
	return out
}
