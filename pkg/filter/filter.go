// Package filter compiles request parameters into store-neutral predicates.
//
// A Spec is a conjunction of column terms plus an optional free-text search
// group whose columns are ORed together. Values are sanitized at compile time
// so that backends can embed them in LIKE patterns as literals.
package filter

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"

	"github.com/nicktill/techboard/pkg/record"
)

// Mode selects how a term compares against a column.
type Mode int

const (
	// Exact compares the column's text form for equality.
	Exact Mode = iota
	// Partial is a case-insensitive substring match.
	Partial
)

func (m Mode) String() string {
	if m == Partial {
		return "partial"
	}
	return "exact"
}

// Term is a single column predicate.
type Term struct {
	Column string `json:"column"`
	Mode   Mode   `json:"mode"`
	Value  string `json:"value"`
}

// SearchGroup matches when any of its columns partially matches Value.
type SearchGroup struct {
	Columns []string `json:"columns"`
	Value   string   `json:"value"`
}

// Spec is the compiled filter. The zero value matches every row.
type Spec struct {
	Terms  []Term       `json:"terms,omitempty"`
	Search *SearchGroup `json:"search,omitempty"`
}

// Param declares one recognized request parameter.
type Param struct {
	Name   string
	Column string
	Mode   Mode
}

// Declarations lists the parameters an endpoint understands.
type Declarations struct {
	Params []Param
	// SearchParam names the free-text parameter, usually "q".
	SearchParam   string
	SearchColumns []string
}

// Names returns every recognized parameter name, search parameter included.
func (d Declarations) Names() []string {
	names := make([]string, 0, len(d.Params)+1)
	for _, p := range d.Params {
		names = append(names, p.Name)
	}
	if d.SearchParam != "" {
		names = append(names, d.SearchParam)
	}
	return names
}

// Sanitize strips characters that carry meaning in wildcard patterns or in
// the remote store's filter syntax, then trims surrounding space.
func Sanitize(value string) string {
	value = strings.NewReplacer(",", "", "%", "").Replace(value)
	return strings.TrimSpace(value)
}

// Compile builds a Spec from raw parameter values. Unknown parameters are
// ignored and values that are empty after sanitizing produce no term.
func Compile(params map[string]string, d Declarations) Spec {
	var spec Spec
	for _, p := range d.Params {
		raw, ok := params[p.Name]
		if !ok {
			continue
		}
		if v := Sanitize(raw); v != "" {
			spec.Terms = append(spec.Terms, Term{Column: p.Column, Mode: p.Mode, Value: v})
		}
	}

	if d.SearchParam != "" && len(d.SearchColumns) > 0 {
		if v := Sanitize(params[d.SearchParam]); v != "" {
			cols := make([]string, len(d.SearchColumns))
			copy(cols, d.SearchColumns)
			spec.Search = &SearchGroup{Columns: cols, Value: v}
		}
	}
	return spec
}

// CompileValues is Compile for url.Values; the first value of each key wins.
func CompileValues(values url.Values, d Declarations) Spec {
	params := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return Compile(params, d)
}

// With returns a copy of s with extra terms appended. s is not modified.
func (s Spec) With(terms ...Term) Spec {
	out := Spec{Search: s.Search}
	out.Terms = make([]Term, 0, len(s.Terms)+len(terms))
	out.Terms = append(out.Terms, s.Terms...)
	out.Terms = append(out.Terms, terms...)
	return out
}

// IsEmpty reports whether the spec matches everything.
func (s Spec) IsEmpty() bool {
	return len(s.Terms) == 0 && s.Search == nil
}

// Columns returns every column referenced by the spec, in first-use order.
func (s Spec) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, t := range s.Terms {
		add(t.Column)
	}
	if s.Search != nil {
		for _, c := range s.Search.Columns {
			add(c)
		}
	}
	return cols
}

// Matches evaluates the spec against a row in process. Backends that cannot
// push predicates down use it to filter scanned rows.
func (s Spec) Matches(row record.Row) bool {
	for _, t := range s.Terms {
		v, ok := row.Text(t.Column)
		if !ok {
			return false
		}
		if !t.matches(v) {
			return false
		}
	}
	if s.Search != nil {
		needle := fold(s.Search.Value)
		for _, c := range s.Search.Columns {
			if v, ok := row.Text(c); ok && strings.Contains(fold(v), needle) {
				return true
			}
		}
		return false
	}
	return true
}

func (t Term) matches(v string) bool {
	if t.Mode == Partial {
		return strings.Contains(fold(v), fold(t.Value))
	}
	return v == t.Value
}

// fold applies Unicode case folding. A fresh Caser is used per call because
// Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
