// Package sqlbuild renders storage requests as parameterized SQL for the
// database/sql and pgx backends.
package sqlbuild

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/storage"
)

// Dialect captures the syntax differences between supported databases.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ILike is the case-insensitive LIKE operator.
	ILike string
}

// Postgres uses $n placeholders and ILIKE.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	ILike:       "ILIKE",
}

// SQLite uses ? placeholders; its LIKE is already case-insensitive for ASCII.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	ILike:       "LIKE",
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name can be used as a bare column or table name.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// Ident quotes a validated identifier. Schema-qualified names are quoted per part.
func Ident(name string) (string, error) {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if !ValidIdent(p) {
			return "", fmt.Errorf("%w: %q", storage.ErrInvalidColumn, name)
		}
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, "."), nil
}

// EscapeLike escapes LIKE metacharacters so value matches literally. The
// escape character is backslash.
func EscapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// Builder accumulates bind arguments while rendering clauses.
type Builder struct {
	d    Dialect
	args []any
}

// New returns a Builder for d.
func New(d Dialect) *Builder {
	return &Builder{d: d}
}

// Args returns the bind arguments collected so far.
func (b *Builder) Args() []any {
	return b.args
}

func (b *Builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *Builder) text(column string) (string, error) {
	id, err := Ident(column)
	if err != nil {
		return "", err
	}
	return "CAST(" + id + " AS TEXT)", nil
}

func (b *Builder) term(column string, mode filter.Mode, value string) (string, error) {
	col, err := b.text(column)
	if err != nil {
		return "", err
	}
	if mode == filter.Partial {
		return fmt.Sprintf(`%s %s %s ESCAPE '\'`, col, b.d.ILike, b.bind("%"+EscapeLike(value)+"%")), nil
	}
	return fmt.Sprintf("%s = %s", col, b.bind(value)), nil
}

// Where renders the WHERE clause (without the keyword) for spec and an
// optional keyset cursor. It returns "" when there is nothing to filter.
func (b *Builder) Where(spec filter.Spec, after *storage.Cursor) (string, error) {
	var conds []string
	for _, t := range spec.Terms {
		c, err := b.term(t.Column, t.Mode, t.Value)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}

	if spec.Search != nil && len(spec.Search.Columns) > 0 {
		var ors []string
		for _, col := range spec.Search.Columns {
			c, err := b.term(col, filter.Partial, spec.Search.Value)
			if err != nil {
				return "", err
			}
			ors = append(ors, c)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if after != nil {
		id, err := Ident(after.Column)
		if err != nil {
			return "", err
		}
		conds = append(conds, fmt.Sprintf("%s > %s", id, b.bind(after.After)))
	}

	return strings.Join(conds, " AND "), nil
}

// Select renders a paged SELECT for req against table.
func Select(d Dialect, table string, req storage.QueryRequest) (string, []any, error) {
	tbl, err := Ident(table)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(req.Columns) > 0 {
		quoted := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			if quoted[i], err = Ident(c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(quoted, ", ")
	}

	b := New(d)
	where, err := b.Where(req.Filter, req.After)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, tbl)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}

	order := req.Order
	if len(order) == 0 && req.After != nil {
		order = []storage.Order{{Column: req.After.Column}}
	}
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			id, err := Ident(o.Column)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts[i] = id + " " + dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	fmt.Fprintf(&sb, " LIMIT %s", b.bind(req.PageLimit()))
	if req.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %s", b.bind(req.Offset))
	}
	return sb.String(), b.Args(), nil
}

// Count renders a head-count query for spec against table.
func Count(d Dialect, table string, spec filter.Spec) (string, []any, error) {
	tbl, err := Ident(table)
	if err != nil {
		return "", nil, err
	}
	b := New(d)
	where, err := b.Where(spec, nil)
	if err != nil {
		return "", nil, err
	}
	q := "SELECT count(*) FROM " + tbl
	if where != "" {
		q += " WHERE " + where
	}
	return q, b.Args(), nil
}

// Insert renders a multi-row INSERT for columns and n rows.
func Insert(d Dialect, table string, columns []string, n int) (string, error) {
	tbl, err := Ident(table)
	if err != nil {
		return "", err
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if quoted[i], err = Ident(c); err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", tbl, strings.Join(quoted, ", "))
	p := 0
	for r := 0; r < n; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			p++
			sb.WriteString(d.Placeholder(p))
		}
		sb.WriteString(")")
	}
	return sb.String(), nil
}
