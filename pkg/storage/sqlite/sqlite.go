// Package sqlite implements storage.Storage on a SQLite table using
// database/sql and the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/storage/sqlbuild"
)

// insertChunk keeps multi-row INSERTs under SQLite's bind parameter limit.
const insertChunk = 200

// Config holds SQLite store configuration.
type Config struct {
	// DSN is passed to database/sql, e.g. "file:tech.db" or ":memory:".
	DSN   string
	Table string
}

// Store is a SQLite-backed storage.Storage.
type Store struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return New(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}

// New opens the database and verifies the DSN with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	table := cfg.Table
	if table == "" {
		table = config.DefaultTable
	}
	if !sqlbuild.ValidIdent(table) {
		return nil, fmt.Errorf("sqlite: table: %w: %q", storage.ErrInvalidColumn, table)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Each connection to :memory: is a separate database.
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.StorePingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db, table: table}, nil
}

// Query runs one bounded range query.
func (s *Store) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	q, args, err := sqlbuild.Select(sqlbuild.SQLite, s.table, req)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlite: columns: %w", err)
	}

	var out []record.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		row := make(record.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows: %w", err)
	}
	return out, nil
}

// Count runs a head-count query.
func (s *Store) Count(ctx context.Context, spec filter.Spec) (int, error) {
	q, args, err := sqlbuild.Count(sqlbuild.SQLite, s.table, spec)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// EnsureTable creates the table if it does not exist: an autoincrement id
// plus one text column per name.
func (s *Store) EnsureTable(ctx context.Context, columns []string) error {
	defs := []string{`"id" INTEGER PRIMARY KEY AUTOINCREMENT`}
	for _, c := range columns {
		if c == "id" {
			continue
		}
		id, err := sqlbuild.Ident(c)
		if err != nil {
			return err
		}
		defs = append(defs, id+" TEXT")
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, s.table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table: %w", err)
	}
	return nil
}

// Insert writes rows in one transaction using chunked multi-row INSERTs.
func (s *Store) Insert(ctx context.Context, rows []record.Row) (err error) {
	if len(rows) == 0 {
		return nil
	}
	cols := columnsOf(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		q, err := sqlbuild.Insert(sqlbuild.SQLite, s.table, cols, end-start)
		if err != nil {
			return err
		}
		args := make([]any, 0, (end-start)*len(cols))
		for _, r := range rows[start:end] {
			for _, c := range cols {
				args = append(args, r[c])
			}
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func columnsOf(rows []record.Row) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
