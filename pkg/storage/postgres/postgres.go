// Package postgres implements storage.Storage on a Postgres table using a pgx
// connection pool. Filters, ordering and paging are pushed down to SQL; the
// per-query row cap is enforced in the generated LIMIT.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
	"github.com/nicktill/techboard/pkg/storage/sqlbuild"
)

// Config holds Postgres store configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // possibly schema-qualified table name, e.g. "public.technicians"
}

// Store is a Postgres-backed storage.Storage.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// newStore is a test hook that points to New by default.
var newStore = New

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return newStore(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}

// New opens a pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	table := cfg.Table
	if table == "" {
		table = config.DefaultTable
	}
	if _, err := sqlbuild.Ident(table); err != nil {
		return nil, fmt.Errorf("postgres: table: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.StorePingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// Query runs one bounded range query.
func (s *Store) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	q, args, err := sqlbuild.Select(sqlbuild.Postgres, s.table, req)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}

	out := make([]record.Row, len(maps))
	for i, m := range maps {
		out[i] = record.Row(m)
	}
	return out, nil
}

// Count runs a head-count query.
func (s *Store) Count(ctx context.Context, spec filter.Spec) (int, error) {
	q, args, err := sqlbuild.Count(sqlbuild.Postgres, s.table, spec)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return int(n), nil
}

// EnsureTable creates the table if it does not exist: a bigserial id plus one
// text column per name.
func (s *Store) EnsureTable(ctx context.Context, columns []string) error {
	tbl, _ := sqlbuild.Ident(s.table)
	defs := []string{`"id" BIGSERIAL PRIMARY KEY`}
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
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tbl, strings.Join(defs, ", "))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

// Insert bulk-loads rows with COPY. The column list is the union of the
// rows' keys.
func (s *Store) Insert(ctx context.Context, rows []record.Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := columnsOf(rows)
	for _, c := range cols {
		if !sqlbuild.ValidIdent(c) {
			return fmt.Errorf("%w: %q", storage.ErrInvalidColumn, c)
		}
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		v := make([]any, len(cols))
		for j, c := range cols {
			v[j] = r[c]
		}
		values[i] = v
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier(strings.Split(s.table, ".")), cols, pgx.CopyFromRows(values))
	if err != nil {
		return fmt.Errorf("postgres: copy: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
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
