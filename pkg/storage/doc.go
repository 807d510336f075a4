/*
Package storage provides the pluggable record store abstraction for techboard.

# Storage Interface

The reporting pipeline only needs two capabilities from the store that holds
technician records:

	type Storage interface {
	    Query(ctx context.Context, req QueryRequest) ([]record.Row, error)
	    Count(ctx context.Context, spec filter.Spec) (int, error)
	    Close() error
	}

Query is a bounded range query. Every backend caps a single response at
MaxPageSize rows no matter what the caller asks for, mirroring the hosted
table API the dashboard was built against. Callers that need a whole table
page through it (see package fetch).

Count is a head-count only query. It never materializes rows and is used as
the authoritative total when reconciling aggregated figures.

# Backends

  - memory: rows in a slice; used by tests and the demo seed
  - badger: BadgerDB, rows stored as JSON under sequence keys
  - postgres: pgx pool, predicates pushed down as ILIKE / equality
  - sqlite: modernc.org/sqlite through database/sql

Backends register a Factory under their kind from init. Import storage/all
to enable every built-in backend and open one with New:

	import _ "github.com/nicktill/techboard/pkg/storage/all"

	store, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "file:tech.db", Table: "technicians"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

# Paging

QueryRequest supports two paging styles. Offset paging (Offset + Limit) is
what the hosted API offers; it can skip or repeat rows when the table changes
between pages. Keyset paging (After) asks for rows strictly after the last
value seen on a monotonically increasing column and is stable under
concurrent inserts.

In-process backends share Apply, which evaluates a request against a slice
of rows with the same semantics the SQL backends push down.
*/
package storage
