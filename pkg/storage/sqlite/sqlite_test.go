package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
)

var testColumns = []string{"tech_id", "full_name", "provider", "training_passed"}

func newTestStore(t *testing.T, n int) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := New(ctx, Config{DSN: ":memory:", Table: "technicians"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureTable(ctx, testColumns))

	rows := make([]record.Row, n)
	for i := range rows {
		passed := "Yes"
		if i%3 == 0 {
			passed = "No"
		}
		rows[i] = record.Row{
			"tech_id":         fmt.Sprintf("T%05d", i),
			"full_name":       fmt.Sprintf("Tech %d", i),
			"provider":        []string{"Nokia", "ZTE"}[i%2],
			"training_passed": passed,
		}
	}
	require.NoError(t, s.Insert(ctx, rows))
	return s
}

func TestQueryPages(t *testing.T) {
	s := newTestStore(t, 1001)
	ctx := context.Background()

	first, err := s.Query(ctx, storage.QueryRequest{Order: []storage.Order{{Column: "id"}}, Limit: 5000})
	require.NoError(t, err)
	require.Len(t, first, storage.MaxPageSize)

	second, err := s.Query(ctx, storage.QueryRequest{Order: []storage.Order{{Column: "id"}}, Offset: 1000, Limit: 1000})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "T01000", second[0]["tech_id"])
}

func TestQueryKeyset(t *testing.T) {
	s := newTestStore(t, 10)

	rows, err := s.Query(context.Background(), storage.QueryRequest{
		Columns: []string{"id", "tech_id"},
		After:   &storage.Cursor{Column: "id", After: int64(8)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(9), rows[0]["id"])
	require.NotContains(t, rows[0], "provider")
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t, 30)
	ctx := context.Background()

	spec := filter.Spec{
		Terms:  []filter.Term{{Column: "provider", Mode: filter.Exact, Value: "ZTE"}},
		Search: &filter.SearchGroup{Columns: []string{"full_name", "tech_id"}, Value: "tech 1"},
	}
	rows, err := s.Query(ctx, storage.QueryRequest{Filter: spec})
	require.NoError(t, err)
	// Odd indices in [10,19] plus 1 itself.
	require.Len(t, rows, 6)

	n, err := s.Count(ctx, spec)
	require.NoError(t, err)
	require.Equal(t, 6, n)
}

func TestPartialMatchIsLiteral(t *testing.T) {
	s := newTestStore(t, 5)
	n, err := s.Count(context.Background(), filter.Spec{
		Terms: []filter.Term{{Column: "tech_id", Mode: filter.Partial, Value: "T_0"}},
	})
	require.NoError(t, err)
	require.Equal(t, 0, n, "underscore must not act as a wildcard")
}

func TestCount(t *testing.T) {
	s := newTestStore(t, 30)
	n, err := s.Count(context.Background(), filter.Spec{
		Terms: []filter.Term{{Column: "training_passed", Mode: filter.Exact, Value: "No"}},
	})
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestRegistered(t *testing.T) {
	s, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer s.Close()
	require.IsType(t, &Store{}, s)
}
