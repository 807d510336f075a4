package storage

import (
	"testing"

	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/record"
)

func sampleRows(n int) []record.Row {
	rows := make([]record.Row, n)
	providers := []string{"Nokia", "ZTE", "Huawei"}
	for i := range rows {
		rows[i] = record.Row{
			"id":       int64(i + 1),
			"provider": providers[i%len(providers)],
			"tech_id":  "T" + record.Format(i+1),
		}
	}
	return rows
}

func TestApplyPaging(t *testing.T) {
	rows := sampleRows(2500)

	page := Apply(rows, QueryRequest{Offset: 2000, Limit: 1000})
	if len(page) != 500 {
		t.Fatalf("expected 500 rows in last page, got %d", len(page))
	}
	if page[0]["id"] != int64(2001) {
		t.Errorf("expected first id 2001, got %v", page[0]["id"])
	}

	if got := Apply(rows, QueryRequest{Offset: 2500}); len(got) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(got))
	}
}

func TestApplyCapsLimit(t *testing.T) {
	rows := sampleRows(1500)
	if got := Apply(rows, QueryRequest{Limit: 5000}); len(got) != MaxPageSize {
		t.Fatalf("expected cap of %d rows, got %d", MaxPageSize, len(got))
	}
}

func TestApplyFilterOrderProject(t *testing.T) {
	rows := sampleRows(9)
	req := QueryRequest{
		Columns: []string{"id"},
		Filter:  filter.Spec{Terms: []filter.Term{{Column: "provider", Mode: filter.Exact, Value: "ZTE"}}},
		Order:   []Order{{Column: "id", Desc: true}},
	}

	got := Apply(rows, req)
	if len(got) != 3 {
		t.Fatalf("expected 3 ZTE rows, got %d", len(got))
	}
	want := []int64{8, 5, 2}
	for i, row := range got {
		if row["id"] != want[i] {
			t.Errorf("row %d: expected id %d, got %v", i, want[i], row["id"])
		}
		if _, ok := row["provider"]; ok {
			t.Errorf("row %d: provider should not be projected", i)
		}
	}
}

func TestApplyCursor(t *testing.T) {
	rows := sampleRows(10)
	got := Apply(rows, QueryRequest{After: &Cursor{Column: "id", After: int64(7)}})
	if len(got) != 3 {
		t.Fatalf("expected 3 rows after id 7, got %d", len(got))
	}
	if got[0]["id"] != int64(8) {
		t.Errorf("expected first id 8, got %v", got[0]["id"])
	}
}
