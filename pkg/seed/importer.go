package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/report"
	"github.com/nicktill/techboard/pkg/storage"
)

// MaxImportBatchSize is the maximum number of rows written at once.
const MaxImportBatchSize = 5000

// Importer loads technician rows into a store.
type Importer struct {
	store storage.Loader
}

// NewImporter creates a new importer
func NewImporter(store storage.Loader) *Importer {
	return &Importer{store: store}
}

// Result contains stats about an import.
type Result struct {
	RowsImported   int       `json:"rows_imported"`
	BatchesWritten int       `json:"batches_written"`
	ImportedAt     time.Time `json:"imported_at"`
	Errors         []string  `json:"errors,omitempty"`
}

// Dump is the JSON document accepted by ImportFromJSON.
type Dump struct {
	Metadata struct {
		ExportedAt time.Time `json:"exported_at"`
		Source     string    `json:"source"`
	} `json:"metadata"`
	Rows []record.Row `json:"rows"`
}

// ImportFromJSON decodes a Dump from r, drops invalid rows and writes the
// rest. Rows are written as-is: dirty values are what the reports reconcile.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*Result, error) {
	var dump Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var validationErrors []string
	valid := make([]record.Row, 0, len(dump.Rows))
	for i, row := range dump.Rows {
		if err := validateRow(row); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		valid = append(valid, row)
	}

	res, err := im.Write(ctx, valid)
	if err != nil {
		return nil, err
	}
	res.Errors = validationErrors
	return res, nil
}

// Write inserts rows in batches of MaxImportBatchSize.
func (im *Importer) Write(ctx context.Context, rows []record.Row) (*Result, error) {
	batches := 0
	for chunk := range slices.Chunk(rows, MaxImportBatchSize) {
		if err := im.store.Insert(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to write batch %d: %w", batches, err)
		}
		batches++
	}
	return &Result{
		RowsImported:   len(rows),
		BatchesWritten: batches,
		ImportedAt:     time.Now(),
	}, nil
}

// validateRow rejects unknown columns, caller-supplied ids and nested values.
func validateRow(row record.Row) error {
	if len(row) == 0 {
		return fmt.Errorf("row is empty")
	}
	for col, v := range row {
		if col == report.ColID {
			return fmt.Errorf("column %q is assigned by the store", col)
		}
		if !slices.Contains(report.TechnicianColumns, col) {
			return fmt.Errorf("unknown column %q", col)
		}
		switch v.(type) {
		case map[string]any, []any:
			return fmt.Errorf("column %q must be a scalar", col)
		}
	}
	return nil
}
