package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/filter"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/record"
	"github.com/nicktill/techboard/pkg/storage"
)

// IDColumn is assigned from the table sequence when an inserted row has none.
const IDColumn = "id"

// slowScanThreshold is the scan duration above which a warning is logged.
const slowScanThreshold = 5 * time.Second

func init() {
	storage.Register("badger", func(ctx context.Context, cfg storage.Config) (storage.Storage, error) {
		return New(Config{
			Path:        cfg.Path,
			InMemory:    cfg.InMemory,
			MaxMemoryMB: cfg.MaxMemoryMB,
			Table:       cfg.Table,
			Logger:      cfg.Logger,
		})
	})
}

// Storage implements storage.Storage using BadgerDB (LSM tree)
type Storage struct {
	db     *badger.DB
	seq    *badger.Sequence
	prefix []byte
	logger *zap.Logger

	slowScan time.Duration
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64

	// Table namespaces rows so several logical tables can share one DB
	Table string

	Logger *zap.Logger
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	// Rows are small JSON documents; 16 MB memtable keeps the footprint near
	// 48 MB total unless the operator asks for more.
	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = config.DefaultTable
	}
	seq, err := db.GetSequence([]byte("seq/"+table), 1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open row sequence: %w", err)
	}

	return &Storage{db: db, seq: seq, prefix: tablePrefix(table), logger: logging.OrNop(cfg.Logger), slowScan: slowScanThreshold}, nil
}

// Insert stores rows under increasing sequence keys. Rows without an id
// column get the sequence value as their id.
func (s *Storage) Insert(ctx context.Context, rows []record.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, r := range rows {
		if i%1000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate row key: %w", err)
		}
		row := r.Project(nil)
		if v, ok := row[IDColumn]; !ok || v == nil {
			row[IDColumn] = int64(n + 1)
		}

		value, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}
		if err := wb.Set(s.makeKey(n), value); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return wb.Flush()
}

// Query retrieves rows matching the request. The scan honors ctx.
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]record.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Without an explicit order, key order is insertion order and the scan
	// can stop once the requested page is covered.
	stopAt := -1
	if len(req.Order) == 0 && req.After == nil {
		stopAt = req.Offset + req.PageLimit()
	}

	var matched []record.Row
	err := s.scan(ctx, func(row record.Row) bool {
		if storage.Match(row, req) {
			matched = append(matched, row)
		}
		return stopAt < 0 || len(matched) < stopAt
	})
	if err != nil {
		return nil, fmt.Errorf("query operation failed: %w", err)
	}
	return storage.Apply(matched, req), nil
}

// Count returns the number of rows matching spec
func (s *Storage) Count(ctx context.Context, spec filter.Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.scan(ctx, func(row record.Row) bool {
		if spec.Matches(row) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count operation failed: %w", err)
	}
	return n, nil
}

// scan walks every row of the table in key order until fn returns false.
func (s *Storage) scan(ctx context.Context, fn func(record.Row) bool) error {
	startTime := time.Now()
	done := make(chan error, 1)

	go func() {
		done <- s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100
			opts.Prefix = s.prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
				iterCount++

				// Check for cancellation every 1000 iterations
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				var row record.Row
				if err := it.Item().Value(func(val []byte) error {
					return decodeRow(val, &row)
				}); err != nil {
					return fmt.Errorf("failed to decode row: %w", err)
				}
				if !fn(row) {
					break
				}
			}

			if elapsed := time.Since(startTime); elapsed > s.slowScan {
				s.logger.Warn("slow scan",
					zap.Duration("elapsed", elapsed),
					zap.Int("rows", iterCount))
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("scan cancelled: %w", ctx.Err())
	}
}

// Close releases the sequence lease and closes the database
func (s *Storage) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to release sequence: %w", err)
	}
	return s.db.Close()
}

// RunGC runs one round of value log garbage collection and reports whether a
// log file was rewritten.
func (s *Storage) RunGC(discardRatio float64) (bool, error) {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}
	err := s.scan(ctx, func(record.Row) bool {
		stats.TotalRows++
		return true
	})
	if err != nil {
		return nil, err
	}
	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)
	return stats, nil
}

func tablePrefix(table string) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(table))
	return prefix
}

// makeKey builds table-hash (8 bytes) + sequence (8 bytes), so key order is
// insertion order within a table.
func (s *Storage) makeKey(n uint64) []byte {
	key := make([]byte, 16)
	copy(key, s.prefix)
	binary.BigEndian.PutUint64(key[8:16], n)
	return key
}

func decodeRow(data []byte, row *record.Row) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(row)
}
