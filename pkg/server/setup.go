// Package server wires the record store, reporting engine, live hub and
// metrics into the HTTP API.
package server

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/fetch"
	"github.com/nicktill/techboard/pkg/live"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/report"
	"github.com/nicktill/techboard/pkg/server/monitor"
	"github.com/nicktill/techboard/pkg/storage"
	_ "github.com/nicktill/techboard/pkg/storage/all"
)

// InitializeStorage opens the configured backend. Embedded backends get their
// data directory created first.
func InitializeStorage(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Kind == "badger" && !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	logger.Info("opening record store", zap.String("kind", cfg.Kind), zap.String("table", cfg.Table))
	store, err := storage.New(ctx, storage.Config{
		Kind:        cfg.Kind,
		DSN:         cfg.DSN,
		Table:       cfg.Table,
		Path:        cfg.Path,
		InMemory:    cfg.InMemory,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Kind, err)
	}
	return store, nil
}

// InitializeEngine builds the reporting engine over store.
func InitializeEngine(cfg *config.Config, store storage.Storage, logger *zap.Logger, recorder metrics.Recorder) *report.Engine {
	engine := report.NewEngine(store, report.Catalog(cfg.Categories),
		report.WithLogger(logger),
		report.WithRecorder(recorder),
		report.WithCategoriesVersion(cfg.Categories.Version),
		report.WithFetchOptions(
			fetch.WithBatchSize(cfg.Fetch.BatchSize),
			fetch.WithMaxRows(cfg.Fetch.MaxRows),
		),
	)
	logger.Info("report engine ready",
		zap.Int("reports", len(engine.Definitions())),
		zap.Int("batch_size", cfg.Fetch.BatchSize),
		zap.Int("max_rows", cfg.Fetch.MaxRows))
	return engine
}

// CheckLiveReports verifies that every live feed report is served by engine.
func CheckLiveReports(engine *report.Engine, names []string) error {
	for _, name := range names {
		if _, ok := engine.Definition(name); !ok {
			return fmt.Errorf("live.reports: %w: %q", report.ErrUnknownReport, name)
		}
	}
	return nil
}

// InitializeHandlers creates the API handlers. The disk monitor is only
// attached for on-disk badger stores.
func InitializeHandlers(
	cfg *config.Config,
	store storage.Storage,
	engine *report.Engine,
	prom *metrics.Prometheus,
	logger *zap.Logger,
) (*Handlers, *live.Hub) {
	hub := live.NewHub(logger)

	h := &Handlers{
		Engine:        engine,
		Store:         store,
		StoreKind:     cfg.Store.Kind,
		Hub:           hub,
		Metrics:       prom,
		ReportTimeout: cfg.Server.ReportTimeout,
		Logger:        logger,
		Tasks: map[string]*monitor.TaskMonitor{
			TaskLiveBroadcast: monitor.NewTaskMonitor(TaskLiveBroadcast),
		},
	}
	if cfg.Store.Kind == "badger" && !cfg.Store.InMemory {
		h.Disk = monitor.NewDiskMonitor(cfg.Store.Path, cfg.Store.MaxDiskMB*1024*1024)
		h.Tasks[TaskBadgerGC] = monitor.NewTaskMonitor(TaskBadgerGC)
	}
	return h, hub
}
