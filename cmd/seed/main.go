package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/report"
	"github.com/nicktill/techboard/pkg/seed"
	"github.com/nicktill/techboard/pkg/server"
	"github.com/nicktill/techboard/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	rows := flag.Int("n", 5000, "number of distinct technicians to generate")
	dup := flag.Float64("dup", 0.02, "share of technicians written twice")
	randSeed := flag.Int64("seed", 1, "random seed")
	file := flag.String("file", "", "import rows from a JSON dump instead of generating them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("❌ Failed to load configuration", zap.Error(err))
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.NewExample().Fatal("❌ Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := server.InitializeStorage(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	if tc, ok := store.(storage.TableCreator); ok {
		if err := tc.EnsureTable(ctx, report.TechnicianColumns); err != nil {
			logger.Fatal("❌ Failed to create table", zap.Error(err))
		}
	}
	loader, ok := store.(storage.Loader)
	if !ok {
		logger.Fatal("❌ Store does not accept rows", zap.String("kind", cfg.Store.Kind))
	}
	im := seed.NewImporter(loader)

	var res *seed.Result
	if *file != "" {
		logger.Info("📥 Importing technicians", zap.String("file", *file))
		f, err := os.Open(*file)
		if err != nil {
			logger.Fatal("❌ Failed to open dump", zap.Error(err))
		}
		defer f.Close()
		res, err = im.ImportFromJSON(ctx, f)
		if err != nil {
			logger.Fatal("❌ Import failed", zap.Error(err))
		}
		for _, e := range res.Errors {
			logger.Warn("⚠️  Skipped row", zap.String("reason", e))
		}
	} else {
		logger.Info("🌱 Generating technicians",
			zap.Int("rows", *rows),
			zap.Float64("dup_ratio", *dup),
			zap.Int64("seed", *randSeed))
		res, err = im.Write(ctx, seed.Generate(seed.Options{Rows: *rows, DupRatio: *dup, Seed: *randSeed}))
		if err != nil {
			logger.Fatal("❌ Seeding failed", zap.Error(err))
		}
	}

	logger.Info("✅ Seed complete",
		zap.String("store", cfg.Store.Kind),
		zap.Int("rows", res.RowsImported),
		zap.Int("batches", res.BatchesWritten))
}
