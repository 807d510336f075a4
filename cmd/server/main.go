package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nicktill/techboard/pkg/config"
	"github.com/nicktill/techboard/pkg/logging"
	"github.com/nicktill/techboard/pkg/metrics"
	"github.com/nicktill/techboard/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The logger is configured from cfg, so this is the one place we
		// fall back to a default one.
		zap.NewExample().Fatal("❌ Failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.NewExample().Fatal("❌ Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("🚀 Starting techboard server...",
		zap.String("store", cfg.Store.Kind),
		zap.Int("batch_size", cfg.Fetch.BatchSize),
		zap.Int("max_rows", cfg.Fetch.MaxRows),
		zap.Int("categories_version", cfg.Categories.Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := server.InitializeStorage(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()
	logger.Info("✅ Record store ready", zap.String("kind", cfg.Store.Kind))

	prom := metrics.NewPrometheus()
	engine := server.InitializeEngine(cfg, store, logger, prom)
	if err := server.CheckLiveReports(engine, cfg.Live.Reports); err != nil {
		logger.Fatal("❌ Invalid live feed configuration", zap.Error(err))
	}
	handlers, hub := server.InitializeHandlers(cfg, store, engine, prom, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	logger.Info("📡 WebSocket hub started for live report streaming")

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.BroadcastReports(ctx, engine, hub, cfg.Live.Reports, cfg.Live.Interval,
			cfg.Server.ReportTimeout, handlers.Tasks[server.TaskLiveBroadcast], logger)
	}()
	logger.Info("📤 Live broadcaster started",
		zap.Strings("reports", cfg.Live.Reports),
		zap.Duration("interval", cfg.Live.Interval))

	if gcMonitor, ok := handlers.Tasks[server.TaskBadgerGC]; ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.RunBadgerGC(ctx, store, config.BadgerGCInterval, gcMonitor, logger)
		}()
	}

	router := mux.NewRouter()
	server.SetupRoutes(router, handlers, cfg.Server.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("🌐 Server starting on http://localhost:" + cfg.Server.Port)
		logger.Info("📡 API endpoints:")
		logger.Info("   GET  /v1/reports          - Report catalog")
		logger.Info("   GET  /v1/reports/{name}   - Run a report")
		logger.Info("   GET  /v1/technicians      - Paged technician listing")
		logger.Info("   GET  /v1/health           - Health check")
		logger.Info("   GET  /v1/ws               - Live summaries")
		logger.Info("   GET  /metrics             - Prometheus endpoint")
		logger.Info("✅ Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("❌ Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Shutdown signal received...")

	// Cancel before wg.Wait so the hub and tasks can return.
	logger.Info("⏸️  Stopping background tasks...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("🔄 Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️  Server shutdown warning", zap.Error(err))
	}

	logger.Info("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		logger.Warn("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	logger.Info("👋 techboard server exited cleanly")
}
