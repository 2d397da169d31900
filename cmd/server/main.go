/*
main.go - Application entry point

PURPOSE:
  Starts the reconciliation API server. Handles configuration, dependency
  injection, the optional refresh scheduler, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML + LIFECYCLE_* environment)
  2. Build the zap logger
  3. Resolve reference data (sub-units, fund types)
  4. Initialize SQLite run store
  5. Create runner, handler and router
  6. Start the scheduler when enabled
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    Configuration file (default: configs/config.yaml)
  -env-only  Ignore the file and read only environment variables

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running refresh
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close database connection

EXAMPLES:
  ./server -config=configs/config.yaml
  LIFECYCLE_DB_PATH=":memory:" ./server -env-only

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Scheduled refresh
  - config/config.go: Settings and defaults
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/charkitch/general-apportionment/api"
	"github.com/charkitch/general-apportionment/config"
	"github.com/charkitch/general-apportionment/factory"
	"github.com/charkitch/general-apportionment/ingest"
	"github.com/charkitch/general-apportionment/lifecycle"
	"github.com/charkitch/general-apportionment/logger"
	"github.com/charkitch/general-apportionment/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "configs/config.yaml", "Configuration file")
	envOnly := flag.Bool("env-only", false, "Read configuration from environment only")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envOnly)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ref, err := factory.ResolveReference(cfg.Reference.Path, cfg.Engine.Agency, cfg.Engine.CumulativePeriods)
	if err != nil {
		zl.Fatal("failed to load reference data", zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err), zap.String("path", cfg.DB.Path))
	}
	defer store.Close()

	sources := ingest.Sources{
		Apportionment: cfg.Sources.Apportionment,
		Execution:     cfg.Sources.Execution,
		Sheet:         cfg.Sources.Sheet,
	}
	runner := api.NewRunner(store, lifecycle.NewEngine(ref), ingest.NewLoader(zl), sources, zl)

	handler := api.NewHandler(store, runner, zl)
	handler.MaxBodyBytes = cfg.Server.MaxBodyBytes
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	var scheduler *api.RefreshScheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = api.NewRefreshScheduler(runner, cfg.Scheduler.Spec, zl)
		if err != nil {
			zl.Fatal("failed to configure scheduler", zap.Error(err))
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		zl.Info("server starting",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("env", cfg.App.Env),
			zap.String("agency", ref.Agency),
			zap.Bool("scheduler", cfg.Scheduler.Enabled))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop(ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server stopped")
}
