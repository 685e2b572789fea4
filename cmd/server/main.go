/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the academy manager server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize logger
  3. Initialize SQLite store (settings default to the configuration)
  4. Create billing engine, metrics and API handler
  5. Register the alert sweep with the scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -static  Front-end directory (overrides STATIC_DIR)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/academy.db"

  # Run with in-memory database and pretty logs
  LOG_PRETTY=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/efusa/academy/academy"
	"github.com/efusa/academy/api"
	"github.com/efusa/academy/billing"
	"github.com/efusa/academy/config"
	"github.com/efusa/academy/logging"
	"github.com/efusa/academy/metrics"
	"github.com/efusa/academy/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "academy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	staticDir := flag.String("static", cfg.StaticDir, "front-end directory")
	flag.Parse()
	cfg.Port, cfg.DBPath, cfg.StaticDir = *port, *dbPath, *staticDir
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logging.SetGlobal(log)

	// Initialize store
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	defaults := academy.DefaultSettings()
	defaults.SchoolName = cfg.SchoolName
	defaults.MonthlyFee = cfg.DefaultMonthlyFee
	defaults.Currency = cfg.Currency

	store, err := sqlite.NewWithDefaults(cfg.DBPath, defaults)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	recorder := metrics.New()
	engine := billing.NewEngine(store, store,
		billing.WithLogger(log),
		billing.WithMetrics(recorder),
	)
	sweeper := api.NewAlertSweeper(store, engine, recorder, log)
	handler := api.NewHandler(store, engine, sweeper, log)

	sched := api.NewScheduler(log)
	if cfg.SweepEnabled {
		if err := sched.AddJob(cfg.SweepSchedule, sweeper); err != nil {
			return err
		}
	}
	sched.Start()

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Metrics:     recorder,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("db", cfg.DBPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		sched.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
