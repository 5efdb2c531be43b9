/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the inventory ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load .env / environment
  2. Build the zap logger
  3. Open the store (SQLite or in-memory)
  4. Load the product snapshot into the Coordinator
  5. Start the audit scheduler
  6. Serve HTTP until SIGINT/SIGTERM

COMMAND-LINE FLAGS (override environment):
  -env     Path to a .env file; must exist when given (default: .env if present)
  -port    HTTP server port (APP_PORT, default 8080)
  -db      SQLite database path (DB_PATH, default inventory.db)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Stop the scheduler, close the database
  4. Exit

EXAMPLES:
  ./server -db="./data/inventory.db"
  STORE_DRIVER=memory ./server -port=3000

SEE ALSO:
  - config/config.go: Environment keys
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
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/inventory-ledger/api"
	"github.com/warp/inventory-ledger/config"
	"github.com/warp/inventory-ledger/inventory"
	memstore "github.com/warp/inventory-ledger/inventory/store"
	"github.com/warp/inventory-ledger/logging"
	"github.com/warp/inventory-ledger/store/sqlite"
)

// backend is what main needs from a store implementation.
type backend interface {
	inventory.Store
	inventory.AuditLog
}

func main() {
	// Flags
	envFile := flag.String("env", "", "Path to .env file")
	port := flag.String("port", "", "HTTP server port (overrides APP_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.DBPath = *dbPath
	}

	baseLogger := logging.Must(logging.New(cfg.Log.Level))
	zap.ReplaceGlobals(baseLogger)

	err = run(cfg, baseLogger)
	if err != nil {
		baseLogger.Error("server exited", zap.Error(err))
	}
	_ = baseLogger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run wires the server and blocks until shutdown. It returns instead of
// exiting so its deferred closes always run.
func run(cfg *config.Config, baseLogger *zap.Logger) error {
	// Initialize store
	var store backend
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = memstore.NewMemory()
		baseLogger.Warn("using in-memory store, data is lost on exit")
	default:
		sqlStore, err := sqlite.New(cfg.Store.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database %s: %w", cfg.Store.DBPath, err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	coord := inventory.NewCoordinator(store, store,
		inventory.WithLogger(logging.Named(baseLogger, "coordinator")),
	)
	if err := coord.Load(context.Background()); err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}

	// Initialize handler
	handler := api.NewHandler(coord, store, logging.Named(baseLogger, "api"))
	handler.BuyDiscountRate = cfg.Finance.BuyDiscountRate
	handler.Currency = cfg.Finance.Currency
	handler.Location = cfg.Finance.Location

	sched := api.NewAuditScheduler(handler.Auditor, cfg.Audit.Schedule, logging.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start audit scheduler: %w", err)
	}
	defer sched.Stop()

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		baseLogger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("currency", cfg.Finance.Currency),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		baseLogger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server crashed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	baseLogger.Info("server stopped")
	return nil
}
