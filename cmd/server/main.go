/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the dues engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), then parse flags over it
  2. Configure logging (tint)
  3. Open the store (SQLite or PostgreSQL) and migrate the schema
  4. Create the association service and API handler
  5. Optionally load a demo scenario
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port          (PORT, default: 8080)
  -driver   sqlite | postgres         (DB_DRIVER, default: sqlite)
  -db       SQLite database path      (DB_PATH, default: dues.db)
            Use ":memory:" for in-memory database
  -dsn      PostgreSQL connection URL (DATABASE_URL)
  -seed     Scenario id to load at startup (see GET /api/scenarios)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/dues.db"

  # Demo with in-memory database and preset data
  ./server -db=":memory:" -seed=guest-discount

  # PostgreSQL
  DATABASE_URL=postgres://dues@localhost/dues?sslmode=disable ./server -driver=postgres

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/: Database implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/dues-engine/api"
	"github.com/warp/dues-engine/association"
	"github.com/warp/dues-engine/config"
	"github.com/warp/dues-engine/factory"
	"github.com/warp/dues-engine/logging"
	"github.com/warp/dues-engine/store/postgres"
	"github.com/warp/dues-engine/store/sqlite"
	"github.com/warp/dues-engine/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags default to the environment so either can set a value
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Store driver: sqlite or postgres")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.DatabaseURL, "dsn", cfg.DatabaseURL, "PostgreSQL connection URL")
	seed := flag.String("seed", "", "Scenario id to load at startup")
	flag.Parse()

	logger := logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("configuration loaded", "config", cfg)

	// Initialize store
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	logger.Info("store ready", "driver", store.Dialect())

	svc := association.NewService(store, association.WithLogger(logger))
	handler := api.NewHandler(svc,
		api.WithPinger(store, store.Dialect()),
		api.WithMetrics(api.NewMetrics()),
		api.WithHandlerLogger(logger),
	)

	if *seed != "" {
		if err := loadSeed(ctx, handler, *seed); err != nil {
			return err
		}
		logger.Info("scenario loaded", "scenario", *seed)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "url", "http://localhost:"+cfg.Port, "api", "/api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(ctx, cfg.DBPath)
	}
}

func loadSeed(ctx context.Context, h *api.Handler, id string) error {
	s, ok := factory.LookupScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if _, err := h.Fixtures.Load(ctx, h.Service, s.Fixture); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}
	return nil
}
