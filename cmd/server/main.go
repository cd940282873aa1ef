/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clock server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, CLOCK_* environment, flags)
  2. Initialize the logger
  3. Initialize SQLite store
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMANDS:
  serve    Run the HTTP server (default)
  migrate  Create or upgrade the database schema and exit

FLAGS:
  --addr   HTTP listen address (overrides CLOCK_ADDR)
  --db     SQLite database path (overrides CLOCK_DB)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/clock/api"
	"github.com/warp/clock/config"
	"github.com/warp/clock/logger"
	"github.com/warp/clock/shift"
	"github.com/warp/clock/store/sqlite"
)

var (
	cfg config.Config

	addrFlag string
	dbFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "clockd",
	Short: "clockd - employee time clock server",
	Long: `clockd records employee shifts: clock in, pause, clock out with
midnight splitting, manual and recurring shifts with overlap checks,
contracts and monthly summaries.

Examples:
  clockd serve --addr :8080 --db ./data/clock.db
  clockd migrate --db ./data/clock.db`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if addrFlag != "" {
			loaded.Addr = addrFlag
		}
		if dbFlag != "" {
			loaded.DBPath = dbFlag
		}
		cfg = loaded

		if err := logger.Initialize(cfg.LogJSON, cfg.LogLevel); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sqlite.New(cfg.DBPath, sqlite.WithLocation(cfg.Location))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		logger.Logger.Infow("database migrated", "db", cfg.DBPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "HTTP listen address (overrides CLOCK_ADDR)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides CLOCK_DB)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	log := logger.Named("server")

	// Initialize store
	store, err := sqlite.New(cfg.DBPath, sqlite.WithLocation(cfg.Location))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	calendar, err := shift.NewCalendar(cfg.Calendar)
	if err != nil {
		return err
	}

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Clock:    shift.SystemClock{Location: cfg.Location},
		Policy:   cfg.Policy(),
		Calendar: calendar,
		Location: cfg.Location,
		Log:      logger.Named("api"),
	})

	// Create router
	router := api.NewRouter(handler, cfg.AllowedOrigins())

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", cfg.Addr, "db", cfg.DBPath, "tz", cfg.TimeZone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
