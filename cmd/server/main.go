/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the impulse tracker server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Pick a store: PostgreSQL when DATABASE_URL is set, SQLite otherwise
  3. Wire the streak engine, expense service, and API handler
  4. Start the voucher expiry scheduler
  5. Start the HTTP server with graceful shutdown

CONFIGURATION:
  Flags, overridable by environment variables of the same meaning:
  -port    HTTP server port (env PORT, default: 8080)
  -db      SQLite database path (env DB_PATH, default: impulse.db)
           Use ":memory:" for an in-memory database
  DATABASE_URL (env only) switches the store to PostgreSQL.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/impulse.db"

  # Run against PostgreSQL
  DATABASE_URL=postgres://localhost/impulse ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Voucher expiry scheduler
  - store/sqlite/sqlite.go, store/postgres/postgres.go
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/impulse-tracker/api"
	"github.com/warp/impulse-tracker/expense"
	"github.com/warp/impulse-tracker/store/postgres"
	"github.com/warp/impulse-tracker/store/sqlite"
	"github.com/warp/impulse-tracker/streak"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "impulse.db"), "SQLite database path")
	flag.Parse()

	// Store selection: DATABASE_URL wins, SQLite is the default.
	var (
		streakStore  streak.Store
		expenseStore expense.Store
		scanner      streak.VoucherScanner
		closeStore   func() error
	)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		store, err := postgres.New(context.Background(), dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		streakStore, expenseStore, scanner = store, store, store
		closeStore = func() error { store.Close(); return nil }
		log.Println("Using PostgreSQL store")
	} else {
		store, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		streakStore, expenseStore, scanner = store, store, store
		closeStore = store.Close
		log.Printf("Using SQLite store at %s", *dbPath)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("Store close failed: %v", err)
		}
	}()

	// Wire the domain
	engine := streak.NewEngine(streakStore)
	service := expense.NewService(expenseStore, engine)
	handler := api.NewHandler(service, engine)

	// Observability and rate limiting
	api.RegisterMetrics()
	go api.CleanupVisitors()

	// Voucher expiry notifications
	scheduler := api.NewExpiryScheduler(scanner, nil)
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
