package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/communitymarket/ucm-ledger/internal/api"
	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/config"
	"github.com/communitymarket/ucm-ledger/internal/data/postgres"
	"github.com/communitymarket/ucm-ledger/internal/lifecycle"
	"github.com/communitymarket/ucm-ledger/internal/logger"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize database with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	requestRepo := postgres.NewRequestRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	idempotencyRepo := postgres.NewIdempotencyRepository(log, postgresDB)

	// Initialize the transfer engine and the fee schedule
	engine := transfer.NewEngine(postgresDB, accountRepo, ledgerRepo, idempotencyRepo, log)
	pricingResolver := pricing.NewResolver(&cfg.Pricing)

	// Initialize services
	accountService := service.NewAccountService(accountRepo, ledgerRepo, engine, &cfg.Pricing, log)
	billingService := service.NewBillingService(pricingResolver, engine, log)
	lifecycleService := lifecycle.NewService(postgresDB, requestRepo, outboxRepo, idempotencyRepo, engine, pricingResolver, log)

	// Initialize REST server
	server := api.NewServer(log, cfg, accountService, billingService, lifecycleService, engine)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so in-flight transactions finish
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
