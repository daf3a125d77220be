package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/communitymarket/ucm-ledger/internal/config"
	"github.com/communitymarket/ucm-ledger/internal/data/postgres"
	"github.com/communitymarket/ucm-ledger/internal/dispatcher"
	"github.com/communitymarket/ucm-ledger/internal/logger"
	"github.com/communitymarket/ucm-ledger/internal/platform/messaging/producers"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("notification_dispatcher")
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

	// Initialize Kafka producers
	notificationProducer, err := producers.NewNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification Kafka producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize the outbox pipeline
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	publisher := dispatcher.NewEventPublisher(outboxRepo, notificationProducer, log)

	// producers.DeadLetterPublisher is an interface; keep a typed nil out of it
	var deadLetter producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetter = dlqProducer
	}

	poller, err := dispatcher.NewPoller(&cfg.Outbox, &cfg.WorkerPool, outboxRepo, publisher, deadLetter, log)
	if err != nil {
		log.Error("Failed to initialize outbox poller", "error", err)
		os.Exit(1)
	}

	// Start polling in goroutine
	go poller.Start(appCtx)
	log.Info("Notification dispatcher started")

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info("Shutdown signal received")

	// Cancel the application context to stop the poll loop
	cancelAppCtx()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")
	poller.Shutdown()

	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification Kafka producer", "error", err)
	}
	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	postgresDB.Close()
	log.Info("Notification dispatcher shutdown completed")
}
