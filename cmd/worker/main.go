package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/config"
	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/logger"
	"github.com/tidyplan/tidyplan-api/internal/queue"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
	"github.com/tidyplan/tidyplan-api/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required_for_worker")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	jobQueue, err := queue.ConnectWithRetry(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	reminderRepo := database.NewReminderRepository(db)
	sessionRepo := database.NewSessionRepository(db)

	// Session cleanup deletes remote Backboard threads when a key is
	// configured; without one only the local rows are dropped.
	var threads workers.ThreadDeleter
	if cfg.BackboardAPIKey != "" {
		threads = backboard.NewClient(cfg.BackboardAPIKey, cfg.BackboardBaseURL)
	}

	scheduler := workers.NewScheduler(jobQueue, reminderRepo, nil, zapLogger)
	dispatcher := workers.NewDispatcher(reminderRepo, sessionRepo, threads, nil, zapLogger)
	dlqGC := queue.NewGarbageCollector(jobQueue, 1*time.Hour, 24*time.Hour, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("scheduler_stopped_with_error", zap.Error(err))
		}
	}()

	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	go func() {
		if err := dispatcher.Run(ctx, jobQueue, cfg.RabbitMQPrefetch); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dispatcher_stopped_with_error", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("worker_shutting_down")
	cancel()
	zapLogger.Info("worker_stopped")
}
