package main

import (
	"context"
	"log"
	"time"

	"studioapi/config"
	"studioapi/logging"
	"studioapi/services"
	"studioapi/tasks"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.BrokerAddress == "" {
		log.Fatal("ASYNC_BROKER_ADDRESS environment variable is not set!")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env, cfg.LogFile)
	if err != nil {
		log.Fatalf("logging.New: %s", err)
	}
	defer logger.Sync()
	logger = logger.Named("worker")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Env, Release: "studioapi@1.0.0"}); err != nil {
			logger.Fatal("sentry.Init", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	storage, err := services.NewImageStorage(context.Background(), cfg)
	if err != nil {
		logger.Fatal("[Queue] Failed to initialize image storage", zap.Error(err))
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.BrokerAddress},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{tasks.QueueUploads: 1},
			Logger:      logger.Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", zap.String("type", task.Type()), zap.Error(err))
				sentry.CaptureException(err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDiscardUpload, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleDiscardUploadTask(ctx, t, storage, logger)
	})

	// Run handles SIGTERM and SIGINT itself.
	if err := srv.Run(mux); err != nil {
		logger.Fatal("Worker stopped", zap.Error(err))
	}
}
