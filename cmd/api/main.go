package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studioapi/config"
	"studioapi/controllers"
	"studioapi/dbhelper"
	"studioapi/logging"
	"studioapi/services"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set!")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env, cfg.LogFile)
	if err != nil {
		log.Fatalf("logging.New: %s", err)
	}
	defer logger.Sync()

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			Release:          "studioapi@1.0.0",
			TracesSampleRate: 1.0,
		})
		if err != nil {
			logger.Fatal("sentry.Init", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbhelper.SetupDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	storage, err := services.NewImageStorage(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize image storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	processor, err := services.NewProcessor(cfg, storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize generation processor", zap.Error(err))
	}

	var asynqClient *asynq.Client
	if cfg.BrokerAddress != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.BrokerAddress})
		defer asynqClient.Close()
	} else {
		logger.Warn("ASYNC_BROKER_ADDRESS not set, failed uploads are discarded inline")
	}

	e := controllers.SetupServer(db, cfg, storage, processor, asynqClient, logger)
	e.HidePort = true
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))

	go func() {
		logger.Info("Starting api", zap.String("port", cfg.Port), zap.String("storage", cfg.StorageDriver), zap.String("processor", cfg.Processor))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
