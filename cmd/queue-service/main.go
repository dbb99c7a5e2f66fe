package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/config"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/httpapi"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/logging"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/platform"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/scheduler"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/telemetry"
)

const serviceName = "queue-service"

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.TimezoneInvalid {
		logger.Warn("QUEUE_TIMEZONE is not a known zone, using local time", zap.String("timezone", os.Getenv("QUEUE_TIMEZONE")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := platform.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer res.Close()
	res.AttachPublishers(ctx, cfg, logger)

	svc := queue.NewService(res.Store, queue.Options{
		StartNumber: cfg.QueueStartNumber,
		MaxNumber:   cfg.MaxQueueNumber,
		Location:    cfg.Location,
		MaxAttempts: cfg.TxMaxAttempts,
		Logger:      logger,
		Publisher:   res.Publisher,
	})

	if cfg.ProvisionRooms {
		rooms, err := svc.ProvisionRooms(ctx, cfg.RoomCount, cfg.RoomDoctors)
		if err != nil {
			logger.Fatal("provision rooms", zap.Error(err))
		}
		logger.Info("rooms ready", zap.Int("count", len(rooms)))
	}

	sched := scheduler.New(svc, scheduler.Options{
		ResetHour:         cfg.DailyResetHour,
		Location:          cfg.Location,
		ReconcileInterval: cfg.ReconcileInterval,
		CatchUp:           true,
		Logger:            logger,
	})
	go sched.Run(ctx)

	handler := httpapi.NewHandler(svc, logger)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", handler.Routes())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(mux)), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
