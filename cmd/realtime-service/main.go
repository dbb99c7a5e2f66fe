package main

import (
	"context"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/config"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/httpapi"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/hub"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/logging"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/platform"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/telemetry"
)

const serviceName = "realtime-service"

var (
	eventsRelayed = expvar.NewInt("events_relayed_total")
	eventsDropped = expvar.NewInt("events_dropped_total")
)

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

	if cfg.RedisAddr == "" {
		logger.Fatal("REDIS_ADDR is required")
	}
	channel := cfg.RedisChannel
	if channel == "" {
		channel = fanout.DefaultChannel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := platform.NewRedisClient(cfg)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}

	h := hub.New(logger)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		serveSession(h, session, logger)
	}))

	server := &http.Server{
		Addr:         ":" + cfg.RealtimePort,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(mux)), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	go func() {
		for msg := range sub.Channel() {
			meta, ok := metaFromEvent([]byte(msg.Payload))
			if !ok {
				logger.Warn("dropping malformed event", zap.String("channel", msg.Channel))
				continue
			}
			delivered, dropped := h.Broadcast([]byte(msg.Payload), meta)
			eventsRelayed.Add(int64(delivered))
			eventsDropped.Add(int64(dropped))
		}
	}()

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("channel", channel))
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

// serveSession registers the session with the hub and applies subscribe and unsubscribe
// messages until the client goes away.
func serveSession(h *hub.Hub, session sockjs.Session, logger *zap.Logger) {
	client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
	h.Register(client)
	defer h.Unregister(client)

	go func() {
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				eventsDropped.Add(1)
			}
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		parsed, ok := hub.ParseSubscribe([]byte(msg))
		if !ok {
			logger.Debug("ignoring client message", zap.String("client_id", client.ID))
			continue
		}
		h.UpdateSubscription(client, parsed.Subscription())
	}
}
