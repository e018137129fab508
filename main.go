package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/engine"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/health"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/hitl"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/streaming"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := config.Path()
	bootLogger, _ := zap.NewProduction()
	watcher, err := config.NewWatcher(path, bootLogger)
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.String("path", path), zap.Error(err))
	}
	cfg := watcher.Current()

	level := zap.NewAtomicLevel()
	logger, err := newLogger(cfg.Logging, level)
	if err != nil {
		bootLogger.Fatal("Failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Configuration loaded", zap.String("path", path), zap.Int("agents", len(cfg.Agents)))

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// Event streaming, optionally mirrored to Redis for cross-process replay
	var (
		streamOpts []streaming.Option
		redisRW    *circuitbreaker.RedisWrapper
	)
	if rc := cfg.Streaming.Redis; rc.Enabled {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		redisRW = circuitbreaker.NewRedisWrapper(client, logger)
		if err := redisRW.Ping(ctx); err != nil {
			logger.Warn("Redis not reachable, events will be mirrored once it recovers", zap.String("addr", rc.Addr), zap.Error(err))
		}
		streamOpts = append(streamOpts, streaming.WithRedisMirror(streaming.NewRedisMirror(redisRW, rc.MaxLen, rc.TTL, logger)))
	}
	streams := streaming.NewManager(cfg.Streaming.Capacity, logger, streamOpts...)

	broker := hitl.NewBroker(logger, func(req hitl.Request) {
		streams.Publish(req.SessionID, streaming.Event{
			Type:    streaming.EventHitlPending,
			Round:   req.State.Round,
			Message: "awaiting reviewer decision",
			Data:    map[string]interface{}{"requestId": req.ID},
		})
	})

	factory, err := engine.NewFactory(cfg,
		engine.WithEventSink(streaming.NewSink(streams)),
		engine.WithHitlHandler(broker.Handler()),
		engine.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("Failed to build debate engine", zap.Error(err))
	}

	watcher.OnChange(func(next *config.Config) {
		if err := factory.Apply(next); err != nil {
			logger.Error("Rejected configuration reload", zap.Error(err))
			return
		}
		if lvl, err := zapcore.ParseLevel(next.Logging.Level); err == nil {
			level.SetLevel(lvl)
		}
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Configuration hot-reload disabled", zap.Error(err))
	}

	healthMgr := health.NewManager(logger)
	registerHealthChecks(healthMgr, factory, cfg, redisRW, logger)

	var jwtManager *auth.JWTManager
	if cfg.Server.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.Server.JWTSecret, time.Hour)
	} else {
		logger.Warn("server.jwt_secret is empty; authentication is disabled")
	}

	debates := httpapi.NewDebateHandler(factory, cfg.Server.RequestTimeout, logger)
	router := httpapi.NewRouter(httpapi.Routes{
		Debates:   debates,
		Hitl:      httpapi.NewHitlHandler(broker, logger),
		Streaming: httpapi.NewStreamingHandler(streams, logger),
		Health:    health.NewHTTPHandler(healthMgr, logger),
		Metrics:   promhttp.Handler(),
	}, auth.NewMiddleware(jwtManager), logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("Debate API listening", zap.String("address", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down debate service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := debates.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Running debates did not finish in time", zap.Error(err))
	}
	if err := streams.Close(shutdownCtx); err != nil {
		logger.Warn("Event mirror flush incomplete", zap.Error(err))
	}
	if redisRW != nil {
		_ = redisRW.Close()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(cfg config.LoggingConfig, level zap.AtomicLevel) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level.SetLevel(lvl)
	zc.Level = level
	return zc.Build()
}

func registerHealthChecks(m *health.Manager, factory *engine.Factory, cfg *config.Config, redisRW *circuitbreaker.RedisWrapper, logger *zap.Logger) {
	register := func(c health.Checker) {
		if err := m.RegisterChecker(c); err != nil {
			logger.Warn("Failed to register health checker", zap.String("name", c.Name()), zap.Error(err))
		}
	}

	register(health.NewCustomHealthChecker("debate_engine", true, time.Second, func(context.Context) health.CheckResult {
		active := factory.Config()
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: "engine configured",
			Details: map[string]interface{}{
				"agents":     len(active.Agents),
				"max_rounds": active.Debate.MaxRounds,
				"detector":   active.Consensus.Detector,
			},
		}
	}))

	register(health.NewCustomHealthChecker("circuit_breakers", false, time.Second, func(context.Context) health.CheckResult {
		open := []string{}
		for name, state := range circuitbreaker.GlobalMetricsCollector.Snapshot() {
			if state == circuitbreaker.StateOpen {
				open = append(open, name)
			}
		}
		if len(open) > 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "circuit breakers open", Details: map[string]interface{}{"open": open}}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	}))

	if redisRW != nil {
		register(health.NewRedisHealthChecker(redisRW, false, logger))
	}
	for _, a := range cfg.Agents {
		if a.Kind == agents.KindHTTP && a.BaseURL != "" {
			register(health.NewLLMServiceHealthChecker(a.ID, a.BaseURL, logger))
		}
	}
}

