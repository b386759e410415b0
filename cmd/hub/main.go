package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	sdkopenai "github.com/openai/openai-go"
	"github.com/redis/go-redis/v9"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	anthropicagent "github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent/anthropic"
	openaiagent "github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent/openai"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/artifact"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/config"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/quota"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/router"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/service"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/store"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	records := store.Open(cfg, logger)

	var usage quota.Tracker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		usage = quota.NewRedisTracker(rdb, cfg.DailyExecutionLimit)
		logger.Info("quota: redis counters", "addr", cfg.RedisAddr, "daily_limit", cfg.DailyExecutionLimit)
	} else {
		usage = quota.NewMemoryTracker(cfg.DailyExecutionLimit)
		logger.Info("quota: in-memory counters", "daily_limit", cfg.DailyExecutionLimit)
	}

	var artifacts artifact.Store
	if cfg.MinioEndpoint != "" {
		minioStore, err := artifact.NewMinioStore(context.Background(),
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Warn("artifact store: minio unavailable, falling back to in-memory", "error", err)
			artifacts = artifact.NewMemoryStore()
		} else {
			logger.Info("artifact store: minio", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
			artifacts = minioStore
		}
	} else {
		logger.Info("artifact store: in-memory")
		artifacts = artifact.NewMemoryStore()
	}

	// SDK clients read their API keys from OPENAI_API_KEY / ANTHROPIC_API_KEY.
	openaiClient := sdkopenai.NewClient()
	anthropicClient := sdkanthropic.NewClient()

	agents := agent.NewRegistry()
	agents.Register(openaiagent.NewImageAgent(&openaiClient, usage))
	agents.Register(anthropicagent.NewTutorAgent(&anthropicClient, usage))

	connections := stream.NewRegistry(logger)
	connections.HeartbeatTimeout = cfg.HeartbeatTimeout.Std()
	connections.SweepInterval = cfg.SweepInterval.Std()
	broadcaster := stream.NewRouter(connections)

	executor := service.NewExecutor(agents, records, artifacts, broadcaster, logger)
	executor.CallTimeout = cfg.RemoteCallTimeout.Std()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(executor, agents, connections),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams need unlimited write timeout
		IdleTimeout:  120 * time.Second,
	}

	// Root context cancelled on shutdown, propagates to the sweep loop.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	go connections.Start(rootCtx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("eduhu agent hub listening", "port", cfg.Port, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")
	rootCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
