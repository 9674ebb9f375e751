package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tourneyhub/economy/internal/app"
	"github.com/tourneyhub/economy/internal/auth"
	"github.com/tourneyhub/economy/internal/handler"
	"github.com/tourneyhub/economy/internal/infra"
	"github.com/tourneyhub/economy/internal/projection"
	"github.com/tourneyhub/economy/internal/repository"
	"github.com/tourneyhub/economy/internal/repository/memory"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	health := map[string]handler.Pinger{}

	// Wallet store
	var store repository.Store
	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		logger.Warn("using in-memory store; balances are lost on restart")
		store = memory.NewStore()
	default:
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to postgres")
		store = repository.NewPgStore(pool)
		health["postgres"] = infra.PoolPinger{Pool: pool}
	}

	// Balance projection cache (optional)
	var projections projection.Store
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		logger.Info("connected to redis")
		projections = projection.NewRedisStore(client)
		health["redis"] = infra.RedisPinger{Client: client}
	}

	r := app.NewRouter(app.RouterDeps{
		Store:               store,
		JWTMgr:              auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTAdminExpiry),
		Logger:              logger,
		Projections:         projections,
		ProjectionTTL:       cfg.ProjectionTTL,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		WebhookRateLimit:    cfg.WebhookRateLimit,
		Health:              health,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
