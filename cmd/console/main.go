package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/config"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/lifecycle"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/transport"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadConsole()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment, "rekko-console")
	slog.SetDefault(logger)

	logger.Info("starting Rekko console",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("api", cfg.APIBaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var backend transport.API = transport.NewClient(transport.Config{
		BaseURL:      cfg.APIBaseURL,
		Timeout:      cfg.APITimeout,
		RetryCount:   cfg.APIRetryCount,
		RetryBackoff: cfg.APIRetryBackoff,
		Token:        cfg.APIToken,
	}, transport.WithClientMetrics(m))

	checks := map[string]handler.Pinger{}
	if cfg.CacheEnabled() {
		rdb, err := transport.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		store := transport.NewRedisStore(rdb)
		checks["redis"] = store
		backend = transport.NewCachedAPI(backend, store, logger,
			transport.WithTTL(cfg.CacheTTL),
			transport.WithCacheMetrics(m),
		)
		logger.Info("response cache enabled", slog.Duration("ttl", cfg.CacheTTL))
	}

	loader := registry.NewLoader(backend, logger,
		registry.WithConcurrency(cfg.ProbeConcurrency),
		registry.WithMetrics(m),
	)
	manager := lifecycle.NewManager(backend, loader, logger,
		lifecycle.WithMetrics(m),
		lifecycle.WithIntentTTL(cfg.IntentTTL),
		lifecycle.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	defer manager.Close()

	hub := ws.NewHub(logger)
	manager.Subscribe(hub.RegistryListener())

	// A failed first load leaves an empty registry; operators can refresh.
	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.RefreshTimeout)
	if _, err := manager.Refresh(loadCtx, true); err != nil {
		logger.Warn("initial registry load failed", slog.Any("error", err))
	}
	cancelLoad()

	router := api.NewConsoleRouter(logger, api.ConsoleDependencies{
		Manager:           manager,
		JWTService:        admin.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, 8*time.Hour),
		Hub:               hub,
		Gatherer:          reg,
		Checks:            checks,
		CORSOrigins:       cfg.CORSOrigins,
		MutationRateLimit: cfg.MutationRateLimit,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("console listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down console...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("console stopped")
	return nil
}
