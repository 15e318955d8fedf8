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

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/api"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/audit"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/config"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/database"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/repository"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment, "rekko-api")
	slog.SetDefault(logger)

	logger.Info("starting Rekko configuration API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg := database.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxOpenConns = cfg.DBMaxConns
	pool, err := database.NewPgxPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	auditLogger := audit.NewSlogLogger(logger)
	clientRepo := repository.NewClientRepository(pool)
	configRepo := repository.NewConfigRepository(pool)

	router := api.NewRouter(logger, &api.Dependencies{
		ConfigService: service.NewConfigService(configRepo, clientRepo, auditLogger, logger),
		ClientService: service.NewClientService(clientRepo, auditLogger, logger),
		JWTService:    admin.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn),
		DB:            pool,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}
