package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/api"
	"github.com/ghimmohmoh/ghimmohmoh/internal/auth"
	"github.com/ghimmohmoh/ghimmohmoh/internal/bootstrap"
	"github.com/ghimmohmoh/ghimmohmoh/internal/config"
	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("ghimmohmoh-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	rt, err := bootstrap.Open(context.Background(), cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	if cfg.Prompt.WarmOnStart {
		if err := rt.Service.Warm(context.Background()); err != nil {
			logger.Error("failed to build table context", slog.Any("error", err))
			_ = rt.Close()
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:            logger,
		Prompts:           rt.Service,
		AssistantName:     cfg.Prompt.AssistantName,
		Readiness:         rt.Source.HealthCheck,
		DependencyTimeout: 2 * time.Second,
	}
	if rt.Service.ArchiveEnabled() {
		deps.Readiness = api.CombineReadinessChecks(rt.Source.HealthCheck, api.CheckObjectStoreConfig(cfg))
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			_ = rt.Close()
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("table", cfg.Prompt.Table.String()),
			slog.String("driver", cfg.Warehouse.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		_ = rt.Close()
		os.Exit(1)
	}
}
