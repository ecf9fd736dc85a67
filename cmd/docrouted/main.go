package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/af-corp/docroute/internal/app"
	"github.com/af-corp/docroute/internal/config"
	"github.com/af-corp/docroute/internal/gateway"
	"github.com/af-corp/docroute/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := telemetry.NewLogger(os.Stdout, "info", "json")
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	ctx := context.Background()
	rdb := app.NewRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	metrics := telemetry.NewMetrics()
	pipeline, err := app.New(ctx, loader.Snapshot(), app.Options{
		Logger:  logger,
		Metrics: metrics,
		Redis:   rdb,
	})
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	loader.OnReload(func(snap *config.Snapshot) {
		if err := pipeline.Reload(snap); err != nil {
			logger.Error("routing reload rejected, keeping previous routing", "error", err)
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	handler := gateway.NewHandler(pipeline.Orchestrator, cfg.Server.MaxUploadBytes, version)
	r := gateway.NewRouter(handler, gateway.RouterOptions{
		Limiter:     pipeline.Limiter,
		IngestRPM:   cfg.Server.IngestRPM,
		Metrics:     metrics,
		MetricsPath: cfg.Telemetry.MetricsPath,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("docrouted starting", "addr", addr, "version", version, "mode", cfg.Orchestrator.Mode)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("docrouted stopped")
}
