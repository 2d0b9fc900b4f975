package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wangmul/emotion-tracker/internal/config"
	"github.com/wangmul/emotion-tracker/internal/di"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := config.DefaultLoader()
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Shutdown()
	logger := container.Logger

	if err := container.WatchConfig(loader); err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)),
			zap.Strings("config_sources", cfg.LoadedFrom),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
