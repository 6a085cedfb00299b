package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaidashi/apparel-order-pipeline/internal/api"
	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Sync()

	l.Info("Starting order pipeline",
		"env", cfg.Env,
		"storage", cfg.Storage.Driver,
		"kafka", cfg.Kafka.Enabled,
		"strictGates", cfg.Workflow.StrictGates)

	server, err := api.NewServer(cfg, l)

	if err != nil {
		l.Error("Failed to initialise server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	} else {
		l.Info("Server exiting")
	}
}
