package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Raksha/internal/bootstrap"
	"Raksha/pkg/config"
	"Raksha/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	if _, err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	lg := logger.L()
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("bootstrap failed", zap.Error(err))
	}
	runErr := app.Run(ctx)
	if runErr != nil {
		lg.Error("server stopped", zap.Error(runErr))
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
