package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPRealtime/global"
	"PPRealtime/logger"

	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", os.Getenv("RT_CONFIG"), "path to the YAML config")
	flag.Parse()

	cfg, watcher, err := global.LoadConfig(*path)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := global.Boot(ctx, cfg)
	if err != nil {
		logger.Error("boot failed", zap.Error(err))
		os.Exit(1)
	}
	if watcher != nil {
		if err := global.WatchConfig(watcher, cfg); err != nil {
			logger.Warn("nacos watch failed", zap.Error(err))
		}
		defer watcher.Stop()
	}

	logger.Info("pp-realtime started",
		zap.String("node", cfg.Node.ID), zap.String("http", cfg.HTTP.Addr), zap.String("grpc", cfg.GRPC.Addr))
	if err := app.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("bye")
}
