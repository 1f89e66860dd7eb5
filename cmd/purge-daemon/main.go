package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/config"
	"github.com/edgecomet/cfpurge/internal/common/logger"
	"github.com/edgecomet/cfpurge/internal/purge/daemon"
)

func main() {
	configPath := flag.String("c", "configs/example/purge-daemon.yaml", "path to purge-daemon configuration file")
	flag.Parse()

	// Create initial logger for startup
	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	initialLogger.Info("Starting Purge Daemon",
		zap.String("config_path", *configPath))

	daemonConfig, err := config.LoadPurgeDaemonConfig(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load purge-daemon config", zap.Error(err))
	}

	// INFO during startup even if the configured level is higher
	dynamicLogger, err := logger.NewLoggerWithStartupOverride(daemonConfig.Logging)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer func() { _ = dynamicLogger.Sync() }()

	zapLogger := dynamicLogger.With(zap.String("daemon_id", daemonConfig.DaemonID))

	ctx := context.Background()
	purgeDaemon, err := daemon.New(ctx, daemonConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create purge daemon", zap.Error(err))
	}

	if err := purgeDaemon.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start purge daemon", zap.Error(err))
	}

	zapLogger.Info("Purge daemon started",
		zap.Bool("http_api", daemonConfig.HTTPApi.Enabled),
		zap.String("api_addr", daemonConfig.HTTPApi.Listen),
		zap.Bool("coalesce", daemonConfig.Coalesce.Enabled))

	dynamicLogger.SwitchToConfiguredLevel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	dynamicLogger.EnsureInfoLevelForShutdown()
	zapLogger.Info("Shutting down Purge Daemon...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := purgeDaemon.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown purge daemon gracefully", zap.Error(err))
	}

	zapLogger.Info("Purge daemon stopped")
}
