package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/app"
	"github.com/notifyhub/mailqueue/internal/config"
	"github.com/notifyhub/mailqueue/internal/logging"
)

// A standalone consumer of the email queue. Unlike the server it cannot fall
// back to direct delivery, so it exits when the broker is unreachable at
// startup or lost for good afterwards.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *zap.Logger) int {
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start application", zap.Error(err))
		return 1
	}

	logger.Info("worker running", zap.String("queue", a.Queue.Name()))
	runErr := a.RunWorker(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("worker stopped", zap.String("broker", string(a.Broker.State())), zap.Error(runErr))
		return 1
	}
	logger.Info("worker stopped cleanly")
	return 0
}
