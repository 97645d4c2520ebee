package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leozw/uptime-sentinel/internal/app"
	"github.com/leozw/uptime-sentinel/internal/config"
	"github.com/leozw/uptime-sentinel/internal/logging"
)

// scheduler runs a single tick and exits. It is meant to be driven by cron or
// another external timer.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sentinel, err := app.New(ctx, cfg, logger, app.RequirePersistentStore())
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer sentinel.Close()

	start := time.Now()
	tickErr := sentinel.Scheduler.Tick(ctx, start)

	// Metadata refreshes outlive the tick; let them finish before exiting.
	sentinel.Scheduler.Wait()

	if tickErr != nil {
		logger.Error("Tick finished with errors", zap.Error(tickErr))
		sentinel.Close()
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Tick completed", zap.Duration("duration", time.Since(start)))
}
