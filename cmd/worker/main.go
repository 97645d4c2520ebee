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

	"go.uber.org/zap"

	"github.com/leozw/uptime-sentinel/internal/api"
	"github.com/leozw/uptime-sentinel/internal/app"
	"github.com/leozw/uptime-sentinel/internal/config"
	"github.com/leozw/uptime-sentinel/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup logger
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sentinel, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer sentinel.Close()

	// Ops server
	server := api.NewServer(&cfg.Server, sentinel.Store, sentinel.Metrics.Registry(), logger)
	srv := &http.Server{
		Addr:    server.Addr(),
		Handler: server.Router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start ops server", zap.Error(err))
		}
	}()

	// Start scheduler
	done := make(chan struct{})
	go func() {
		defer close(done)
		sentinel.Scheduler.Start(ctx, cfg.Scheduler.TickInterval)
	}()

	// Start metrics exporter
	go sentinel.Metrics.StartRemoteWrite(ctx, logger)

	logger.Info("Worker started",
		zap.String("addr", srv.Addr),
		zap.Duration("tick_interval", cfg.Scheduler.TickInterval),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ops server forced to shutdown", zap.Error(err))
	}

	drained := make(chan struct{})
	go func() {
		sentinel.Scheduler.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("Metadata refreshes still running at shutdown")
	}

	logger.Info("Worker exited")
}
