package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/spotter-report-loader/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/spotter-report-loader/internal/adapter/kafka"
	"github.com/couchcryptid/spotter-report-loader/internal/backoff"
	"github.com/couchcryptid/spotter-report-loader/internal/checkpoint"
	"github.com/couchcryptid/spotter-report-loader/internal/config"
	"github.com/couchcryptid/spotter-report-loader/internal/fetcher"
	"github.com/couchcryptid/spotter-report-loader/internal/observability"
	"github.com/couchcryptid/spotter-report-loader/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := checkpoint.Open(cfg.CheckpointDir, cfg.DedupeWindowSize, cfg.DedupeWindowTTL, logger)
	if err != nil {
		logger.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}

	feed := fetcher.New(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	quarantine := kafkaadapter.NewQuarantineWriter(cfg, logger)

	p := pipeline.New(feed, store, pipeline.NewReportNormalizer(), writer, quarantine, logger, metrics, pipeline.Options{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.RetryMaxAttempts,
		Backoff:      backoff.Policy{Base: cfg.BackoffBase, Cap: cfg.BackoffCap, Jitter: 0.2},
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the ingestion loop. A fatal pipeline error ends the process with a
	// non-zero exit after cleanup.
	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- p.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		// Let the in-flight cycle finish committing before teardown.
		runErr = <-pipelineErr
	case runErr = <-pipelineErr:
		stop()
	}
	if runErr != nil {
		logger.Error("pipeline fatal error", "error", runErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := quarantine.Close(); err != nil {
		logger.Error("kafka quarantine writer close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("checkpoint store close error", "error", err)
	}

	if runErr != nil {
		logger.Error("exiting after fatal pipeline error")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
