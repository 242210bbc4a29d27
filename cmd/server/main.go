// Package main runs the annotation HTTP endpoints, the gRPC health service
// and the metrics listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/formatter"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/outbox"
	"github.com/helixir/document-review-service/internal/repository"
	"github.com/helixir/document-review-service/internal/server"
	httpserver "github.com/helixir/document-review-service/internal/server/http"
	"github.com/helixir/document-review-service/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("document-review-service server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	store, err := objectstore.New(cfg.ObjectStore, logger)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	notifier := outbox.NewPublisher(
		outbox.NewEmitter(outbox.EmitterConfig{ServiceName: "document-review-service"}),
		outbox.NewAdapter(outbox.NewPgStore()),
	)
	completions := tracker.New(repository.NewPgTrackingRepository(db), notifier, tracker.Config{
		NotificationTopic: cfg.Kafka.NotificationTopic,
		InitialBackoff:    cfg.Tracker.InitialBackoff,
		MaxBackoff:        cfg.Tracker.MaxBackoff,
		MaxElapsed:        cfg.Tracker.MaxElapsed,
		HandlerTimeout:    cfg.Server.RequestTimeout,
	}, metrics, logger)

	checks := map[string]httpserver.ReadinessCheck{
		"database":     db.Ping,
		"object_store": store.Ping,
	}

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.Deps{
		Tracker:   completions,
		Store:     store,
		Formatter: formatter.Options{KMSKeyID: cfg.ObjectStore.KMSKeyID},
		Checks:    checks,
	}, logger)

	grpcSrv := server.NewGRPCServer(server.Config{Address: cfg.Server.GRPCAddress()}, map[string]server.Check{
		"database":     db.Ping,
		"object_store": store.Ping,
	}, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	errCh := make(chan error, 3)

	go func() {
		if err := grpcSrv.Serve(ctx); err != nil {
			errCh <- err
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down document-review-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}
	grpcSrv.Shutdown(shutdownCtx)

	logger.Info().Msg("document-review-service shutdown complete")
	return nil
}
