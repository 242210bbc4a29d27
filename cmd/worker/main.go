// Package main runs the background side of the review service: the Kafka
// consumers for triage and completion tracking, the outbox relay, and the
// Temporal worker that reconciles the streaming labeling job.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/consumer"
	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/labeling"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/monitor"
	"github.com/helixir/document-review-service/internal/objectstore"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/outbox"
	"github.com/helixir/document-review-service/internal/repository"
	"github.com/helixir/document-review-service/internal/temporal"
	"github.com/helixir/document-review-service/internal/temporal/activities"
	"github.com/helixir/document-review-service/internal/threshold"
	"github.com/helixir/document-review-service/internal/tracker"
	"github.com/helixir/document-review-service/internal/triage"
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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("document-review-service worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	producer, err := messaging.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	outboxStore := outbox.NewPgStore()
	notifier := outbox.NewPublisher(
		outbox.NewEmitter(outbox.EmitterConfig{ServiceName: "document-review-service"}),
		outbox.NewAdapter(outboxStore),
	)
	completions := tracker.New(repository.NewPgTrackingRepository(db), notifier, tracker.Config{
		NotificationTopic: cfg.Kafka.NotificationTopic,
		InitialBackoff:    cfg.Tracker.InitialBackoff,
		MaxBackoff:        cfg.Tracker.MaxBackoff,
		MaxElapsed:        cfg.Tracker.MaxElapsed,
		HandlerTimeout:    cfg.Consumer.HandlerTimeout,
	}, metrics, logger)

	temporalCfg := temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
	}
	temporalClient, err := temporal.NewClient(temporalCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer temporalClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	labelingClient, err := labeling.NewClient(cfg.Labeling, metrics, logger)
	if err != nil {
		return fmt.Errorf("create labeling client: %w", err)
	}
	reconciler := monitor.NewReconciler(labelingClient, cfg.Labeling.JobConfig(), metrics, logger)

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.WorkerConfig{
		TaskQueue: cfg.Temporal.TaskQueue,
	}, activities.NewLabelingActivities(reconciler))
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	if err := temporal.EnsureSchedule(ctx, temporalClient.ScheduleClient(), temporal.ScheduleConfig{
		ID:         cfg.Monitor.ScheduleID,
		Cron:       cfg.Monitor.Cron,
		TaskQueue:  cfg.Temporal.TaskQueue,
		RunTimeout: cfg.Monitor.RunTimeout,
	}, logger); err != nil {
		return fmt.Errorf("ensure reconcile schedule: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	relay := outbox.NewRelay(db, outboxStore, producer, cfg.Outbox, metrics, logger)
	g.Go(func() error { return ignoreCanceled(relay.Run(gctx)) })

	g.Go(func() error {
		logger.Info().Str("task_queue", manager.TaskQueue()).Msg("starting temporal worker")
		return ignoreCanceled(manager.Start(gctx))
	})

	if cfg.Consumer.Enabled {
		consumers, closeThresholds, err := buildConsumers(ctx, cfg, completions, producer, metrics, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeThresholds(); err != nil {
				logger.Error().Err(err).Msg("failed to close threshold source")
			}
		}()
		for _, c := range consumers {
			c := c
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error().Err(err).Msg("failed to close consumer")
				}
			}()
			g.Go(func() error { return ignoreCanceled(c.Run(gctx)) })
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	logger.Info().Msg("document-review-service worker stopped")
	return nil
}

// buildConsumers wires the extraction topic to triage and the completion
// topic to the tracker. Both dead-letter through producer.
func buildConsumers(
	ctx context.Context,
	cfg *config.Config,
	completions *tracker.Tracker,
	producer *messaging.Producer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) ([]*consumer.Consumer, func() error, error) {
	store, err := objectstore.New(cfg.ObjectStore, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create object store: %w", err)
	}

	thresholds, closeThresholds, err := threshold.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create threshold source: %w", err)
	}

	triageSvc := triage.NewService(thresholds, store, completions, producer, triage.Config{
		ExtractionPrefix: cfg.ObjectStore.ExtractionPrefix,
		ReviewTaskTopic:  cfg.Kafka.ReviewTaskTopic,
		HandlerTimeout:   cfg.Consumer.HandlerTimeout,
	}, metrics, logger)

	routes := []struct {
		topic   string
		handler consumer.HandlerFunc
	}{
		{topic: cfg.Consumer.ExtractionTopic, handler: triageSvc.HandleMessage},
		{topic: cfg.Consumer.CompletionTopic, handler: completions.HandleMessage},
	}

	consumers := make([]*consumer.Consumer, 0, len(routes))
	for _, r := range routes {
		c, err := consumer.New(consumer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Topic:           r.topic,
			GroupID:         cfg.Consumer.GroupID,
			DeadLetterTopic: cfg.Consumer.DeadLetterTopic(r.topic),
			MaxAttempts:     cfg.Consumer.MaxAttempts,
			HandlerTimeout:  cfg.Consumer.HandlerTimeout,
			RetryBackoff:    cfg.Consumer.RetryBackoff,
			MaxRetryBackoff: cfg.Consumer.MaxRetryBackoff,
		}, r.handler, producer, metrics, logger)
		if err != nil {
			for _, created := range consumers {
				_ = created.Close()
			}
			_ = closeThresholds()
			return nil, nil, fmt.Errorf("create consumer for %s: %w", r.topic, err)
		}
		consumers = append(consumers, c)
	}
	return consumers, closeThresholds, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
