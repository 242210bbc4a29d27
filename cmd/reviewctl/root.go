package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/labeling"
	"github.com/helixir/document-review-service/internal/monitor"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/repository"
	"github.com/helixir/document-review-service/internal/temporal"
	"github.com/helixir/document-review-service/internal/threshold"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
)

// reconcileRunner runs one observe/act pass over the labeling job.
type reconcileRunner interface {
	Reconcile(ctx context.Context) (domain.ReconcileResult, error)
}

// thresholdStore reads and writes the managed confidence threshold.
type thresholdStore interface {
	Current(ctx context.Context) (float64, error)
	Set(ctx context.Context, v float64) error
}

// recordReader reads completion tracking records.
type recordReader interface {
	Get(ctx context.Context, jobID string) (*domain.JobTrackingRecord, error)
	ListOpen(ctx context.Context, limit int) ([]*domain.JobTrackingRecord, error)
}

// Deps holds the constructors used by the commands. Tests replace them.
type Deps struct {
	LoadConfig func() (*config.Config, error)
	Logger     func(cfg *config.Config) zerolog.Logger

	Reconciler         func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (reconcileRunner, func(), error)
	WorkflowReconciler func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (reconcileRunner, func(), error)
	Thresholds         func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (thresholdStore, func(), error)
	Records            func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (recordReader, func(), error)
}

// DefaultDeps returns the production constructors.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:         config.Load,
		Logger:             cliLogger,
		Reconciler:         directReconciler,
		WorkflowReconciler: workflowReconciler,
		Thresholds:         redisThresholds,
		Records:            pgRecords,
	}
}

// NewRootCommand builds the reviewctl command tree.
func NewRootCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	root := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Operate the document review service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("output", "o", outputText, "Output format: text, json")

	root.AddCommand(
		newReconcileCommand(deps),
		newThresholdCommand(deps),
		newRecordCommand(deps),
		newMigrateCommand(deps),
	)
	return root
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	switch format {
	case outputText, outputJSON:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format %q (want text or json)", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cliLogger(cfg *config.Config) zerolog.Logger {
	lc := observability.DefaultLoggingConfig()
	lc.Format = "console"
	lc.Output = "stderr"
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	return observability.NewLogger(lc).With().Str("component", "reviewctl").Logger()
}

func directReconciler(_ context.Context, cfg *config.Config, logger zerolog.Logger) (reconcileRunner, func(), error) {
	api, err := labeling.NewClient(cfg.Labeling, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return monitor.NewReconciler(api, cfg.Labeling.JobConfig(), nil, logger), func() {}, nil
}

// workflowRunner adapts ReconcileClient to reconcileRunner.
type workflowRunner struct {
	client *temporal.ReconcileClient
}

func (w workflowRunner) Reconcile(ctx context.Context) (domain.ReconcileResult, error) {
	res, err := w.client.RunReconcile(ctx)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	return *res, nil
}

func workflowReconciler(_ context.Context, cfg *config.Config, logger zerolog.Logger) (reconcileRunner, func(), error) {
	clientCfg := temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
	}
	c, err := temporal.NewClient(clientCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return workflowRunner{client: temporal.NewReconcileClient(c, clientCfg, cfg.Monitor.RunTimeout)}, c.Close, nil
}

func redisThresholds(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (thresholdStore, func(), error) {
	src, err := threshold.NewRedisSource(ctx, cfg.Redis, cfg.Threshold, logger)
	if err != nil {
		return nil, nil, err
	}
	return src, func() { _ = src.Close() }, nil
}

func pgRecords(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (recordReader, func(), error) {
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return repository.NewPgTrackingRepository(db), db.Close, nil
}

// setup loads config and a logger for one command invocation.
func setup(deps *Deps) (*config.Config, zerolog.Logger, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger(cfg)
	}
	return cfg, logger, nil
}

