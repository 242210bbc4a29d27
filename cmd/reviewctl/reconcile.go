package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/document-review-service/internal/domain"
)

func newReconcileCommand(deps *Deps) *cobra.Command {
	var (
		viaWorkflow bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Ensure the streaming labeling job is running",
		Long: `Observe the newest labeling job with the configured name prefix and
create a new one when it is not running.

By default the check runs in-process against the labeling API. With
--workflow the reconcile workflow is started on the Temporal task queue
and its result awaited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(deps)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			build := deps.Reconciler
			if viaWorkflow {
				build = deps.WorkflowReconciler
			}
			runner, closeFn, err := build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := runner.Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == outputJSON {
				return writeJSON(out, res)
			}
			return printReconcileResult(cmd, res)
		},
	}

	cmd.Flags().BoolVar(&viaWorkflow, "workflow", false, "Run through the Temporal reconcile workflow")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	return cmd
}

func printReconcileResult(cmd *cobra.Command, res domain.ReconcileResult) error {
	out := cmd.OutOrStdout()
	observed := res.ObservedJob
	if observed == "" {
		observed = "-"
	}
	if _, err := fmt.Fprintf(out, "Observed: %s (%s)\n", observed, res.ObservedStatus); err != nil {
		return err
	}
	if res.Action == domain.ReconcileCreated {
		_, err := fmt.Fprintf(out, "Created:  %s\n", res.CreatedJob)
		return err
	}
	_, err := fmt.Fprintln(out, "Action:   none")
	return err
}
