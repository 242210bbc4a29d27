package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newThresholdCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Read or change the confidence threshold used by triage",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(deps)
			if err != nil {
				return err
			}
			store, closeFn, err := deps.Thresholds(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := store.Current(cmd.Context())
			if err != nil {
				return err
			}
			if format == outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]float64{"threshold": v})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(v, 'f', -1, 64))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Store a new threshold in [0,1]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid threshold %q: %w", args[0], err)
			}
			cfg, logger, err := setup(deps)
			if err != nil {
				return err
			}
			store, closeFn, err := deps.Thresholds(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Set(cmd.Context(), v); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "threshold set to %s\n", strconv.FormatFloat(v, 'f', -1, 64))
			return err
		},
	})

	return cmd
}
