package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixir/document-review-service/internal/domain"
)

func newRecordCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Inspect completion tracking records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <job-id>",
		Short: "Show the tracking record of one extraction job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(deps)
			if err != nil {
				return err
			}
			records, closeFn, err := deps.Records(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := records.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format == outputJSON {
				return writeJSON(cmd.OutOrStdout(), toRecordView(rec))
			}
			return printRecord(cmd, rec)
		},
	})

	var limit int
	list := &cobra.Command{
		Use:   "list-open",
		Short: "List records still waiting for reviewed pages",
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
			records, closeFn, err := deps.Records(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			recs, err := records.ListOpen(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if format == outputJSON {
				views := make([]recordView, 0, len(recs))
				for _, r := range recs {
					views = append(views, toRecordView(r))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tDOCUMENT\tREVIEWED\tTOTAL\tUPDATED")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					r.JobID, r.DocumentID, r.ReviewedCount(), totalString(r.TotalPages), r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of records")
	cmd.AddCommand(list)

	return cmd
}

type recordView struct {
	JobID           string     `json:"job_id"`
	DocumentID      string     `json:"document_id"`
	Status          string     `json:"status"`
	TotalPages      *int       `json:"total_pages"`
	ReviewedPageIDs []string   `json:"reviewed_page_ids"`
	LastPageSeen    bool       `json:"last_page_seen"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toRecordView(r *domain.JobTrackingRecord) recordView {
	return recordView{
		JobID:           r.JobID,
		DocumentID:      r.DocumentID,
		Status:          string(r.Status),
		TotalPages:      r.TotalPages,
		ReviewedPageIDs: r.ReviewedPageIDs,
		LastPageSeen:    r.LastPageSeen,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func printRecord(cmd *cobra.Command, r *domain.JobTrackingRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job ID:\t%s\n", r.JobID)
	fmt.Fprintf(w, "Document:\t%s\n", r.DocumentID)
	fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	fmt.Fprintf(w, "Pages:\t%d / %s\n", r.ReviewedCount(), totalString(r.TotalPages))
	fmt.Fprintf(w, "Last page seen:\t%t\n", r.LastPageSeen)
	if len(r.ReviewedPageIDs) > 0 {
		fmt.Fprintf(w, "Reviewed:\t%s\n", strings.Join(r.ReviewedPageIDs, ", "))
	}
	if r.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:\t%s\n", r.CompletedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func totalString(total *int) string {
	if total == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *total)
}
