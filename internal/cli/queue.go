package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewQueueCmd(q Queue) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the email queue",
	}
	cmd.AddCommand(newQueueStatsCmd(q), newQueuePromoteCmd(q))
	return cmd
}

func newQueueStatsCmd(q Queue) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := q.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queue %s:\n", q.Name())
			fmt.Fprintf(out, "  %-10s %d\n", "waiting", st.Waiting)
			fmt.Fprintf(out, "  %-10s %d\n", "active", st.Active)
			fmt.Fprintf(out, "  %-10s %d\n", "delayed", st.Delayed)
			fmt.Fprintf(out, "  %-10s %d\n", "completed", st.Completed)
			fmt.Fprintf(out, "  %-10s %d\n", "failed", st.Failed)
			return nil
		},
	}
}

func newQueuePromoteCmd(q Queue) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Move retries whose backoff has elapsed back to waiting",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := q.PromoteDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Promoted:", n)
			return nil
		},
	}
}
