package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func NewJobCmd(q Queue) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect queued email jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := q.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	})
	return cmd
}
