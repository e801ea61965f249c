package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/prioadvisor/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List published batches from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.HistoryDB == "" {
				return errors.New("history is disabled; set --history-db")
			}
			st, err := openStore(cmd.Context(), cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, total, err := st.ListBatches(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "No batches recorded.")
				return nil
			}

			fmt.Fprintf(out, "%-10s  %-6s  %-11s  %-30s  %s\n", "TICK", "TASKS", "VALID_UNTIL", "PUBLISHED", "ID")
			fmt.Fprintf(out, "%-10s  %-6s  %-11s  %-30s  %s\n", "----", "-----", "-----------", "---------", "--")
			for _, rec := range recs {
				validUntil := "-"
				if rec.Batch.ValidUntil != nil {
					validUntil = fmt.Sprint(*rec.Batch.ValidUntil)
				}
				fmt.Fprintf(out, "%-10d  %-6d  %-11s  %-30s  %s\n",
					rec.Batch.Tick, len(rec.Batch.Directives), validUntil,
					rec.PublishedAt.Format("2006-01-02T15:04:05.000Z07:00"), rec.ID)
			}
			if opts.Offset+len(recs) < total {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(recs), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum batches to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", opts.Offset, "Batches to skip")
	return cmd
}
