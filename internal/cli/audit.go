package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/prioadvisor/internal/audit"
	"github.com/me/prioadvisor/internal/exchange"
	"github.com/me/prioadvisor/internal/snapshot"
	"github.com/me/prioadvisor/pkg/model"
)

func newAuditCmd() *cobra.Command {
	var lag int64
	var failOnMismatch bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check that the scheduler applied published directives",
		Long: `Compare published directives with the priorities the scheduler later
logged. A directive for tick T is checked against the metrics row at T+lag.
Directives come from --history-db when set, otherwise from the currently
published batch only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			history, err := snapshot.NewReader(cfg.MetricsPath, logger, snapshot.WithDefaultPriority(cfg.DefaultPriority)).ReadHistory(ctx)
			if err != nil {
				return fmt.Errorf("read metrics: %w", err)
			}

			var batches []model.Batch
			if cfg.HistoryDB != "" {
				st, err := openStore(ctx, cfg.HistoryDB)
				if err != nil {
					return err
				}
				defer st.Close()
				if len(history) > 0 {
					from := history[0].Tick - model.Tick(lag)
					to := history[len(history)-1].Tick
					if batches, err = st.BatchesInRange(ctx, from, to); err != nil {
						return fmt.Errorf("read history: %w", err)
					}
				}
			} else {
				b, err := exchange.NewFileExchange(cfg.DirectivePath, logger).ReadLatest(ctx)
				if err != nil {
					return fmt.Errorf("read directives: %w", err)
				}
				if b != nil {
					batches = append(batches, *b)
				}
			}

			report, err := audit.Compare(batches, history, lag)
			if err != nil {
				return err
			}
			if err := report.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if failOnMismatch && !report.OK() {
				return fmt.Errorf("%d mismatches", len(report.Mismatches))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&lag, "lag", audit.DefaultLag, "Ticks between a directive and the metrics row expected to reflect it")
	cmd.Flags().BoolVar(&failOnMismatch, "fail-on-mismatch", false, "Exit non-zero when any row mismatches")
	return cmd
}
