package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/prioadvisor/internal/exchange"
	"github.com/me/prioadvisor/internal/heuristic"
	"github.com/me/prioadvisor/internal/snapshot"
)

func newShowCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the published directive batch",
		Long: `Show the directive batch currently published. With --dry-run, evaluate the
latest metrics snapshot instead and print each task's decision without
publishing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return showDecisions(cmd)
			}

			b, err := exchange.NewFileExchange(cfg.DirectivePath, logger).ReadLatest(cmd.Context())
			if err != nil {
				return fmt.Errorf("read directives: %w", err)
			}
			out := cmd.OutOrStdout()
			if b == nil {
				fmt.Fprintln(out, "No directives published.")
				return nil
			}

			fmt.Fprintf(out, "Tick: %d\n", b.Tick)
			if b.ValidUntil != nil {
				fmt.Fprintf(out, "Valid until: %d\n", *b.ValidUntil)
			}
			fmt.Fprintf(out, "%-10s  %s\n", "TASK", "PRIORITY")
			fmt.Fprintf(out, "%-10s  %s\n", "----", "--------")
			for _, d := range b.Directives {
				fmt.Fprintf(out, "%-10d  %d\n", d.TaskID, d.NewPriority)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate the latest snapshot without publishing")
	addLoopFlags(cmd)
	return cmd
}

func showDecisions(cmd *cobra.Command) error {
	eng, err := heuristic.New(cfg.Heuristic)
	if err != nil {
		return err
	}
	snap, err := snapshot.NewReader(cfg.MetricsPath, logger, snapshot.WithDefaultPriority(cfg.DefaultPriority)).Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	out := cmd.OutOrStdout()
	if snap.IsEmpty() {
		fmt.Fprintln(out, "No metrics available.")
		return nil
	}

	fmt.Fprintf(out, "Tick: %d (queue_len=%d cpu_usage=%.2f)\n", snap.Tick, snap.QueueLen, snap.CPUUsage)
	fmt.Fprintf(out, "%-10s  %-8s  %-8s  %-8s  %s\n", "TASK", "CURRENT", "DELTA", "NEW", "REASONS")
	fmt.Fprintf(out, "%-10s  %-8s  %-8s  %-8s  %s\n", "----", "-------", "-----", "---", "-------")
	for _, d := range eng.Evaluate(snap) {
		fmt.Fprintf(out, "%-10d  %-8d  %-+8.2f  %-8d  %s\n", d.TaskID, d.Current, d.Delta, d.NewPriority, d.ReasonString())
	}
	return nil
}
