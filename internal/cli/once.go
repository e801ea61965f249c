package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle and exit",
		Long: `Run one poll cycle. Every invocation starts with no memory of earlier
ticks, so the newest tick in the metrics table is always published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			outcome, err := c.loop.Tick(cmd.Context())
			if err != nil {
				return fmt.Errorf("poll cycle: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Outcome: %s\n", outcome)
			if tick := c.loop.LastTick(); tick >= 0 {
				fmt.Fprintf(out, "  Tick:       %d\n", tick)
				fmt.Fprintf(out, "  Directives: %s\n", cfg.DirectivePath)
			}
			return nil
		},
	}
	addLoopFlags(cmd)
	return cmd
}
