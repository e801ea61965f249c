package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/prioadvisor/internal/config"
	"github.com/me/prioadvisor/internal/logging"
	"github.com/me/prioadvisor/internal/server"
)

var (
	flagConfig     string
	flagDebug      bool
	flagLogLevel   string
	flagLogFormat  string
	flagMetrics    string
	flagDirectives string
	flagHistoryDB  string

	// loop flags, registered by run and once
	flagPollInterval    time.Duration
	flagDebugTrace      bool
	flagValidityTicks   int64
	flagDefaultPriority int
	flagStatusAddr      string
	flagTraceOutput     string

	logger *slog.Logger
	cfg    config.AdvisorConfig
)

// NewRootCmd creates the root cobra command for the prioadvisor CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultAdvisorConfig()

	root := &cobra.Command{
		Use:     "prioadvisor",
		Short:   "prioadvisor publishes priority directives for a tick scheduler",
		Long:    "prioadvisor watches a scheduler's metrics table and publishes revised task priorities once per tick.",
		Version: server.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = c
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file; flags override its values")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", defaults.LogFormat, "Log format (text, json)")
	pf.StringVar(&flagMetrics, "metrics", defaults.MetricsPath, "Metrics table path or afs URL")
	pf.StringVar(&flagDirectives, "directives", defaults.DirectivePath, "Published directive table path")
	pf.StringVar(&flagHistoryDB, "history-db", defaults.HistoryDB, "SQLite history database (empty disables history)")

	root.AddCommand(
		newRunCmd(),
		newOnceCmd(),
		newShowCmd(),
		newAuditCmd(),
		newHistoryCmd(),
	)

	return root
}

// addLoopFlags registers the flags shared by commands that run poll cycles.
func addLoopFlags(cmd *cobra.Command) {
	defaults := config.DefaultAdvisorConfig()
	f := cmd.Flags()
	f.BoolVar(&flagDebugTrace, "debug-trace", defaults.DebugTrace, "Log one trace line per task per published cycle")
	f.Int64Var(&flagValidityTicks, "validity-ticks", defaults.ValidityTicks, "valid_until = tick + N (0 omits the column)")
	f.IntVar(&flagDefaultPriority, "default-priority", defaults.DefaultPriority, "Priority assumed when current_priority is unparseable")
	f.StringVar(&flagTraceOutput, "trace-output", defaults.TraceOutput, "OpenTelemetry span output: empty off, - stdout, else a file")
}

// loadConfig layers defaults, the optional config file, then any flag the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (config.AdvisorConfig, error) {
	c := config.DefaultAdvisorConfig()
	if flagConfig != "" {
		if err := config.LoadFile(flagConfig, &c); err != nil {
			return c, err
		}
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { c.LogLevel = flagLogLevel })
	set("log-format", func() { c.LogFormat = flagLogFormat })
	set("metrics", func() { c.MetricsPath = flagMetrics })
	set("directives", func() { c.DirectivePath = flagDirectives })
	set("history-db", func() { c.HistoryDB = flagHistoryDB })
	set("poll-interval", func() { c.PollInterval = flagPollInterval })
	set("debug-trace", func() { c.DebugTrace = flagDebugTrace })
	set("validity-ticks", func() { c.ValidityTicks = flagValidityTicks })
	set("default-priority", func() { c.DefaultPriority = flagDefaultPriority })
	set("status-addr", func() { c.StatusAddr = flagStatusAddr })
	set("trace-output", func() { c.TraceOutput = flagTraceOutput })
	if flagDebug {
		c.LogLevel = "debug"
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
