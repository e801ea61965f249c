package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/prioadvisor/internal/config"
	"github.com/me/prioadvisor/internal/server"
	"github.com/me/prioadvisor/internal/tracing"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the metrics table and publish directives until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAdvisor(ctx)
		},
	}
	addLoopFlags(cmd)
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", config.DefaultAdvisorConfig().PollInterval, "Time between poll cycles")
	cmd.Flags().StringVar(&flagStatusAddr, "status-addr", "", "Serve the status API on this address (empty disables it)")
	return cmd
}

func runAdvisor(ctx context.Context) error {
	shutdownTracing, err := tracing.Init("prioadvisor", server.Version, cfg.TraceOutput)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	c, err := buildComponents(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	var httpServer *http.Server
	if cfg.StatusAddr != "" {
		var opts []server.Option
		if c.store != nil {
			opts = append(opts, server.WithStore(c.store))
		}
		srv := server.New(cfg, c.loop, c.exchange, logger, opts...)
		httpServer = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server starting", "addr", cfg.StatusAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	logger.Info("watching metrics", "metrics", cfg.MetricsPath, "directives", cfg.DirectivePath)
	err = c.loop.Start(ctx)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			logger.Error("status server shutdown", "error", serr)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("advisor stopped", "last_tick", c.loop.LastTick())
		return nil
	}
	return err
}
