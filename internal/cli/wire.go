package cli

import (
	"context"
	"fmt"

	"github.com/me/prioadvisor/internal/advisor"
	"github.com/me/prioadvisor/internal/exchange"
	"github.com/me/prioadvisor/internal/heuristic"
	"github.com/me/prioadvisor/internal/snapshot"
	"github.com/me/prioadvisor/internal/store"
)

// components holds everything a poll cycle needs, built from cfg.
type components struct {
	reader   *snapshot.Reader
	engine   *heuristic.Engine
	exchange *exchange.FileExchange
	store    *store.SQLiteStore // nil when history is disabled
	loop     *advisor.Loop
}

func (c *components) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

func buildComponents(ctx context.Context) (*components, error) {
	eng, err := heuristic.New(cfg.Heuristic)
	if err != nil {
		return nil, err
	}
	c := &components{
		reader:   snapshot.NewReader(cfg.MetricsPath, logger, snapshot.WithDefaultPriority(cfg.DefaultPriority)),
		engine:   eng,
		exchange: exchange.NewFileExchange(cfg.DirectivePath, logger),
	}

	var history advisor.HistoryRecorder
	if cfg.HistoryDB != "" {
		st, err := openStore(ctx, cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		c.store = st
		history = st
	}

	c.loop = advisor.NewLoop(c.reader, eng, c.exchange, history, advisor.Config{
		PollInterval:  cfg.PollInterval,
		ValidityTicks: cfg.ValidityTicks,
		DebugTrace:    cfg.DebugTrace,
	}, logger)
	return c, nil
}

func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	logger.Debug("history ready", "path", path)
	return st, nil
}
