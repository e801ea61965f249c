package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/prioadvisor/internal/exchange"
	"github.com/me/prioadvisor/internal/heuristic"
	"github.com/me/prioadvisor/internal/logging"
	"github.com/me/prioadvisor/internal/tracing"
	"github.com/me/prioadvisor/pkg/model"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("advisor already started")

// Config holds poll loop configuration.
type Config struct {
	PollInterval  time.Duration
	ValidityTicks int64 // valid_until = tick + ValidityTicks; 0 leaves it unset
	DebugTrace    bool  // one trace line per task per published cycle
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 100 * time.Millisecond, ValidityTicks: 1}
}

// Loop implements the Advisor interface with a polling loop. At most one
// batch is published per distinct tick, and ticks only move forward.
type Loop struct {
	source   SnapshotSource
	engine   *heuristic.Engine
	exchange exchange.Exchange
	history  HistoryRecorder
	config   Config
	logger   *slog.Logger
	tracer   logging.Tracer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu      sync.Mutex
	started bool
	status  Status
}

// NewLoop creates a new poll loop. history may be nil.
func NewLoop(src SnapshotSource, eng *heuristic.Engine, x exchange.Exchange, history HistoryRecorder, cfg Config, logger *slog.Logger) *Loop {
	logger = logger.With("component", "advisor")
	return &Loop{
		source:   src,
		engine:   eng,
		exchange: x,
		history:  history,
		config:   cfg,
		logger:   logger,
		tracer:   logging.NewTracer(logger, cfg.DebugTrace),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		status:   Status{State: model.CycleStateIdle, LastTick: model.NoTick},
	}
}

// Start begins the poll loop. Blocks until ctx is cancelled, Stop is called,
// or a cycle returns a fatal error. A Loop runs at most once.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.doneCh)
	l.logger.Info("advisor started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("advisor stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("advisor stopping (stop called)")
			return nil
		case <-ticker.C:
			if _, err := l.Tick(ctx); err != nil && model.IsFatal(err) {
				l.logger.Error("advisor stopping (fatal error)", "error", err)
				return err
			}
		}
	}
}

// Stop gracefully shuts down the loop and waits for the current cycle to
// finish. Before Start it only prevents the loop from running.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if started {
		<-l.doneCh
	}
	return nil
}

// State returns the current cycle state.
func (l *Loop) State() model.CycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.State
}

// LastTick returns the newest tick published, or model.NoTick.
func (l *Loop) LastTick() model.Tick {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.LastTick
}

// Status returns a copy of the loop's status.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.status
	if s.LastPublishedAt != nil {
		t := *s.LastPublishedAt
		s.LastPublishedAt = &t
	}
	return s
}

// Tick runs one poll cycle. Errors, including panics, are logged and
// returned; the loop state always ends back at IDLE.
func (l *Loop) Tick(ctx context.Context) (outcome model.Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "advisor.cycle")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
		if err != nil {
			outcome = model.OutcomeFailed
			l.transition(model.CycleStateErrorLogged)
			l.logger.Error("cycle error", "error", err, "fatal", model.IsFatal(err))
		}
		l.finish(outcome, err)
		span.WithAttributes(map[string]string{"outcome": string(outcome)})
		tracing.EndSpan(span, err)
	}()

	l.transition(model.CycleStateSnapshotPending)
	snap, err := l.source.Read(ctx)
	if err != nil {
		return model.OutcomeFailed, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.IsEmpty() {
		l.logger.Debug("no data")
		return model.OutcomeNoData, nil
	}
	span.SetInt("tick", int64(snap.Tick))

	last := l.LastTick()
	if snap.Tick <= last {
		return model.OutcomeUnchanged, nil
	}
	l.transition(model.CycleStateNewTick)

	decisions := l.engine.Evaluate(snap)
	l.traceDecisions(ctx, snap.Tick, decisions)

	batch := heuristic.NewBatch(snap.Tick, decisions, l.config.ValidityTicks)
	cfg := l.engine.Config()
	if err := batch.Validate(cfg.MinPriority, cfg.MaxPriority); err != nil {
		return model.OutcomeFailed, fmt.Errorf("batch for tick %d: %w", snap.Tick, err)
	}
	if err := l.exchange.Publish(ctx, batch); err != nil {
		return model.OutcomeFailed, fmt.Errorf("publish tick %d: %w", snap.Tick, err)
	}

	now := time.Now().UTC()
	l.mu.Lock()
	l.status.LastTick = snap.Tick
	l.status.Published++
	l.status.LastPublishedAt = &now
	l.mu.Unlock()
	l.transition(model.CycleStatePublished)
	l.logger.Info("batch published", "tick", snap.Tick, "tasks", len(batch.Directives), "previous_tick", last)

	l.record(ctx, batch, now)
	span.SetInt("tasks", int64(len(batch.Directives)))
	return model.OutcomePublished, nil
}

func (l *Loop) record(ctx context.Context, b *model.Batch, publishedAt time.Time) {
	if l.history == nil {
		return
	}
	rec := &model.BatchRecord{
		ID:          "batch_" + uuid.New().String(),
		Batch:       *b,
		PublishedAt: publishedAt,
	}
	if err := l.history.RecordBatch(ctx, rec); err != nil {
		l.logger.Warn("record history", "tick", b.Tick, "error", err)
	}
}

func (l *Loop) traceDecisions(ctx context.Context, tick model.Tick, decisions []heuristic.Decision) {
	if !l.tracer.Enabled() {
		return
	}
	for _, d := range decisions {
		l.tracer.Trace(ctx, "task decision",
			"tick", tick,
			"task_id", d.TaskID,
			"current", d.Current,
			"delta", d.Delta,
			"new_priority", d.NewPriority,
			"reasons", d.ReasonString(),
		)
	}
}

// transition moves the state machine. An edge outside
// model.ValidCycleTransitions is a bug and is logged, but still applied so the
// loop can recover on the next cycle.
func (l *Loop) transition(next model.CycleState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.status.State.CanTransitionTo(next) {
		l.logger.Warn("unexpected state transition", "from", l.status.State, "to", next)
	}
	l.status.State = next
}

func (l *Loop) finish(outcome model.Outcome, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Cycles++
	l.status.LastOutcome = outcome
	if err != nil {
		l.status.Failures++
		l.status.LastError = err.Error()
	}
	l.status.State = model.CycleStateIdle
}
