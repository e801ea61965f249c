package advisor

import (
	"context"
	"time"

	"github.com/me/prioadvisor/pkg/model"
)

// Advisor turns each new scheduler tick into a published directive batch.
type Advisor interface {
	// Start begins the poll loop. Blocks until ctx is cancelled, Stop is
	// called, or a cycle fails with a model.FatalError.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop.
	Stop() error

	// Tick runs a single poll cycle.
	Tick(ctx context.Context) (model.Outcome, error)
}

// SnapshotSource yields the latest complete snapshot, or nil when the
// metrics table holds no usable rows.
type SnapshotSource interface {
	Read(ctx context.Context) (*model.Snapshot, error)
}

// HistoryRecorder keeps published batches. Recording is best effort.
type HistoryRecorder interface {
	RecordBatch(ctx context.Context, rec *model.BatchRecord) error
}

// Status is a point-in-time view of the loop for the status surface.
type Status struct {
	State           model.CycleState `json:"state"`
	LastTick        model.Tick       `json:"last_tick"`
	LastOutcome     model.Outcome    `json:"last_outcome,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	Cycles          int64            `json:"cycles"`
	Published       int64            `json:"published"`
	Failures        int64            `json:"failures"`
	LastPublishedAt *time.Time       `json:"last_published_at,omitempty"`
}
