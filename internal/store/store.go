package store

import (
	"context"

	"github.com/me/prioadvisor/pkg/model"
)

// Store defines the persistence layer for published directive batches.
type Store interface {
	// RecordBatch saves a published batch. Recording a tick that already
	// exists replaces the earlier record.
	RecordBatch(ctx context.Context, rec *model.BatchRecord) error
	GetBatch(ctx context.Context, tick model.Tick) (*model.BatchRecord, error)
	LatestBatch(ctx context.Context) (*model.BatchRecord, error)
	// ListBatches returns records newest tick first, plus the total count.
	ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRecord, int, error)
	// BatchesInRange returns batches with from <= tick <= to in tick order.
	BatchesInRange(ctx context.Context, from, to model.Tick) ([]model.Batch, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
