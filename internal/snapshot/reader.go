package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/viant/afs"

	"github.com/me/prioadvisor/pkg/model"
)

// Reader loads snapshots from the scheduler's metrics table. The source is
// any afs URL; a bare path is a local file.
type Reader struct {
	fs     afs.Service
	url    string
	opts   Options
	logger *slog.Logger

	lastDropped   int
	missingWarned string
}

// Option configures optional Reader settings.
type Option func(*Reader)

// WithFileSystem replaces the default afs service.
func WithFileSystem(fs afs.Service) Option {
	return func(r *Reader) {
		r.fs = fs
	}
}

// WithDefaultPriority sets the priority used when current_priority is unparseable.
func WithDefaultPriority(p int) Option {
	return func(r *Reader) {
		r.opts.DefaultPriority = p
	}
}

// NewReader creates a Reader for the metrics table at url.
func NewReader(url string, logger *slog.Logger, opts ...Option) *Reader {
	r := &Reader{
		fs:     afs.New(),
		url:    url,
		logger: logger.With("component", "snapshot"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL returns the metrics source location.
func (r *Reader) URL() string {
	return r.url
}

// Read returns the snapshot for the highest valid tick. It returns nil, nil
// when the source is absent, empty, or holds no row with a valid tick.
// Any failure is a model.TransientError; the caller retries next cycle.
func (r *Reader) Read(ctx context.Context) (*model.Snapshot, error) {
	data, err := r.load(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	snap, stats, err := Parse(bytes.NewReader(data), r.opts)
	if err != nil {
		return nil, model.NewTransientError("parse metrics "+r.url, err)
	}
	r.logStats(stats)
	return snap, nil
}

// ReadHistory returns one snapshot per tick in ascending order.
func (r *Reader) ReadHistory(ctx context.Context) ([]model.Snapshot, error) {
	data, err := r.load(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	snaps, stats, err := ParseHistory(bytes.NewReader(data), r.opts)
	if err != nil {
		return nil, model.NewTransientError("parse metrics "+r.url, err)
	}
	r.logStats(stats)
	return snaps, nil
}

func (r *Reader) load(ctx context.Context) ([]byte, error) {
	exists, err := r.fs.Exists(ctx, r.url)
	if err != nil {
		return nil, model.NewTransientError("stat metrics "+r.url, err)
	}
	if !exists {
		r.logger.Debug("metrics source absent", "url", r.url)
		return nil, nil
	}
	data, err := r.fs.DownloadWithURL(ctx, r.url)
	if err != nil {
		return nil, model.NewTransientError("read metrics "+r.url, fmt.Errorf("download: %w", err))
	}
	return data, nil
}

// logStats warns once per change in the skipped-row counts; the source is
// re-read every cycle and the same bad rows would otherwise repeat.
func (r *Reader) logStats(s Stats) {
	if s.MissingColumn != r.missingWarned {
		r.missingWarned = s.MissingColumn
		if s.MissingColumn != "" {
			r.logger.Warn("metrics header lacks key column, no rows usable", "url", r.url, "column", s.MissingColumn)
		}
	}
	if s.MissingColumn != "" {
		r.lastDropped = s.SkippedTick + s.SkippedTaskID + s.MalformedRows
		return
	}
	if s.SkippedTick+s.SkippedTaskID+s.MalformedRows+s.Defaulted == 0 && !s.PartialTrailer {
		return
	}
	level := slog.LevelDebug
	dropped := s.SkippedTick + s.SkippedTaskID + s.MalformedRows
	if dropped > 0 && dropped != r.lastDropped {
		level = slog.LevelWarn
	}
	r.lastDropped = dropped
	r.logger.Log(context.Background(), level, "metrics rows set aside",
		"rows", s.Rows,
		"skipped_tick", s.SkippedTick,
		"skipped_task_id", s.SkippedTaskID,
		"malformed", s.MalformedRows,
		"defaulted", s.Defaulted,
		"partial_trailer", s.PartialTrailer,
	)
}
