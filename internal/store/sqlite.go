package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/prioadvisor/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) RecordBatch(ctx context.Context, rec *model.BatchRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "batches", "id", rec.ID, "tick", rec.Batch.Tick)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM directives WHERE batch_id IN (SELECT id FROM batches WHERE tick = ?)`,
		rec.Batch.Tick); err != nil {
		return fmt.Errorf("clear directives: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE tick = ?`, rec.Batch.Tick); err != nil {
		return fmt.Errorf("clear batch: %w", err)
	}

	var validUntil *int64
	if rec.Batch.ValidUntil != nil {
		v := int64(*rec.Batch.ValidUntil)
		validUntil = &v
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (id, tick, valid_until, task_count, published_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, int64(rec.Batch.Tick), validUntil, len(rec.Batch.Directives),
		rec.PublishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO directives (batch_id, task_id, new_priority) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare directive insert: %w", err)
	}
	defer stmt.Close()
	for _, d := range rec.Batch.Directives {
		if _, err := stmt.ExecContext(ctx, rec.ID, int64(d.TaskID), d.NewPriority); err != nil {
			return fmt.Errorf("insert directive %d: %w", d.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetBatch(ctx context.Context, tick model.Tick) (*model.BatchRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "batches", "tick", tick)
	return s.getOne(ctx,
		`SELECT id, tick, valid_until, published_at FROM batches WHERE tick = ?`, int64(tick))
}

func (s *SQLiteStore) LatestBatch(ctx context.Context) (*model.BatchRecord, error) {
	s.logger.Debug("sql", "op", "select_latest", "table", "batches")
	return s.getOne(ctx,
		`SELECT id, tick, valid_until, published_at FROM batches ORDER BY tick DESC LIMIT 1`)
}

func (s *SQLiteStore) ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tick, valid_until, published_at FROM batches ORDER BY tick DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	for _, rec := range recs {
		if err := s.loadDirectives(ctx, rec); err != nil {
			return nil, 0, err
		}
	}
	return recs, total, nil
}

func (s *SQLiteStore) BatchesInRange(ctx context.Context, from, to model.Tick) ([]model.Batch, error) {
	s.logger.Debug("sql", "op", "select_range", "table", "batches", "from", from, "to", to)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tick, valid_until, published_at FROM batches WHERE tick >= ? AND tick <= ? ORDER BY tick`,
		int64(from), int64(to),
	)
	if err != nil {
		return nil, err
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	batches := make([]model.Batch, 0, len(recs))
	for _, rec := range recs {
		if err := s.loadDirectives(ctx, rec); err != nil {
			return nil, err
		}
		batches = append(batches, rec.Batch)
	}
	return batches, nil
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, args ...any) (*model.BatchRecord, error) {
	var rec model.BatchRecord
	var tick int64
	var validUntil *int64
	var publishedAt string

	err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &tick, &validUntil, &publishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fillRecord(&rec, tick, validUntil, publishedAt)

	if err := s.loadDirectives(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanRecords drains rows before any directive query runs, so a single
// connection is never asked for two result sets at once.
func scanRecords(rows *sql.Rows) ([]*model.BatchRecord, error) {
	defer rows.Close()

	var recs []*model.BatchRecord
	for rows.Next() {
		var rec model.BatchRecord
		var tick int64
		var validUntil *int64
		var publishedAt string
		if err := rows.Scan(&rec.ID, &tick, &validUntil, &publishedAt); err != nil {
			return nil, err
		}
		fillRecord(&rec, tick, validUntil, publishedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func fillRecord(rec *model.BatchRecord, tick int64, validUntil *int64, publishedAt string) {
	rec.Batch.Tick = model.Tick(tick)
	if validUntil != nil {
		vu := model.Tick(*validUntil)
		rec.Batch.ValidUntil = &vu
	}
	rec.PublishedAt, _ = time.Parse(time.RFC3339Nano, publishedAt)
}

func (s *SQLiteStore) loadDirectives(ctx context.Context, rec *model.BatchRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, new_priority FROM directives WHERE batch_id = ? ORDER BY task_id`, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	rec.Batch.Directives = nil
	for rows.Next() {
		var taskID int64
		var prio int
		if err := rows.Scan(&taskID, &prio); err != nil {
			return err
		}
		rec.Batch.Directives = append(rec.Batch.Directives, model.Directive{
			Tick:        rec.Batch.Tick,
			TaskID:      model.TaskID(taskID),
			NewPriority: prio,
			ValidUntil:  rec.Batch.ValidUntil,
		})
	}
	return rows.Err()
}
