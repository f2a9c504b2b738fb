package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/generation"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

const (
	upsertRunQuery = `
		INSERT INTO generation_runs (id, cancelled, word_count, succeeded, failed, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			cancelled = EXCLUDED.cancelled,
			word_count = EXCLUDED.word_count,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			finished_at = EXCLUDED.finished_at
	`
	deleteRunEntriesQuery = `DELETE FROM generation_run_entries WHERE run_id = $1`
	insertRunEntryQuery   = `
		INSERT INTO generation_run_entries (run_id, position, word, status, message, pattern_id, entry, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	listRunsQuery = `
		SELECT id::text AS id, cancelled, word_count, succeeded, failed, created_at, finished_at
		FROM generation_runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	getRunQuery = `
		SELECT id::text AS id, cancelled, word_count, succeeded, failed, created_at, finished_at
		FROM generation_runs
		WHERE id = $1
	`
	getRunEntriesQuery = `SELECT entry FROM generation_run_entries WHERE run_id = $1 ORDER BY position`
)

// RunRecord - строка архива без записей по словам.
type RunRecord struct {
	ID         string     `db:"id"`
	Cancelled  bool       `db:"cancelled"`
	WordCount  int        `db:"word_count"`
	Succeeded  int        `db:"succeeded"`
	Failed     int        `db:"failed"`
	CreatedAt  time.Time  `db:"created_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// PgRunArchive хранит завершенные пакетные запуски Voice Lab в PostgreSQL.
type PgRunArchive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgRunArchive(pool *pgxpool.Pool, logger *zap.Logger) *PgRunArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgRunArchive{pool: pool, logger: logger.Named("PgRunArchive")}
}

// SaveRun перезаписывает запуск и все его записи одной транзакцией.
func (r *PgRunArchive) SaveRun(ctx context.Context, run generation.Snapshot) error {
	log := r.logger.With(zap.String("run_id", run.ID))
	counts := run.Counts()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertRunQuery,
		run.ID,
		run.Cancelled,
		len(run.Entries),
		counts[generation.StatusSuccess],
		counts[generation.StatusError],
		run.CreatedAt,
		nullTime(run.FinishedAt),
	); err != nil {
		log.Error("Failed to save run", zap.Error(err))
		return fmt.Errorf("error saving run %s: %w", run.ID, err)
	}

	if _, err := tx.Exec(ctx, deleteRunEntriesQuery, run.ID); err != nil {
		return fmt.Errorf("error clearing entries of run %s: %w", run.ID, err)
	}

	batch := &pgx.Batch{}
	for i, e := range run.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("error encoding entry %q: %w", e.Word, err)
		}
		batch.Queue(insertRunEntryQuery, run.ID, i, e.Word, string(e.Status), e.Message, e.PatternID,
			data, nullTime(e.StartedAt), nullTime(e.FinishedAt))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		log.Error("Failed to save run entries", zap.Error(err))
		return fmt.Errorf("error saving entries of run %s: %w", run.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	log.Debug("Run archived", zap.Int("entries", len(run.Entries)))
	return nil
}

// ListRuns возвращает последние запуски, новые первыми.
func (r *PgRunArchive) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunRecord
	if err := pgxscan.Select(ctx, r.pool, &runs, listRunsQuery, limit); err != nil {
		r.logger.Error("Error listing runs", zap.Error(err))
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []RunRecord{}
	}
	return runs, nil
}

// GetRun восстанавливает снимок запуска из архива.
func (r *PgRunArchive) GetRun(ctx context.Context, id string) (generation.Snapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return generation.Snapshot{}, models.ErrNotFound
	}
	var rec RunRecord
	if err := pgxscan.Get(ctx, r.pool, &rec, getRunQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return generation.Snapshot{}, models.ErrNotFound
		}
		return generation.Snapshot{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	var raw []struct {
		Entry []byte `db:"entry"`
	}
	if err := pgxscan.Select(ctx, r.pool, &raw, getRunEntriesQuery, id); err != nil {
		return generation.Snapshot{}, fmt.Errorf("failed to get entries of run %s: %w", id, err)
	}

	snap := generation.Snapshot{
		ID:        rec.ID,
		Cancelled: rec.Cancelled,
		CreatedAt: rec.CreatedAt,
		Entries:   make([]generation.LogEntry, 0, len(raw)),
	}
	if rec.FinishedAt != nil {
		snap.FinishedAt = *rec.FinishedAt
	}
	for _, row := range raw {
		var e generation.LogEntry
		if err := json.Unmarshal(row.Entry, &e); err != nil {
			r.logger.Warn("Skipping corrupted run entry", zap.String("run_id", id), zap.Error(err))
			continue
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ generation.RunArchive = (*PgRunArchive)(nil)
