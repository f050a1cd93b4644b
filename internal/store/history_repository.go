// Package store persists strategy histories in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/sigapi/internal/timeseries"
)

// ErrEmptyName is returned when a series is saved without a strategy name
var ErrEmptyName = errors.New("strategy name is empty")

const schema = `
	CREATE TABLE IF NOT EXISTS strategy_history (
		name       TEXT        NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		value      DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (name, ts)
	)
`

// HistoryRepository stores one row per (strategy, timestamp)
// ⭐ SSOT: 전략 히스토리 저장소는 여기서만
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Migrate creates the history table when missing
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create strategy_history: %w", err)
	}
	return nil
}

// Save upserts every point of series under name. Missing values are stored as NULL.
func (r *HistoryRepository) Save(ctx context.Context, name string, series timeseries.Series) (int, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	if len(series) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO strategy_history (name, ts, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name, ts) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range series {
		batch.Queue(query, name, p.Time.UTC(), p.Value)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range series {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("upsert %s at %s: %w", name, series[i].Time.Format(time.DateOnly), err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(series), nil
}

// Load returns the stored series of name between from and to (inclusive), oldest first.
// A zero to means no upper bound.
func (r *HistoryRepository) Load(ctx context.Context, name string, from, to time.Time) (timeseries.Series, error) {
	query := `
		SELECT ts, value
		FROM strategy_history
		WHERE name = $1 AND ts >= $2 AND ($3::timestamptz IS NULL OR ts <= $3)
		ORDER BY ts ASC
	`

	var upper *time.Time
	if !to.IsZero() {
		upper = &to
	}

	rows, err := r.pool.Query(ctx, query, name, from, upper)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out timeseries.Series
	for rows.Next() {
		var p timeseries.Point
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, err
		}
		p.Time = p.Time.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Names lists every stored strategy
func (r *HistoryRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT name FROM strategy_history ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the stored series of name
func (r *HistoryRepository) Delete(ctx context.Context, name string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM strategy_history WHERE name = $1`, name)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
