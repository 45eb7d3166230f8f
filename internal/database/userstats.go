package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var userStatsColumns = []string{
	"username", "recorded_at", "worker_count",
	"dsps1", "dsps5", "dsps60", "dsps1440",
	"best_diff", "best_ever", "last_useragent", "norm_useragent",
}

// UserStatsRecord is the periodic per-user snapshot persisted per the
// Stratifier's stats output: workers, rolling rates, best-ever difficulty
// and the most recently seen useragent (raw and normalized).
type UserStatsRecord struct {
	Username      string    `json:"username" db:"username"`
	WorkerCount   int       `json:"worker_count" db:"worker_count"`
	Dsps1         float64   `json:"dsps1" db:"dsps1"`
	Dsps5         float64   `json:"dsps5" db:"dsps5"`
	Dsps60        float64   `json:"dsps60" db:"dsps60"`
	Dsps1440      float64   `json:"dsps1440" db:"dsps1440"`
	BestDiff      float64   `json:"best_diff" db:"best_diff"`
	BestEver      float64   `json:"best_ever" db:"best_ever"`
	LastUseragent string    `json:"last_useragent" db:"last_useragent"`
	NormUseragent string    `json:"norm_useragent" db:"norm_useragent"`
	RecordedAt    time.Time `json:"recorded_at" db:"recorded_at"`
}

// UserStatsRepository persists periodic user stat snapshots.
type UserStatsRepository struct {
	db    *sqlx.DB
	batch *GenericBatchInserter
}

// NewUserStatsRepository wraps an established sqlx connection.
func NewUserStatsRepository(db *sqlx.DB) *UserStatsRepository {
	return &UserStatsRepository{
		db:    db,
		batch: NewGenericBatchInserter(sqlxExecer{db}, DefaultBatchInserterConfig()),
	}
}

// sqlxExecer adapts an *sqlx.DB to the execer interface GenericBatchInserter
// expects.
type sqlxExecer struct{ db *sqlx.DB }

func (e sqlxExecer) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return e.db.ExecContext(ctx, query, args...)
}

const createUserStatsTable = `
CREATE TABLE IF NOT EXISTS user_stats (
	username TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	worker_count INTEGER NOT NULL,
	dsps1 DOUBLE PRECISION NOT NULL,
	dsps5 DOUBLE PRECISION NOT NULL,
	dsps60 DOUBLE PRECISION NOT NULL,
	dsps1440 DOUBLE PRECISION NOT NULL,
	best_diff DOUBLE PRECISION NOT NULL,
	best_ever DOUBLE PRECISION NOT NULL,
	last_useragent TEXT NOT NULL,
	norm_useragent TEXT NOT NULL,
	PRIMARY KEY (username, recorded_at)
)`

// EnsureSchema creates the user_stats table if it does not already exist.
func (r *UserStatsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, createUserStatsTable)
	if err != nil {
		return fmt.Errorf("failed to create user_stats table: %w", err)
	}
	return nil
}

// Record inserts one snapshot row.
func (r *UserStatsRepository) Record(ctx context.Context, rec UserStatsRecord) error {
	const query = `
		INSERT INTO user_stats
			(username, recorded_at, worker_count, dsps1, dsps5, dsps60, dsps1440, best_diff, best_ever, last_useragent, norm_useragent)
		VALUES
			(:username, :recorded_at, :worker_count, :dsps1, :dsps5, :dsps60, :dsps1440, :best_diff, :best_ever, :last_useragent, :norm_useragent)
	`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to record user stats for %s: %w", rec.Username, err)
	}
	return nil
}

// RecordBatch inserts every snapshot in recs as one or more multi-row INSERT
// statements, for deployments where the per-tick user count makes one
// NamedExec per user too slow.
func (r *UserStatsRepository) RecordBatch(ctx context.Context, recs []UserStatsRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	values := make([][]interface{}, len(recs))
	for i, rec := range recs {
		values[i] = []interface{}{
			rec.Username, rec.RecordedAt, rec.WorkerCount,
			rec.Dsps1, rec.Dsps5, rec.Dsps60, rec.Dsps1440,
			rec.BestDiff, rec.BestEver, rec.LastUseragent, rec.NormUseragent,
		}
	}
	n, err := r.batch.InsertBatch(ctx, "user_stats", userStatsColumns, values)
	if err != nil {
		return n, fmt.Errorf("failed to record user stats batch: %w", err)
	}
	return n, nil
}

// Latest returns the most recent recorded snapshot for username, if any.
func (r *UserStatsRepository) Latest(ctx context.Context, username string) (*UserStatsRecord, error) {
	const query = `
		SELECT username, recorded_at, worker_count, dsps1, dsps5, dsps60, dsps1440, best_diff, best_ever, last_useragent, norm_useragent
		FROM user_stats
		WHERE username = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`
	var rec UserStatsRecord
	err := r.db.GetContext(ctx, &rec, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest user stats for %s: %w", username, err)
	}
	return &rec, nil
}
