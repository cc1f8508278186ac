package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses recorded in feature_runs.
const (
	RunStatusOK      = "ok"
	RunStatusSkipped = "skipped"
	RunStatusFailed  = "failed"
)

// FeatureRun is one chunk pass of the feature pipeline. All chunks of a
// single pipeline invocation share a RunID.
type FeatureRun struct {
	RunID      string
	ChunkStart time.Time
	ChunkEnd   time.Time
	RowCount   int64
	Status     string
	Error      *string
	CreatedAt  time.Time
}

// NewRunID returns a fresh pipeline run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// RecordFeatureRun appends one chunk-pass record to feature_runs.
func (db *DB) RecordFeatureRun(ctx context.Context, run FeatureRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO feature_runs (run_id, chunk_start, chunk_end, row_count, status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, unixSeconds(run.ChunkStart), unixSeconds(run.ChunkEnd),
		run.RowCount, run.Status, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record feature run: %w", err)
	}
	return nil
}

// FeatureRuns returns the chunk records of one pipeline run, oldest first.
func (db *DB) FeatureRuns(ctx context.Context, runID string) ([]FeatureRun, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, chunk_start, chunk_end, row_count, status, error, created_at
		FROM feature_runs
		WHERE run_id = ?
		ORDER BY chunk_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature runs: %w", err)
	}
	defer rows.Close()

	var out []FeatureRun
	for rows.Next() {
		var r FeatureRun
		var start, end, created float64
		if err := rows.Scan(&r.RunID, &start, &end, &r.RowCount, &r.Status, &r.Error, &created); err != nil {
			return nil, err
		}
		r.ChunkStart = fromUnixSeconds(start)
		r.ChunkEnd = fromUnixSeconds(end)
		r.CreatedAt = fromUnixSeconds(created)
		out = append(out, r)
	}
	return out, rows.Err()
}
