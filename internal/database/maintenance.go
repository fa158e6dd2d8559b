package database

import (
	"context"
	"fmt"
	"time"
)

// PurgeOlderThan deletes rows older than the given retention period.
// Table and column names are hardcoded by callers (not user input).
func (db *DB) PurgeOlderThan(ctx context.Context, table, timeColumn string, retention time.Duration) (int64, error) {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE %s < now() - $1::interval`,
		table, timeColumn,
	)
	tag, err := db.Pool.Exec(ctx, query, retention.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeFailedScoreAttempts deletes failed attempts older than the
// retention period and returns the audio keys of any clips they still
// referenced, so the caller can delete them from the clip store.
func (db *DB) PurgeFailedScoreAttempts(ctx context.Context, retention time.Duration) ([]string, int64, error) {
	rows, err := db.Pool.Query(ctx, `
		DELETE FROM score_attempts
		WHERE status = 'failed' AND created_at < now() - $1::interval
		RETURNING audio_key
	`, retention.String())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var keys []string
	var deleted int64
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return keys, deleted, err
		}
		deleted++
		if key != nil && *key != "" {
			keys = append(keys, *key)
		}
	}
	return keys, deleted, rows.Err()
}

// OrphanCounts reports rows whose parent vanished. Foreign keys cascade
// on delete so these should stay zero; dbcheck surfaces drift.
type OrphanCounts struct {
	Windows  int64
	Analyses int64
}

// CountOrphans counts windows without a transcript and analyses without
// a window.
func (db *DB) CountOrphans(ctx context.Context) (OrphanCounts, error) {
	var c OrphanCounts
	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM windows w
			 WHERE NOT EXISTS (SELECT 1 FROM transcripts t WHERE t.id = w.transcript_id)),
			(SELECT count(*) FROM analyses a
			 WHERE NOT EXISTS (SELECT 1 FROM windows w WHERE w.id = a.window_id))
	`).Scan(&c.Windows, &c.Analyses)
	return c, err
}

// DeleteOrphans removes windows without a transcript and analyses
// without a window. Returns rows deleted per table.
func (db *DB) DeleteOrphans(ctx context.Context) (OrphanCounts, error) {
	var c OrphanCounts
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM analyses a
		WHERE NOT EXISTS (SELECT 1 FROM windows w WHERE w.id = a.window_id)
	`)
	if err != nil {
		return c, err
	}
	c.Analyses = tag.RowsAffected()

	tag, err = db.Pool.Exec(ctx, `
		DELETE FROM windows w
		WHERE NOT EXISTS (SELECT 1 FROM transcripts t WHERE t.id = w.transcript_id)
	`)
	if err != nil {
		return c, err
	}
	c.Windows = tag.RowsAffected()
	return c, nil
}

// RequeueFailedWindows resets all failed windows to pending and zeroes
// the failed counters they contributed to. Returns reset row count.
func (db *DB) RequeueFailedWindows(ctx context.Context) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE windows SET
			analysis_status = 'pending',
			error_code = NULL,
			updated_at = now()
		WHERE analysis_status = 'failed'
	`)
	if err != nil {
		return 0, fmt.Errorf("reset windows: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE transcripts t SET failed_count = 0
		WHERE failed_count > 0
	`); err != nil {
		return 0, fmt.Errorf("reset counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return tag.RowsAffected(), nil
}
