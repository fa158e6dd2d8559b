package database

import (
	"context"
	"fmt"
	"time"
)

// WindowAPI is the window representation for API responses.
type WindowAPI struct {
	ID             int64     `json:"id"`
	TranscriptID   int64     `json:"transcript_id"`
	Index          int       `json:"index"`
	FromClock      string    `json:"from"`
	ToClock        string    `json:"to"`
	Text           string    `json:"text"`
	AnalysisStatus string    `json:"analysis_status"`
	ErrorCode      *string   `json:"error_code,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// GetWindow returns one window by ID, or pgx.ErrNoRows.
func (db *DB) GetWindow(ctx context.Context, id int64) (*WindowAPI, error) {
	var w WindowAPI
	err := db.Pool.QueryRow(ctx, `
		SELECT id, transcript_id, idx, from_clock, to_clock, text,
			analysis_status, error_code, updated_at
		FROM windows
		WHERE id = $1
	`, id).Scan(
		&w.ID, &w.TranscriptID, &w.Index, &w.FromClock, &w.ToClock, &w.Text,
		&w.AnalysisStatus, &w.ErrorCode, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWindows returns a transcript's windows in index order, optionally
// filtered by analysis status.
func (db *DB) ListWindows(ctx context.Context, transcriptID int64, status string) ([]WindowAPI, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, transcript_id, idx, from_clock, to_clock, text,
			analysis_status, error_code, updated_at
		FROM windows
		WHERE transcript_id = $1
		  AND ($2::text IS NULL OR analysis_status = $2)
		ORDER BY idx
	`, transcriptID, pqString(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WindowAPI
	for rows.Next() {
		var w WindowAPI
		if err := rows.Scan(
			&w.ID, &w.TranscriptID, &w.Index, &w.FromClock, &w.ToClock, &w.Text,
			&w.AnalysisStatus, &w.ErrorCode, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	if result == nil {
		result = []WindowAPI{}
	}
	return result, rows.Err()
}

// ListUnanalyzedWindows returns a transcript's pending and failed windows
// in index order, for (re-)enqueueing analysis.
func (db *DB) ListUnanalyzedWindows(ctx context.Context, transcriptID int64) ([]WindowAPI, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, transcript_id, idx, from_clock, to_clock, text,
			analysis_status, error_code, updated_at
		FROM windows
		WHERE transcript_id = $1 AND analysis_status <> 'analyzed'
		ORDER BY idx
	`, transcriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WindowAPI
	for rows.Next() {
		var w WindowAPI
		if err := rows.Scan(
			&w.ID, &w.TranscriptID, &w.Index, &w.FromClock, &w.ToClock, &w.Text,
			&w.AnalysisStatus, &w.ErrorCode, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// MarkWindowFailed records a failure class on a window and bumps the
// transcript's failed counter when the window was not already failed.
func (db *DB) MarkWindowFailed(ctx context.Context, windowID int64, errorCode string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var transcriptID int64
	var prevStatus string
	err = tx.QueryRow(ctx, `
		UPDATE windows w SET
			analysis_status = 'failed',
			error_code = $2,
			updated_at = now()
		FROM (SELECT id, transcript_id, analysis_status FROM windows WHERE id = $1 FOR UPDATE) prev
		WHERE w.id = prev.id
		RETURNING prev.transcript_id, prev.analysis_status
	`, windowID, errorCode).Scan(&transcriptID, &prevStatus)
	if err != nil {
		return fmt.Errorf("mark window failed: %w", err)
	}

	if prevStatus != "failed" {
		delta := `failed_count = failed_count + 1`
		if prevStatus == "analyzed" {
			delta = `failed_count = failed_count + 1, analyzed_count = analyzed_count - 1`
		}
		if _, err := tx.Exec(ctx,
			`UPDATE transcripts SET `+delta+` WHERE id = $1`, transcriptID,
		); err != nil {
			return fmt.Errorf("update transcript counters: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ResetWindowPending flips a window back to pending, clearing its error
// code and rolling back the transcript counters it contributed to.
func (db *DB) ResetWindowPending(ctx context.Context, windowID int64) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var transcriptID int64
	var prevStatus string
	err = tx.QueryRow(ctx, `
		UPDATE windows w SET
			analysis_status = 'pending',
			error_code = NULL,
			updated_at = now()
		FROM (SELECT id, transcript_id, analysis_status FROM windows WHERE id = $1 FOR UPDATE) prev
		WHERE w.id = prev.id
		RETURNING prev.transcript_id, prev.analysis_status
	`, windowID).Scan(&transcriptID, &prevStatus)
	if err != nil {
		return fmt.Errorf("reset window: %w", err)
	}

	switch prevStatus {
	case "failed":
		_, err = tx.Exec(ctx,
			`UPDATE transcripts SET failed_count = failed_count - 1 WHERE id = $1`, transcriptID)
	case "analyzed":
		_, err = tx.Exec(ctx,
			`UPDATE transcripts SET analyzed_count = analyzed_count - 1 WHERE id = $1`, transcriptID)
	}
	if err != nil {
		return fmt.Errorf("update transcript counters: %w", err)
	}

	return tx.Commit(ctx)
}

// WindowSearchHit is a full-text search result with transcript context.
type WindowSearchHit struct {
	WindowAPI
	Rank            float32   `json:"rank"`
	TranscriptTitle string    `json:"transcript_title"`
	TranscriptRoom  string    `json:"transcript_room,omitempty"`
	TranscriptTime  time.Time `json:"transcript_created_at"`
}

// SearchWindows performs full-text search over window text with transcript
// context, ranked by relevance.
func (db *DB) SearchWindows(ctx context.Context, query string, limit, offset int) ([]WindowSearchHit, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	err := db.Pool.QueryRow(ctx, `
		SELECT count(*)
		FROM windows w
		WHERE w.search_vector @@ plainto_tsquery('english', $1)
	`, query).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT w.id, w.transcript_id, w.idx, w.from_clock, w.to_clock, w.text,
			w.analysis_status, w.error_code, w.updated_at,
			ts_rank(w.search_vector, plainto_tsquery('english', $1)) AS rank,
			t.title, t.room, t.created_at
		FROM windows w
		JOIN transcripts t ON t.id = w.transcript_id
		WHERE w.search_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, w.transcript_id DESC, w.idx
		LIMIT $2 OFFSET $3
	`, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []WindowSearchHit
	for rows.Next() {
		var h WindowSearchHit
		if err := rows.Scan(
			&h.ID, &h.TranscriptID, &h.Index, &h.FromClock, &h.ToClock, &h.Text,
			&h.AnalysisStatus, &h.ErrorCode, &h.UpdatedAt,
			&h.Rank, &h.TranscriptTitle, &h.TranscriptRoom, &h.TranscriptTime,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, h)
	}
	if result == nil {
		result = []WindowSearchHit{}
	}
	return result, total, rows.Err()
}
