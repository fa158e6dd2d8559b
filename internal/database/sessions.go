package database

import (
	"context"
	"time"
)

// CaptureSessionRow is one live-capture session's bookkeeping record.
type CaptureSessionRow struct {
	ID           int64      `json:"id"`
	Room         string     `json:"room"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LineCount    int        `json:"line_count"`
	TranscriptID *int64     `json:"transcript_id,omitempty"`
}

// StartCaptureSession opens a capture session row for a room.
func (db *DB) StartCaptureSession(ctx context.Context, room string, startedAt time.Time) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO capture_sessions (room, started_at)
		VALUES ($1, $2)
		RETURNING id
	`, room, startedAt).Scan(&id)
	return id, err
}

// FinishCaptureSession closes a capture session. transcriptID may be nil
// when the session produced no windows.
func (db *DB) FinishCaptureSession(ctx context.Context, id int64, endedAt time.Time, lineCount int, transcriptID *int64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE capture_sessions SET
			ended_at = $2,
			line_count = $3,
			transcript_id = $4
		WHERE id = $1
	`, id, endedAt, lineCount, transcriptID)
	return err
}

// ListCaptureSessions returns recent sessions for a room (all rooms when
// room is empty), newest first.
func (db *DB) ListCaptureSessions(ctx context.Context, room string, limit int) ([]CaptureSessionRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, room, started_at, ended_at, line_count, transcript_id
		FROM capture_sessions
		WHERE ($1::text IS NULL OR room = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, pqString(room), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CaptureSessionRow
	for rows.Next() {
		var s CaptureSessionRow
		if err := rows.Scan(&s.ID, &s.Room, &s.StartedAt, &s.EndedAt, &s.LineCount, &s.TranscriptID); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if result == nil {
		result = []CaptureSessionRow{}
	}
	return result, rows.Err()
}
