package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ScoreAttemptRow is a pronunciation attempt as stored. It doubles as the
// API representation since the shapes match.
type ScoreAttemptRow struct {
	ID           int64           `json:"id"`
	ExpectedText string          `json:"expected_text"`
	Accent       string          `json:"accent"`
	Mime         string          `json:"mime"`
	DurationMS   int64           `json:"duration_ms"`
	AudioBytes   int             `json:"audio_bytes"`
	AudioKey     string          `json:"audio_key,omitempty"`
	Status       string          `json:"status"` // "scored" or "failed"
	ErrorCode    string          `json:"error_code,omitempty"`
	Overall      int             `json:"overall"`
	Label        string          `json:"label,omitempty"`
	Accuracy     int             `json:"accuracy"`
	Fluency      int             `json:"fluency"`
	Completeness int             `json:"completeness"`
	Words        json.RawMessage `json:"words,omitempty"`
	Room         string          `json:"room,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ScoreAttemptFilter specifies filters for listing score attempts.
type ScoreAttemptFilter struct {
	Accent     string
	Room       string
	Status     string
	MinOverall *int
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// SaveScoreAttempt inserts a score attempt (scored or failed) and returns
// its ID.
func (db *DB) SaveScoreAttempt(ctx context.Context, row *ScoreAttemptRow) (int64, error) {
	words := row.Words
	if len(words) == 0 {
		words = json.RawMessage("[]")
	}
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO score_attempts (
			expected_text, accent, mime, duration_ms, audio_bytes, audio_key,
			status, error_code, overall, label, accuracy, fluency, completeness,
			words, room
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`,
		row.ExpectedText, row.Accent, row.Mime, row.DurationMS, row.AudioBytes,
		pqString(row.AudioKey), row.Status, pqString(row.ErrorCode),
		row.Overall, row.Label, row.Accuracy, row.Fluency, row.Completeness,
		words, row.Room,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetScoreAttempt returns one attempt by ID, or pgx.ErrNoRows.
func (db *DB) GetScoreAttempt(ctx context.Context, id int64) (*ScoreAttemptRow, error) {
	var r ScoreAttemptRow
	var audioKey, errorCode *string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, expected_text, accent, mime, duration_ms, audio_bytes, audio_key,
			status, error_code, overall, label, accuracy, fluency, completeness,
			words, room, created_at
		FROM score_attempts
		WHERE id = $1
	`, id).Scan(
		&r.ID, &r.ExpectedText, &r.Accent, &r.Mime, &r.DurationMS, &r.AudioBytes, &audioKey,
		&r.Status, &errorCode, &r.Overall, &r.Label, &r.Accuracy, &r.Fluency, &r.Completeness,
		&r.Words, &r.Room, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if audioKey != nil {
		r.AudioKey = *audioKey
	}
	if errorCode != nil {
		r.ErrorCode = *errorCode
	}
	return &r, nil
}

// ListScoreAttempts returns attempts matching the filter, newest first,
// plus the total count before pagination.
func (db *DB) ListScoreAttempts(ctx context.Context, filter ScoreAttemptFilter) ([]ScoreAttemptRow, int, error) {
	qb := newQueryBuilder()
	if filter.Accent != "" {
		qb.Add("accent = %s", filter.Accent)
	}
	if filter.Room != "" {
		qb.Add("room = %s", filter.Room)
	}
	if filter.Status != "" {
		qb.Add("status = %s", filter.Status)
	}
	if filter.MinOverall != nil {
		qb.Add("overall >= %s", *filter.MinOverall)
		qb.AddRaw("status = 'scored'")
	}
	if filter.StartTime != nil {
		qb.Add("created_at >= %s", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.Add("created_at < %s", *filter.EndTime)
	}

	whereClause := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx,
		"SELECT count(*) FROM score_attempts"+whereClause, qb.Args()...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, expected_text, accent, mime, duration_ms, audio_bytes, audio_key,
			status, error_code, overall, label, accuracy, fluency, completeness,
			words, room, created_at
		FROM score_attempts
		%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, whereClause, limit, filter.Offset)

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []ScoreAttemptRow
	for rows.Next() {
		var r ScoreAttemptRow
		var audioKey, errorCode *string
		if err := rows.Scan(
			&r.ID, &r.ExpectedText, &r.Accent, &r.Mime, &r.DurationMS, &r.AudioBytes, &audioKey,
			&r.Status, &errorCode, &r.Overall, &r.Label, &r.Accuracy, &r.Fluency, &r.Completeness,
			&r.Words, &r.Room, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		if audioKey != nil {
			r.AudioKey = *audioKey
		}
		if errorCode != nil {
			r.ErrorCode = *errorCode
		}
		result = append(result, r)
	}
	if result == nil {
		result = []ScoreAttemptRow{}
	}
	return result, total, rows.Err()
}
