package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisRow is the input for saving one window's analysis.
type AnalysisRow struct {
	WindowID     int64
	TranscriptID int64
	Sentences    json.RawMessage
	Vocabulary   json.RawMessage
	Provider     string
	Model        string
	DurationMs   int
}

// AnalysisAPI is the analysis representation for API responses.
type AnalysisAPI struct {
	ID           int64           `json:"id"`
	WindowID     int64           `json:"window_id"`
	TranscriptID int64           `json:"transcript_id"`
	Sentences    json.RawMessage `json:"sentences"`
	Vocabulary   json.RawMessage `json:"vocabulary"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	DurationMs   int             `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SaveAnalysis upserts an analysis in a transaction: the analysis row, the
// window status flip to "analyzed", and the transcript counter bump all
// land together. Re-analyzing a window replaces its previous result.
func (db *DB) SaveAnalysis(ctx context.Context, row *AnalysisRow) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO analyses (window_id, transcript_id, sentences, vocabulary, provider, model, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (window_id) DO UPDATE SET
			sentences = EXCLUDED.sentences,
			vocabulary = EXCLUDED.vocabulary,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			duration_ms = EXCLUDED.duration_ms,
			created_at = now()
		RETURNING id
	`,
		row.WindowID, row.TranscriptID, row.Sentences, row.Vocabulary,
		row.Provider, row.Model, row.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert analysis: %w", err)
	}

	var prevStatus string
	err = tx.QueryRow(ctx, `
		UPDATE windows w SET
			analysis_status = 'analyzed',
			error_code = NULL,
			updated_at = now()
		FROM (SELECT id, analysis_status FROM windows WHERE id = $1 FOR UPDATE) prev
		WHERE w.id = prev.id
		RETURNING prev.analysis_status
	`, row.WindowID).Scan(&prevStatus)
	if err != nil {
		return 0, fmt.Errorf("mark window analyzed: %w", err)
	}

	if prevStatus != "analyzed" {
		delta := `analyzed_count = analyzed_count + 1`
		if prevStatus == "failed" {
			delta = `analyzed_count = analyzed_count + 1, failed_count = failed_count - 1`
		}
		if _, err := tx.Exec(ctx,
			`UPDATE transcripts SET `+delta+` WHERE id = $1`, row.TranscriptID,
		); err != nil {
			return 0, fmt.Errorf("update transcript counters: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// GetAnalysisByWindow returns the analysis for a window, or pgx.ErrNoRows.
func (db *DB) GetAnalysisByWindow(ctx context.Context, windowID int64) (*AnalysisAPI, error) {
	var a AnalysisAPI
	err := db.Pool.QueryRow(ctx, `
		SELECT id, window_id, transcript_id, sentences, vocabulary,
			provider, model, duration_ms, created_at
		FROM analyses
		WHERE window_id = $1
	`, windowID).Scan(
		&a.ID, &a.WindowID, &a.TranscriptID, &a.Sentences, &a.Vocabulary,
		&a.Provider, &a.Model, &a.DurationMs, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// WindowResult is one window joined with its analysis (when analyzed) or
// its error class (when failed). Partial failure stays visible per-window.
type WindowResult struct {
	WindowAPI
	Analysis *AnalysisAPI `json:"analysis,omitempty"`
}

// ListResults returns a transcript's windows joined with their analyses,
// in index order.
func (db *DB) ListResults(ctx context.Context, transcriptID int64) ([]WindowResult, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT w.id, w.transcript_id, w.idx, w.from_clock, w.to_clock, w.text,
			w.analysis_status, w.error_code, w.updated_at,
			a.id, a.sentences, a.vocabulary, a.provider, a.model, a.duration_ms, a.created_at
		FROM windows w
		LEFT JOIN analyses a ON a.window_id = w.id
		WHERE w.transcript_id = $1
		ORDER BY w.idx
	`, transcriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WindowResult
	for rows.Next() {
		var r WindowResult
		var aID *int64
		var sentences, vocabulary json.RawMessage
		var provider, model *string
		var durationMs *int
		var createdAt *time.Time
		if err := rows.Scan(
			&r.ID, &r.TranscriptID, &r.Index, &r.FromClock, &r.ToClock, &r.Text,
			&r.AnalysisStatus, &r.ErrorCode, &r.UpdatedAt,
			&aID, &sentences, &vocabulary, &provider, &model, &durationMs, &createdAt,
		); err != nil {
			return nil, err
		}
		if aID != nil {
			r.Analysis = &AnalysisAPI{
				ID:           *aID,
				WindowID:     r.ID,
				TranscriptID: r.TranscriptID,
				Sentences:    sentences,
				Vocabulary:   vocabulary,
				Provider:     *provider,
				Model:        *model,
				DurationMs:   *durationMs,
				CreatedAt:    *createdAt,
			}
		}
		result = append(result, r)
	}
	if result == nil {
		result = []WindowResult{}
	}
	return result, rows.Err()
}
