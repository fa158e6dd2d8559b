package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/classlens/cl-engine/internal/windowing"
)

// queryBuilder builds parameterized WHERE clauses for dynamic queries.
type queryBuilder struct {
	where  []string
	args   []any
	argIdx int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{argIdx: 1}
}

// Add appends a WHERE condition. The clause should contain %s which will be replaced with $N.
func (qb *queryBuilder) Add(clause string, val any) {
	parameterized := strings.Replace(clause, "%s", fmt.Sprintf("$%d", qb.argIdx), 1)
	qb.where = append(qb.where, parameterized)
	qb.args = append(qb.args, val)
	qb.argIdx++
}

// AddRaw appends a WHERE condition with no parameters.
func (qb *queryBuilder) AddRaw(clause string) {
	qb.where = append(qb.where, clause)
}

// WhereClause returns the full WHERE clause (including "WHERE") or empty string if no conditions.
func (qb *queryBuilder) WhereClause() string {
	if len(qb.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(qb.where, " AND ")
}

// Args returns all accumulated arguments.
func (qb *queryBuilder) Args() []any {
	return qb.args
}

// TranscriptRow is the input for inserting a transcript.
type TranscriptRow struct {
	Title         string
	Objectives    string
	Source        string // "upload", "watcher", "mqtt"
	Room          string
	WindowMinutes int
	RawChars      int
}

// TranscriptAPI is the transcript representation for API responses.
type TranscriptAPI struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Objectives    string    `json:"objectives,omitempty"`
	Source        string    `json:"source"`
	Room          string    `json:"room,omitempty"`
	WindowMinutes int       `json:"window_minutes"`
	RawChars      int       `json:"raw_chars"`
	WindowCount   int       `json:"window_count"`
	AnalyzedCount int       `json:"analyzed_count"`
	FailedCount   int       `json:"failed_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// TranscriptFilter specifies filters for listing transcripts.
type TranscriptFilter struct {
	Room      string
	Source    string
	Search    string // full-text over window text
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
	Sort      string
	SortDesc  bool
}

// TranscriptSortColumns is the sort allowlist for transcript listings.
var TranscriptSortColumns = map[string]string{
	"created_at":   "created_at",
	"title":        "title",
	"window_count": "window_count",
	"raw_chars":    "raw_chars",
}

// InsertTranscriptWithWindows inserts a transcript and its windows in one
// transaction and returns the stored transcript plus the window IDs in
// window order. A transcript with zero windows is valid and inserts no
// window rows.
func (db *DB) InsertTranscriptWithWindows(ctx context.Context, row *TranscriptRow, windows []windowing.Window) (*TranscriptAPI, []int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t := &TranscriptAPI{
		Title:         row.Title,
		Objectives:    row.Objectives,
		Source:        row.Source,
		Room:          row.Room,
		WindowMinutes: row.WindowMinutes,
		RawChars:      row.RawChars,
		WindowCount:   len(windows),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO transcripts (title, objectives, source, room, window_minutes, raw_chars, window_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`,
		row.Title, row.Objectives, row.Source, row.Room,
		row.WindowMinutes, row.RawChars, len(windows),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert transcript: %w", err)
	}

	windowIDs := make([]int64, 0, len(windows))
	for _, w := range windows {
		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO windows (transcript_id, idx, from_clock, to_clock, text)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, t.ID, w.Index, w.From, w.To, w.Text).Scan(&id)
		if err != nil {
			return nil, nil, fmt.Errorf("insert window %d: %w", w.Index, err)
		}
		windowIDs = append(windowIDs, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}
	return t, windowIDs, nil
}

// GetTranscript returns one transcript by ID, or pgx.ErrNoRows.
func (db *DB) GetTranscript(ctx context.Context, id int64) (*TranscriptAPI, error) {
	var t TranscriptAPI
	err := db.Pool.QueryRow(ctx, `
		SELECT id, title, objectives, source, room, window_minutes,
			raw_chars, window_count, analyzed_count, failed_count, created_at
		FROM transcripts
		WHERE id = $1
	`, id).Scan(
		&t.ID, &t.Title, &t.Objectives, &t.Source, &t.Room, &t.WindowMinutes,
		&t.RawChars, &t.WindowCount, &t.AnalyzedCount, &t.FailedCount, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTranscripts returns transcripts matching the filter plus the total
// count before pagination.
func (db *DB) ListTranscripts(ctx context.Context, filter TranscriptFilter) ([]TranscriptAPI, int, error) {
	qb := newQueryBuilder()
	if filter.Room != "" {
		qb.Add("t.room = %s", filter.Room)
	}
	if filter.Source != "" {
		qb.Add("t.source = %s", filter.Source)
	}
	if filter.StartTime != nil {
		qb.Add("t.created_at >= %s", *filter.StartTime)
	}
	if filter.EndTime != nil {
		qb.Add("t.created_at < %s", *filter.EndTime)
	}
	if filter.Search != "" {
		qb.Add(`EXISTS (
			SELECT 1 FROM windows w
			WHERE w.transcript_id = t.id
			  AND w.search_vector @@ plainto_tsquery('english', %s)
		)`, filter.Search)
	}

	whereClause := qb.WhereClause()

	var total int
	countQuery := "SELECT count(*) FROM transcripts t" + whereClause
	if err := db.Pool.QueryRow(ctx, countQuery, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sortCol, ok := TranscriptSortColumns[filter.Sort]
	if !ok {
		sortCol = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.title, t.objectives, t.source, t.room, t.window_minutes,
			t.raw_chars, t.window_count, t.analyzed_count, t.failed_count, t.created_at
		FROM transcripts t
		%s
		ORDER BY t.%s %s
		LIMIT %d OFFSET %d
	`, whereClause, sortCol, direction, limit, filter.Offset)

	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []TranscriptAPI
	for rows.Next() {
		var t TranscriptAPI
		if err := rows.Scan(
			&t.ID, &t.Title, &t.Objectives, &t.Source, &t.Room, &t.WindowMinutes,
			&t.RawChars, &t.WindowCount, &t.AnalyzedCount, &t.FailedCount, &t.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, t)
	}
	if result == nil {
		result = []TranscriptAPI{}
	}
	return result, total, rows.Err()
}

// DeleteTranscript removes a transcript. Windows and analyses cascade.
// Returns the number of rows deleted (0 when the ID does not exist).
func (db *DB) DeleteTranscript(ctx context.Context, id int64) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transcripts WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
