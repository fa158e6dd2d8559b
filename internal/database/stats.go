package database

import (
	"context"
	"time"
)

// EngineStats is the aggregate view served by /api/v1/stats.
type EngineStats struct {
	Transcripts struct {
		Total    int64            `json:"total"`
		BySource map[string]int64 `json:"by_source"`
		Last24h  int64            `json:"last_24h"`
	} `json:"transcripts"`
	Windows struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	} `json:"windows"`
	Analyses struct {
		Total         int64   `json:"total"`
		AvgDurationMs float64 `json:"avg_duration_ms"`
	} `json:"analyses"`
	Scores struct {
		Total      int64            `json:"total"`
		ByStatus   map[string]int64 `json:"by_status"`
		AvgOverall float64          `json:"avg_overall"`
		ByDay      []DayCount       `json:"by_day"`
	} `json:"scores"`
}

// DayCount is a per-day attempt count for dashboard charts.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// GetStats computes the aggregate counts for dashboards. Each block is a
// separate query; a transcript-heavy database keeps these cheap via the
// status and created_at indexes.
func (db *DB) GetStats(ctx context.Context) (*EngineStats, error) {
	stats := &EngineStats{}
	stats.Transcripts.BySource = make(map[string]int64)
	stats.Windows.ByStatus = make(map[string]int64)
	stats.Scores.ByStatus = make(map[string]int64)

	rows, err := db.Pool.Query(ctx, `
		SELECT source, count(*) FROM transcripts GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Transcripts.BySource[source] = n
		stats.Transcripts.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.Pool.QueryRow(ctx, `
		SELECT count(*) FROM transcripts WHERE created_at >= now() - interval '24 hours'
	`).Scan(&stats.Transcripts.Last24h); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx, `
		SELECT analysis_status, count(*) FROM windows GROUP BY analysis_status
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Windows.ByStatus[status] = n
		stats.Windows.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.Pool.QueryRow(ctx, `
		SELECT count(*), coalesce(avg(duration_ms), 0) FROM analyses
	`).Scan(&stats.Analyses.Total, &stats.Analyses.AvgDurationMs); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx, `
		SELECT status, count(*) FROM score_attempts GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Scores.ByStatus[status] = n
		stats.Scores.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.Pool.QueryRow(ctx, `
		SELECT coalesce(avg(overall), 0) FROM score_attempts WHERE status = 'scored'
	`).Scan(&stats.Scores.AvgOverall); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, count(*)
		FROM score_attempts
		WHERE created_at >= now() - interval '14 days'
		GROUP BY day
		ORDER BY day
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		stats.Scores.ByDay = append(stats.Scores.ByDay, dc)
	}
	if stats.Scores.ByDay == nil {
		stats.Scores.ByDay = []DayCount{}
	}
	return stats, rows.Err()
}
