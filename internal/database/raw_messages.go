package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// RawMessageRow is one archived MQTT message.
type RawMessageRow struct {
	Topic      string
	Payload    []byte
	Room       string
	ReceivedAt time.Time
}

// InsertRawMessages batch-inserts raw MQTT messages using CopyFrom.
func (db *DB) InsertRawMessages(ctx context.Context, rows []RawMessageRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return db.Pool.CopyFrom(ctx,
		pgx.Identifier{"raw_messages"},
		[]string{"topic", "payload", "room", "received_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.Topic, r.Payload, r.Room, r.ReceivedAt}, nil
		}),
	)
}
