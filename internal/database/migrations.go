package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add transcripts.room",
		sql:   `ALTER TABLE transcripts ADD COLUMN IF NOT EXISTS room text NOT NULL DEFAULT ''`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transcripts' AND column_name = 'room')`,
	},
	{
		name:  "add score_attempts.room",
		sql:   `ALTER TABLE score_attempts ADD COLUMN IF NOT EXISTS room text NOT NULL DEFAULT ''`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'score_attempts' AND column_name = 'room')`,
	},
	{
		name:  "add score_attempts.audio_key",
		sql:   `ALTER TABLE score_attempts ADD COLUMN IF NOT EXISTS audio_key text`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'score_attempts' AND column_name = 'audio_key')`,
	},
	{
		name:  "add windows pending partial index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_windows_pending ON windows (analysis_status) WHERE analysis_status <> 'analyzed'`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_windows_pending')`,
	},
	{
		name:  "add raw_messages received index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_raw_messages_received ON raw_messages (received_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_raw_messages_received')`,
	},
	{
		name:  "add capture_sessions.transcript_id",
		sql:   `ALTER TABLE capture_sessions ADD COLUMN IF NOT EXISTS transcript_id bigint REFERENCES transcripts(id) ON DELETE SET NULL`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'capture_sessions' AND column_name = 'transcript_id')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned; the caller should treat this as fatal
// since the application's queries depend on these columns existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	// Try to apply each pending migration
	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart cl-engine.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
