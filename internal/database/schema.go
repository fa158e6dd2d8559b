package database

import (
	"context"
	"fmt"
)

// InitSchema applies the embedded schema on a fresh database. Presence of
// the transcripts table is the marker that schema.sql has already run;
// incremental changes after that point go through Migrate.
func (db *DB) InitSchema(ctx context.Context, schemaSQL []byte) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'transcripts')`,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema marker: %w", err)
	}

	if exists {
		db.log.Debug().Msg("schema already initialized, skipping")
		return nil
	}

	db.log.Info().Msg("fresh database, applying schema")
	if _, err := db.Pool.Exec(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.log.Info().Msg("schema applied")
	return nil
}
