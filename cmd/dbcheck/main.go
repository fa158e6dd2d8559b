// dbcheck is an operator tool for inspecting and repairing the engine
// database: table counts, orphan detection, requeueing failed windows,
// and purging the raw message archive.
//
// Usage:
//
//	dbcheck                    table counts
//	dbcheck orphans [apply]    count (or delete) orphaned windows/analyses
//	dbcheck requeue            reset failed windows to pending
//	dbcheck purge-raw <days>   delete raw messages older than N days
//	dbcheck vacuum             VACUUM ANALYZE the engine tables
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/database"
)

var engineTables = []string{
	"transcripts", "windows", "analyses",
	"score_attempts", "capture_sessions", "raw_messages",
}

func main() {
	ctx := context.Background()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	db, err := database.Connect(ctx, os.Getenv("DATABASE_URL"), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "orphans":
			apply := len(os.Args) > 2 && os.Args[2] == "apply"
			runOrphans(ctx, db, apply)
		case "requeue":
			n, err := db.RequeueFailedWindows(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "requeue:", err)
				os.Exit(1)
			}
			fmt.Printf("Requeued %d failed windows to pending\n", n)
		case "purge-raw":
			runPurgeRaw(ctx, db)
		case "vacuum":
			for _, t := range engineTables {
				if _, err := db.Pool.Exec(ctx, "VACUUM ANALYZE "+t); err != nil {
					fmt.Fprintf(os.Stderr, "vacuum %s: %v\n", t, err)
					os.Exit(1)
				}
				fmt.Printf("Vacuumed %s\n", t)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
			os.Exit(2)
		}
		return
	}

	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, t := range engineTables {
		var count int64
		if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count); err != nil {
			fmt.Printf("%-25s error: %v\n", t, err)
			continue
		}
		fmt.Printf("%-25s %d\n", t, count)
	}

	counts, err := db.CountOrphans(ctx)
	if err == nil && (counts.Windows > 0 || counts.Analyses > 0) {
		fmt.Printf("\nOrphans: %d windows, %d analyses (run `dbcheck orphans` for details)\n",
			counts.Windows, counts.Analyses)
	}
}

// runOrphans reports rows whose parent is gone: windows without a
// transcript and analyses without a window. With apply, it deletes them.
func runOrphans(ctx context.Context, db *database.DB, apply bool) {
	counts, err := db.CountOrphans(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "count orphans:", err)
		os.Exit(1)
	}
	fmt.Printf("Orphaned windows (no transcript): %d\n", counts.Windows)
	fmt.Printf("Orphaned analyses (no window):    %d\n", counts.Analyses)

	if counts.Windows == 0 && counts.Analyses == 0 {
		return
	}
	if !apply {
		fmt.Println("\nDry run. Re-run with `dbcheck orphans apply` to delete.")
		return
	}

	deleted, err := db.DeleteOrphans(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "delete orphans:", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d orphaned windows, %d orphaned analyses\n", deleted.Windows, deleted.Analyses)
}

func runPurgeRaw(ctx context.Context, db *database.DB) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dbcheck purge-raw <days>")
		os.Exit(2)
	}
	days, err := strconv.Atoi(os.Args[2])
	if err != nil || days < 1 {
		fmt.Fprintln(os.Stderr, "purge-raw: days must be a positive integer")
		os.Exit(2)
	}
	n, err := db.PurgeOlderThan(ctx, "raw_messages", "received_at", time.Duration(days)*24*time.Hour)
	if err != nil {
		fmt.Fprintln(os.Stderr, "purge-raw:", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d raw messages older than %d days\n", n, days)
}
