package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/api"
	"github.com/classlens/cl-engine/internal/metrics"
)

// Transcript file extensions the watcher accepts.
var watchExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
}

// dateRoomRe matches a leading YYYY-MM-DD date segment in a drop file
// name, e.g. "2026-08-21_roomB_lesson.txt".
var dateRoomRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// FileWatcher ingests transcripts dropped into a directory. Files settle
// for 500ms after the last write, then go through the shared ingest path
// and move to processed/ (failed/ when ingest errors). Pre-existing
// files are backfilled oldest-first on start.
type FileWatcher struct {
	pipeline     *Pipeline
	watchDir     string
	backfillDays int
	log          zerolog.Logger

	watcher *fsnotify.Watcher

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher on watchDir. backfillDays bounds how
// old a pre-existing file may be and still get backfilled; 0 means no
// age limit, negative disables backfill entirely.
func NewFileWatcher(p *Pipeline, watchDir string, backfillDays int) *FileWatcher {
	fw := &FileWatcher{
		pipeline:       p,
		watchDir:       watchDir,
		backfillDays:   backfillDays,
		log:            p.log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start creates the processed/ and failed/ subdirectories, begins
// tailing filesystem events, and kicks off the backfill.
func (fw *FileWatcher) Start() error {
	for _, sub := range []string{"processed", "failed"} {
		if err := os.MkdirAll(filepath.Join(fw.watchDir, sub), 0o750); err != nil {
			return fmt.Errorf("create %s dir: %w", sub, err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(fw.watchDir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", fw.watchDir, err)
	}
	fw.watcher = w

	fw.log.Info().Str("watch_dir", fw.watchDir).Msg("file watcher started")

	go fw.watchLoop()

	if fw.backfillDays >= 0 {
		go fw.backfill()
	} else {
		fw.setStatus("watching")
	}

	return nil
}

// Stop closes the fsnotify watcher.
func (fw *FileWatcher) Stop() {
	fw.setStatus("stopped")
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// setStatus updates the watcher state and pushes a fresh snapshot to the
// pipeline for /health and /live.
func (fw *FileWatcher) setStatus(s string) {
	fw.status.Store(s)
	fw.publishStatus()
}

func (fw *FileWatcher) publishStatus() {
	s, _ := fw.status.Load().(string)
	fw.pipeline.SetWatcherStatus(api.WatcherStatusData{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesFailed:    fw.filesFailed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	})
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case <-fw.pipeline.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Only the top level is watched; moves into processed/
			// and failed/ land in subdirectories and never come back.
			if filepath.Dir(event.Name) != filepath.Clean(fw.watchDir) {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			if !watchExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces by 500ms so a file still being written gets
// read once, after the writes settle.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.processFile(path)
	})
}

// processFile ingests one dropped transcript and moves it out of the
// drop directory: processed/ on success, failed/ on error.
func (fw *FileWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to read drop file")
		fw.fail(path)
		return
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		fw.log.Warn().Str("path", path).Msg("empty drop file, skipping")
		fw.filesSkipped.Add(1)
		metrics.WatcherFilesTotal.WithLabelValues("skipped").Inc()
		fw.moveTo(path, "failed")
		fw.publishStatus()
		return
	}

	title, room := parseDropFilename(filepath.Base(path))

	ctx, cancel := context.WithTimeout(fw.pipeline.ctx, 30*time.Second)
	defer cancel()

	ingested, err := fw.pipeline.IngestTranscript(ctx, api.TranscriptInput{
		Title:  title,
		Text:   text,
		Room:   room,
		Source: "watcher",
	})
	if err != nil {
		fw.log.Error().Err(err).Str("path", path).Msg("drop file ingest failed")
		fw.fail(path)
		return
	}

	fw.filesProcessed.Add(1)
	metrics.WatcherFilesTotal.WithLabelValues("processed").Inc()
	fw.moveTo(path, "processed")
	fw.publishStatus()

	fw.log.Info().
		Str("file", filepath.Base(path)).
		Int64("transcript_id", ingested.Transcript.ID).
		Int("windows", len(ingested.Windows)).
		Msg("drop file ingested")
}

func (fw *FileWatcher) fail(path string) {
	fw.filesFailed.Add(1)
	metrics.WatcherFilesTotal.WithLabelValues("failed").Inc()
	fw.moveTo(path, "failed")
	fw.publishStatus()
}

// moveTo relocates a handled file into the given subdirectory,
// suffixing a timestamp on name collision.
func (fw *FileWatcher) moveTo(path, sub string) {
	dest := filepath.Join(fw.watchDir, sub, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "." + time.Now().Format("20060102T150405") + ext
	}
	if err := os.Rename(path, dest); err != nil {
		fw.log.Warn().Err(err).Str("path", path).Str("dest", dest).Msg("failed to move handled file")
	}
}

// backfill ingests files already sitting in the drop directory,
// oldest-first by modification time, through a small worker pool.
func (fw *FileWatcher) backfill() {
	fw.setStatus("backfilling")
	start := time.Now()

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	var cutoff time.Time
	if fw.backfillDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -fw.backfillDays)
	}

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != fw.watchDir {
				return fs.SkipDir // processed/, failed/
			}
			return nil
		}
		if !watchExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !cutoff.IsZero() && info.ModTime().Before(cutoff) {
			fw.filesSkipped.Add(1)
			metrics.WatcherFilesTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	if len(files) == 0 {
		fw.setStatus("watching")
		return
	}

	fw.log.Info().
		Int("files", len(files)).
		Int("backfill_days", fw.backfillDays).
		Msg("backfill starting")

	const numWorkers = 4
	work := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range work {
				fw.processFile(path)
			}
		}()
	}

	for _, f := range files {
		select {
		case <-fw.pipeline.ctx.Done():
			close(work)
			wg.Wait()
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		case work <- f.path:
		}
	}
	close(work)
	wg.Wait()

	fw.setStatus("watching")
	fw.log.Info().
		Int64("processed", fw.filesProcessed.Load()).
		Int64("failed", fw.filesFailed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}

// parseDropFilename derives a title and room from a drop file name.
// "2026-08-21_roomB_lesson.txt" yields room "roomB", title "lesson";
// the date segment is optional and a single-segment name is all title.
func parseDropFilename(name string) (title, room string) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")

	if len(parts) > 1 && dateRoomRe.MatchString(parts[0]) {
		parts = parts[1:]
	}
	if len(parts) > 1 {
		room = parts[0]
		parts = parts[1:]
	}
	title = strings.Join(parts, " ")
	return title, room
}
