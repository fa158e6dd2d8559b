package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/classlens/cl-engine/internal/windowing"
)

// ── captureSession rendering ─────────────────────────────────────────

func TestCaptureSessionRender(t *testing.T) {
	start := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)

	newSession := func() *captureSession {
		return &captureSession{room: "room-b", startedAt: start, lastMarker: -1}
	}

	t.Run("lines_get_elapsed_clock_markers", func(t *testing.T) {
		s := newSession()
		s.appendLine(start, "Good morning everyone.", "")
		s.appendLine(start.Add(65*time.Second), "Open your books.", "")

		want := strings.Join([]string{
			"00:00:00",
			"Good morning everyone.",
			"00:01:05",
			"Open your books.",
		}, "\n")
		if got := s.render(); got != want {
			t.Errorf("render =\n%s\nwant\n%s", got, want)
		}
	})

	t.Run("same_second_shares_one_marker", func(t *testing.T) {
		s := newSession()
		s.appendLine(start.Add(10*time.Second), "First.", "")
		s.appendLine(start.Add(10*time.Second), "Second.", "")

		want := "00:00:10\nFirst.\nSecond."
		if got := s.render(); got != want {
			t.Errorf("render = %q, want %q", got, want)
		}
	})

	t.Run("speaker_prefix", func(t *testing.T) {
		s := newSession()
		s.appendLine(start, "What is a preposition?", "Ms. Diaz")

		if got := s.render(); !strings.Contains(got, "Ms. Diaz: What is a preposition?") {
			t.Errorf("render = %q, want speaker prefix", got)
		}
	})

	t.Run("line_before_start_clamps_to_zero", func(t *testing.T) {
		s := newSession()
		s.appendLine(start.Add(-5*time.Second), "Early line.", "")

		if got := s.render(); !strings.HasPrefix(got, "00:00:00\n") {
			t.Errorf("render = %q, want 00:00:00 marker", got)
		}
	})

	t.Run("rendered_text_splits_into_windows", func(t *testing.T) {
		s := newSession()
		s.appendLine(start.Add(time.Minute), "Intro discussion.", "")
		s.appendLine(start.Add(21*time.Minute), "Second segment.", "")

		windows := windowing.Split(s.render(), 20)
		if len(windows) != 2 {
			t.Fatalf("got %d windows, want 2", len(windows))
		}
		if windows[0].Index != 0 || windows[1].Index != 1 {
			t.Errorf("indices = %d,%d, want 0,1", windows[0].Index, windows[1].Index)
		}
		if !strings.Contains(windows[1].Text, "Second segment.") {
			t.Errorf("window 1 text = %q", windows[1].Text)
		}
	})

	t.Run("line_count_tracks_content_lines_only", func(t *testing.T) {
		s := newSession()
		s.appendLine(start, "One.", "")
		s.appendLine(start.Add(time.Second), "Two.", "")
		if s.lineCount != 2 {
			t.Errorf("lineCount = %d, want 2", s.lineCount)
		}
	})
}

// ── sessionMap ───────────────────────────────────────────────────────

func TestSessionMap(t *testing.T) {
	start := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)

	t.Run("open_returns_displaced_session", func(t *testing.T) {
		sm := newSessionMap()
		first := &captureSession{room: "room-b", startedAt: start, lastMarker: -1}
		if prev := sm.open(first); prev != nil {
			t.Fatalf("expected no previous session, got %+v", prev)
		}
		second := &captureSession{room: "room-b", startedAt: start.Add(time.Hour), lastMarker: -1}
		if prev := sm.open(second); prev != first {
			t.Errorf("expected first session displaced")
		}
		if sm.Len() != 1 {
			t.Errorf("Len = %d, want 1", sm.Len())
		}
	})

	t.Run("append_to_missing_room_reports_false", func(t *testing.T) {
		sm := newSessionMap()
		if sm.appendLine("room-x", start, "hello", "") {
			t.Error("expected false for unknown room")
		}
	})

	t.Run("take_removes_session", func(t *testing.T) {
		sm := newSessionMap()
		sm.open(&captureSession{room: "room-b", startedAt: start, lastMarker: -1})
		if s := sm.take("room-b"); s == nil {
			t.Fatal("expected session")
		}
		if s := sm.take("room-b"); s != nil {
			t.Error("expected nil on second take")
		}
	})

	t.Run("take_idle_selects_stale_sessions", func(t *testing.T) {
		sm := newSessionMap()
		stale := &captureSession{room: "room-a", startedAt: start, lastMarker: -1}
		stale.appendLine(start.Add(time.Minute), "old line", "")
		fresh := &captureSession{room: "room-b", startedAt: start, lastMarker: -1}
		fresh.appendLine(time.Now(), "new line", "")
		sm.open(stale)
		sm.open(fresh)

		idle := sm.takeIdle(time.Now().Add(-10 * time.Minute))
		if len(idle) != 1 || idle[0].room != "room-a" {
			t.Fatalf("idle = %+v, want only room-a", idle)
		}
		if sm.Len() != 1 {
			t.Errorf("Len = %d, want 1 remaining", sm.Len())
		}
	})

	t.Run("lineless_session_goes_idle_by_start_time", func(t *testing.T) {
		sm := newSessionMap()
		sm.open(&captureSession{room: "room-a", startedAt: start, lastMarker: -1})

		idle := sm.takeIdle(time.Now().Add(-10 * time.Minute))
		if len(idle) != 1 {
			t.Fatalf("got %d idle sessions, want 1", len(idle))
		}
	})

	t.Run("snapshot_reports_open_sessions", func(t *testing.T) {
		sm := newSessionMap()
		s := &captureSession{room: "room-b", startedAt: start, lastMarker: -1}
		s.appendLine(start.Add(time.Minute), "hello", "")
		sm.open(s)

		snap := sm.Snapshot()
		if len(snap) != 1 {
			t.Fatalf("got %d sessions, want 1", len(snap))
		}
		if snap[0].Room != "room-b" || snap[0].LineCount != 1 {
			t.Errorf("snapshot = %+v", snap[0])
		}
	})
}
