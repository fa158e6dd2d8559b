package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/classlens/cl-engine/internal/api"
	"github.com/classlens/cl-engine/internal/windowing"
)

// captureSession buffers one room's live capture between session_start
// and session_end. Lines are rendered on arrival into the same
// marker-interleaved text format the windowing split consumes, stamped
// with the elapsed clock since the session opened.
type captureSession struct {
	room       string
	dbID       int64 // capture_sessions row, 0 when the insert failed
	startedAt  time.Time
	lastLine   time.Time
	title      string
	course     string
	objectives string

	lines      []string
	lineCount  int
	lastMarker int // elapsed seconds of the last emitted marker, -1 initially
}

// appendLine stamps and buffers one spoken line. Lines timestamped
// before the session start clamp to 00:00:00.
func (s *captureSession) appendLine(at time.Time, text, speaker string) {
	elapsed := int(at.Sub(s.startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed != s.lastMarker {
		s.lines = append(s.lines, windowing.Clock(elapsed))
		s.lastMarker = elapsed
	}
	if speaker != "" {
		text = speaker + ": " + text
	}
	s.lines = append(s.lines, text)
	s.lineCount++
	s.lastLine = at
}

// render joins the buffered lines into splittable transcript text.
func (s *captureSession) render() string {
	return strings.Join(s.lines, "\n")
}

// sessionMap holds the open capture sessions keyed by room. Sessions are
// mutated only while held under the map lock; finalization removes the
// session first, so the slow persist path runs without it.
type sessionMap struct {
	mu sync.Mutex
	m  map[string]*captureSession
}

func newSessionMap() *sessionMap {
	return &sessionMap{m: make(map[string]*captureSession)}
}

// open installs a new session for room, returning the displaced session
// if one was still open.
func (sm *sessionMap) open(s *captureSession) *captureSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	prev := sm.m[s.room]
	sm.m[s.room] = s
	return prev
}

// appendLine adds a line to room's session. Returns false when no
// session is open for the room.
func (sm *sessionMap) appendLine(room string, at time.Time, text, speaker string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.m[room]
	if !ok {
		return false
	}
	s.appendLine(at, text, speaker)
	return true
}

// take removes and returns room's session, nil when none is open.
func (sm *sessionMap) take(room string) *captureSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.m[room]
	delete(sm.m, room)
	return s
}

// takeIdle removes and returns every session whose last line (or start,
// for line-less sessions) is older than cutoff.
func (sm *sessionMap) takeIdle(cutoff time.Time) []*captureSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var idle []*captureSession
	for room, s := range sm.m {
		last := s.lastLine
		if last.IsZero() {
			last = s.startedAt
		}
		if last.Before(cutoff) {
			idle = append(idle, s)
			delete(sm.m, room)
		}
	}
	return idle
}

// takeAll removes and returns every open session.
func (sm *sessionMap) takeAll() []*captureSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	all := make([]*captureSession, 0, len(sm.m))
	for room, s := range sm.m {
		all = append(all, s)
		delete(sm.m, room)
	}
	return all
}

func (sm *sessionMap) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.m)
}

// Snapshot returns the open sessions for the live API.
func (sm *sessionMap) Snapshot() []api.CaptureSessionData {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	result := make([]api.CaptureSessionData, 0, len(sm.m))
	for _, s := range sm.m {
		result = append(result, api.CaptureSessionData{
			Room:      s.room,
			StartedAt: s.startedAt,
			LineCount: s.lineCount,
			LastLine:  s.lastLine,
		})
	}
	return result
}

// ── message handlers ──

func (p *Pipeline) handleSessionStart(room string, payload []byte) error {
	var msg SessionStartMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parse session_start: %w", err)
	}
	p.openSession(room, &msg)
	return nil
}

// openSession installs a fresh session for room, finalizing any session
// the room still had open.
func (p *Pipeline) openSession(room string, msg *SessionStartMsg) *captureSession {
	startedAt := msg.T.Time
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	s := &captureSession{
		room:       room,
		startedAt:  startedAt,
		title:      strings.TrimSpace(msg.Title),
		course:     strings.TrimSpace(msg.Course),
		objectives: strings.TrimSpace(msg.Objectives),
		lastMarker: -1,
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	id, err := p.db.StartCaptureSession(ctx, room, startedAt)
	cancel()
	if err != nil {
		// Capture continues in memory; the bookkeeping row is lost.
		p.log.Error().Err(err).Str("room", room).Msg("failed to open capture session row")
	} else {
		s.dbID = id
	}

	if prev := p.sessions.open(s); prev != nil {
		p.log.Warn().Str("room", room).Msg("session_start while a session was open, finalizing previous")
		p.finalizeSession(prev, time.Now(), "superseded")
	}

	p.PublishEvent(EventData{
		Type: "session.started",
		Room: room,
		Payload: map[string]any{
			"room":       room,
			"started_at": startedAt.UTC().Format(time.RFC3339),
		},
	})
	p.log.Info().Str("room", room).Int64("session_id", s.dbID).Msg("capture session started")
	return s
}

func (p *Pipeline) handleLine(room string, payload []byte) error {
	var msg LineMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parse line: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	at := msg.T.Time
	if at.IsZero() {
		at = time.Now()
	}

	if !p.sessions.appendLine(room, at, msg.Text, msg.Speaker) {
		// Orphan line: a recorder is sending without session_start,
		// typically after an engine restart mid-lesson.
		p.log.Info().Str("room", room).Msg("line without open session, opening one implicitly")
		p.openSession(room, &SessionStartMsg{})
		p.sessions.appendLine(room, at, msg.Text, msg.Speaker)
	}
	return nil
}

func (p *Pipeline) handleSessionEnd(room string, payload []byte) error {
	var msg SessionEndMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parse session_end: %w", err)
	}

	s := p.sessions.take(room)
	if s == nil {
		p.log.Warn().Str("room", room).Msg("session_end without open session, ignoring")
		return nil
	}

	endedAt := msg.T.Time
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	p.finalizeSession(s, endedAt, "session_end")
	return nil
}

// reapIdleSessions finalizes sessions whose recorder went silent.
func (p *Pipeline) reapIdleSessions() {
	for _, s := range p.sessions.takeIdle(time.Now().Add(-p.idleTimeout)) {
		p.log.Warn().
			Str("room", s.room).
			Time("last_line", s.lastLine).
			Msg("capture session idle, finalizing")
		p.finalizeSession(s, time.Now(), "idle_timeout")
	}
}

func (p *Pipeline) finalizeAllSessions(reason string) {
	for _, s := range p.sessions.takeAll() {
		p.finalizeSession(s, time.Now(), reason)
	}
}

// finalizeSession renders the buffered lines, runs them through the
// shared ingest path, and closes the capture_sessions row. A session
// with no lines closes its row and produces no transcript.
func (p *Pipeline) finalizeSession(s *captureSession, endedAt time.Time, reason string) {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	var transcriptID *int64
	if s.lineCount > 0 {
		ingested, err := p.IngestTranscript(ctx, api.TranscriptInput{
			Title:      p.sessionTitle(s),
			Objectives: p.sessionObjectives(s),
			Text:       s.render(),
			Room:       s.room,
			Source:     "mqtt",
		})
		if err != nil {
			p.log.Error().Err(err).Str("room", s.room).Msg("failed to ingest capture session")
		} else {
			transcriptID = &ingested.Transcript.ID
		}
	}

	if s.dbID != 0 {
		if err := p.db.FinishCaptureSession(ctx, s.dbID, endedAt, s.lineCount, transcriptID); err != nil {
			p.log.Error().Err(err).Int64("session_id", s.dbID).Msg("failed to close capture session row")
		}
	}

	evt := map[string]any{
		"room":       s.room,
		"ended_at":   endedAt.UTC().Format(time.RFC3339),
		"line_count": s.lineCount,
		"reason":     reason,
	}
	var tid int64
	if transcriptID != nil {
		tid = *transcriptID
		evt["transcript_id"] = tid
	}
	p.PublishEvent(EventData{Type: "session.ended", TranscriptID: tid, Room: s.room, Payload: evt})

	p.log.Info().
		Str("room", s.room).
		Str("reason", reason).
		Int("lines", s.lineCount).
		Interface("transcript_id", transcriptID).
		Msg("capture session finalized")
}

// sessionTitle picks the transcript title for a finalized session: the
// announced title, else "<room display name> <start date/time>".
func (p *Pipeline) sessionTitle(s *captureSession) string {
	if s.title != "" {
		return s.title
	}
	return fmt.Sprintf("%s %s", p.roster.RoomName(s.room), s.startedAt.Format("2006-01-02 15:04"))
}

// sessionObjectives resolves objectives in precedence order: announced
// in session_start, else the roster course named there, else the room's
// roster default (applied downstream by the ingest path).
func (p *Pipeline) sessionObjectives(s *captureSession) string {
	if s.objectives != "" {
		return s.objectives
	}
	if s.course != "" && p.roster != nil {
		if c, ok := p.roster.Course(s.course); ok {
			return c.Objectives
		}
	}
	return ""
}
