package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/analyze"
	"github.com/classlens/cl-engine/internal/api"
	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/errclass"
	"github.com/classlens/cl-engine/internal/metrics"
	"github.com/classlens/cl-engine/internal/roster"
	"github.com/classlens/cl-engine/internal/storage"
	"github.com/classlens/cl-engine/internal/windowing"
)

// failedScoreRetention is how long failed score attempts (and their audio
// clips) are kept before the daily maintenance pass deletes them.
const failedScoreRetention = 30 * 24 * time.Hour

// Pipeline is the shared ingest path. Every transcript source (HTTP
// upload, the drop-directory watcher, live MQTT capture) funnels through
// IngestTranscript: split into windows, persist, optionally enqueue
// analysis, publish an SSE event. The pipeline also owns the live state
// the API surfaces: open capture sessions, recorder presence, and the
// event bus.
type Pipeline struct {
	db     *database.DB
	pool   *analyze.Pool // nil when analysis is disabled
	roster *roster.Roster
	clips  storage.ClipStore
	log    zerolog.Logger

	rawBatcher   *Batcher[database.RawMessageRow]
	rawStore     bool
	rawExclude   map[string]bool // message kinds skipped by the raw archive
	rawRetention time.Duration

	windowMinutes int
	maxBytes      int
	autoAnalyze   bool
	idleTimeout   time.Duration

	eventBus *EventBus
	sessions *sessionMap

	// Recorder presence: room → presenceEntry
	presence sync.Map

	watcherMu     sync.Mutex
	watcherStatus *api.WatcherStatusData

	ctx    context.Context
	cancel context.CancelFunc

	msgCount  atomic.Int64
	kindCount sync.Map // message kind → *atomic.Int64
}

type PipelineOptions struct {
	DB                 *database.DB
	Pool               *analyze.Pool     // nil disables auto-analysis
	Roster             *roster.Roster    // nil when no roster dir is configured
	Clips              storage.ClipStore // nil when scoring is disabled
	WindowMinutes      int
	MaxTranscriptBytes int
	AutoAnalyze        bool
	RawStore           bool
	RawExclude         string // comma-separated message kinds
	RawRetentionDays   int
	SessionIdleTimeout time.Duration
	Log                zerolog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Log.With().Str("component", "ingest").Logger()

	windowMinutes := opts.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = windowing.DefaultMinutes
	}
	idleTimeout := opts.SessionIdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}

	rawExclude := parseKindSet(opts.RawExclude)
	if !opts.RawStore {
		log.Info().Msg("raw message archival disabled (RAW_STORE=false)")
	} else if len(rawExclude) > 0 {
		names := make([]string, 0, len(rawExclude))
		for k := range rawExclude {
			names = append(names, k)
		}
		log.Info().Strs("kinds", names).Msg("raw message archival excluded for kinds")
	}

	p := &Pipeline{
		db:            opts.DB,
		pool:          opts.Pool,
		roster:        opts.Roster,
		clips:         opts.Clips,
		log:           log,
		rawStore:      opts.RawStore,
		rawExclude:    rawExclude,
		rawRetention:  time.Duration(opts.RawRetentionDays) * 24 * time.Hour,
		windowMinutes: windowMinutes,
		maxBytes:      opts.MaxTranscriptBytes,
		autoAnalyze:   opts.AutoAnalyze,
		idleTimeout:   idleTimeout,
		eventBus:      NewEventBus(256),
		sessions:      newSessionMap(),
		ctx:           ctx,
		cancel:        cancel,
	}

	p.rawBatcher = NewBatcher[database.RawMessageRow](100, 2*time.Second, p.flushRawMessages)

	return p
}

// Start launches the periodic stats, maintenance, and session janitor
// loops.
func (p *Pipeline) Start() {
	go p.statsLoop()
	go p.maintenanceLoop()
	go p.janitorLoop()
	p.log.Info().
		Int("window_minutes", p.windowMinutes).
		Bool("auto_analyze", p.autoAnalyze && p.pool != nil).
		Msg("ingest pipeline started")
}

// Stop finalizes any open capture sessions, flushes the raw archive, and
// cancels the background loops.
func (p *Pipeline) Stop() {
	p.finalizeAllSessions("shutdown")
	p.rawBatcher.Stop()
	p.cancel()
	p.log.Info().Int64("total_messages", p.msgCount.Load()).Msg("ingest pipeline stopped")
}

// ── shared ingest path ──

// IngestTranscript splits raw text into windows, persists the transcript,
// enqueues analysis when enabled, and publishes a transcript.created
// event. It implements api.TranscriptIngester.
func (p *Pipeline) IngestTranscript(ctx context.Context, in api.TranscriptInput) (*api.IngestedTranscript, error) {
	if p.maxBytes > 0 && len(in.Text) > p.maxBytes {
		return nil, fmt.Errorf("transcript is %d bytes, limit %d: %w", len(in.Text), p.maxBytes, errclass.ErrTooLarge)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled"
	}
	objectives := strings.TrimSpace(in.Objectives)
	if objectives == "" && in.Room != "" {
		objectives = p.roster.ObjectivesForRoom(in.Room)
	}
	windowMinutes := in.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = p.windowMinutes
	}

	windows := windowing.Split(in.Text, windowMinutes)

	t, windowIDs, err := p.db.InsertTranscriptWithWindows(ctx, &database.TranscriptRow{
		Title:         title,
		Objectives:    objectives,
		Source:        in.Source,
		Room:          in.Room,
		WindowMinutes: windowMinutes,
		RawChars:      utf8.RuneCountInString(in.Text),
	}, windows)
	if err != nil {
		return nil, fmt.Errorf("persist transcript: %w", err)
	}

	metrics.TranscriptsIngestedTotal.WithLabelValues(in.Source).Inc()
	metrics.WindowsCreatedTotal.Add(float64(len(windows)))

	out := &api.IngestedTranscript{
		Transcript: t,
		Windows:    make([]database.WindowAPI, 0, len(windows)),
	}
	for i, w := range windows {
		out.Windows = append(out.Windows, database.WindowAPI{
			ID:             windowIDs[i],
			TranscriptID:   t.ID,
			Index:          w.Index,
			FromClock:      w.From,
			ToClock:        w.To,
			Text:           w.Text,
			AnalysisStatus: "pending",
			UpdatedAt:      t.CreatedAt,
		})
	}

	if p.autoAnalyze && p.pool != nil {
		for i, w := range windows {
			if p.pool.Enqueue(analyze.Job{
				TranscriptID: t.ID,
				WindowID:     windowIDs[i],
				WindowIndex:  w.Index,
				WindowText:   w.Text,
				Objectives:   objectives,
			}) {
				out.Queued++
			}
		}
		if out.Queued < len(windows) {
			p.log.Warn().
				Int64("transcript_id", t.ID).
				Int("queued", out.Queued).
				Int("windows", len(windows)).
				Msg("analysis queue full, some windows stay pending")
		}
	}

	p.PublishEvent(EventData{
		Type:         "transcript.created",
		TranscriptID: t.ID,
		Room:         t.Room,
		Payload: map[string]any{
			"transcript_id": t.ID,
			"title":         t.Title,
			"source":        t.Source,
			"room":          t.Room,
			"window_count":  t.WindowCount,
			"queued":        out.Queued,
		},
	})

	p.log.Info().
		Int64("transcript_id", t.ID).
		Str("source", in.Source).
		Str("room", in.Room).
		Int("windows", len(windows)).
		Int("queued", out.Queued).
		Msg("transcript ingested")

	return out, nil
}

// ── MQTT entry point ──

// HandleMessage is called by the MQTT client for each inbound message.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	p.msgCount.Add(1)
	metrics.MQTTMessagesTotal.Inc()

	route := ParseTopic(topic)
	if route == nil {
		p.incKind("_unknown")
		p.archiveRaw("_unknown", "", topic, payload)
		p.log.Warn().Str("topic", topic).Msg("unroutable topic, skipping")
		return
	}

	p.incKind(route.Handler)
	metrics.MQTTHandlerMessagesTotal.WithLabelValues(route.Handler).Inc()
	p.archiveRaw(route.Handler, route.Room, topic, payload)

	var err error
	switch route.Handler {
	case "session_start":
		err = p.handleSessionStart(route.Room, payload)
	case "line":
		err = p.handleLine(route.Room, payload)
	case "session_end":
		err = p.handleSessionEnd(route.Room, payload)
	case "transcript":
		err = p.handleTranscript(route.Room, payload)
	case "status":
		err = p.handleStatus(route.Room, payload)
	}

	if err != nil {
		p.log.Error().Err(err).
			Str("kind", route.Handler).
			Str("room", route.Room).
			Str("topic", topic).
			Msg("message handler error")
	}
}

func (p *Pipeline) incKind(kind string) {
	v, _ := p.kindCount.LoadOrStore(kind, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

// archiveRaw stores a message in raw_messages unless archival is off or
// the kind is excluded. Use kind="_unknown" for unroutable topics.
func (p *Pipeline) archiveRaw(kind, room, topic string, payload []byte) {
	if !p.rawStore || p.rawExclude[kind] {
		return
	}
	p.rawBatcher.Add(database.RawMessageRow{
		Topic:      topic,
		Payload:    payload,
		Room:       room,
		ReceivedAt: time.Now(),
	})
}

func (p *Pipeline) flushRawMessages(rows []database.RawMessageRow) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	n, err := p.db.InsertRawMessages(ctx, rows)
	if err != nil {
		p.log.Error().Err(err).Int("count", len(rows)).Msg("failed to flush raw messages")
		return
	}
	p.log.Debug().Int64("inserted", n).Msg("flushed raw messages")
}

// parseKindSet splits a comma-separated string into a set of message kinds.
func parseKindSet(s string) map[string]bool {
	m := make(map[string]bool)
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			m[k] = true
		}
	}
	return m
}

// ── background loops ──

// statsLoop logs message counts every 60 seconds.
func (p *Pipeline) statsLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	var lastTotal int64
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			total := p.msgCount.Load()
			delta := total - lastTotal
			lastTotal = total

			evt := p.log.Info().
				Int64("total", total).
				Int64("last_60s", delta).
				Int("open_sessions", p.sessions.Len()).
				Int("sse_subscribers", p.eventBus.SubscriberCount())
			if p.pool != nil {
				evt = evt.Int("queue_pending", p.pool.Stats().Pending)
			}
			p.kindCount.Range(func(key, value any) bool {
				evt = evt.Int64(key.(string), value.(*atomic.Int64).Load())
				return true
			})
			evt.Msg("stats")
		}
	}
}

// maintenanceLoop purges expired rows on a daily schedule. It runs once
// shortly after startup, then every 24 hours.
func (p *Pipeline) maintenanceLoop() {
	select {
	case <-p.ctx.Done():
		return
	case <-time.After(time.Minute):
		p.runMaintenance()
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runMaintenance()
		}
	}
}

func (p *Pipeline) runMaintenance() {
	log := p.log.With().Str("task", "maintenance").Logger()
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Minute)
	defer cancel()

	if p.rawStore && p.rawRetention > 0 {
		n, err := p.db.PurgeOlderThan(ctx, "raw_messages", "received_at", p.rawRetention)
		if err != nil {
			log.Warn().Err(err).Msg("raw message purge failed")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("purged old raw messages")
		}
	}

	keys, n, err := p.db.PurgeFailedScoreAttempts(ctx, failedScoreRetention)
	if err != nil {
		log.Warn().Err(err).Msg("failed score attempt purge failed")
	} else if n > 0 {
		removed := 0
		if p.clips != nil {
			for _, key := range keys {
				if err := p.clips.Delete(ctx, key); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("clip delete failed")
					continue
				}
				removed++
			}
		}
		log.Info().Int64("deleted", n).Int("clips_removed", removed).Msg("purged failed score attempts")
	}

	log.Info().Dur("elapsed_ms", time.Since(start)).Msg("maintenance complete")
}

// janitorLoop finalizes capture sessions that stopped receiving lines.
func (p *Pipeline) janitorLoop() {
	interval := p.idleTimeout / 4
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.reapIdleSessions()
		}
	}
}

// ── event bus ──

// PublishEvent publishes an event through the event bus.
func (p *Pipeline) PublishEvent(e EventData) {
	if p.eventBus != nil {
		p.eventBus.Publish(e)
	}
}

// PublishAnalysisEvent adapts PublishEvent to the analyze pool's callback
// shape. Analysis events have no room context.
func (p *Pipeline) PublishAnalysisEvent(eventType string, transcriptID int64, payload map[string]any) {
	p.PublishEvent(EventData{Type: eventType, TranscriptID: transcriptID, Payload: payload})
}

// ── api.LiveDataSource ──

// ActiveSessions returns the currently open live capture sessions.
func (p *Pipeline) ActiveSessions() []api.CaptureSessionData {
	return p.sessions.Snapshot()
}

// RecorderPresence returns the last reported status of each capture client.
func (p *Pipeline) RecorderPresence() []api.RecorderPresenceData {
	var result []api.RecorderPresenceData
	p.presence.Range(func(key, value any) bool {
		e := value.(presenceEntry)
		result = append(result, api.RecorderPresenceData{
			Room:       key.(string),
			Status:     e.Status,
			Battery:    e.Battery,
			AppVersion: e.AppVersion,
			LastSeen:   e.LastSeen,
		})
		return true
	})
	return result
}

// QueueStats reports the analysis queue counters, zero when analysis is
// disabled.
func (p *Pipeline) QueueStats() api.QueueStatsData {
	if p.pool == nil {
		return api.QueueStatsData{}
	}
	s := p.pool.Stats()
	return api.QueueStatsData{
		Pending:   s.Pending,
		Active:    s.Active,
		Completed: s.Completed,
		Failed:    s.Failed,
	}
}

// Subscribe registers a new SSE subscriber with the given filter.
func (p *Pipeline) Subscribe(filter api.EventFilter) (<-chan api.SSEEvent, func()) {
	return p.eventBus.Subscribe(filter)
}

// ReplaySince returns buffered events since the given event ID.
func (p *Pipeline) ReplaySince(lastEventID string, filter api.EventFilter) []api.SSEEvent {
	return p.eventBus.ReplaySince(lastEventID, filter)
}

// WatcherStatus returns the drop-directory watcher status, nil when no
// watcher is running.
func (p *Pipeline) WatcherStatus() *api.WatcherStatusData {
	p.watcherMu.Lock()
	defer p.watcherMu.Unlock()
	if p.watcherStatus == nil {
		return nil
	}
	ws := *p.watcherStatus
	return &ws
}

// SetWatcherStatus is called by the watcher to publish its current state.
func (p *Pipeline) SetWatcherStatus(ws api.WatcherStatusData) {
	p.watcherMu.Lock()
	p.watcherStatus = &ws
	p.watcherMu.Unlock()
}

// ── metrics.LiveStats ──

// QueueDepth returns the number of jobs waiting in the analysis queue.
func (p *Pipeline) QueueDepth() int {
	if p.pool == nil {
		return 0
	}
	return p.pool.Stats().Pending
}

// ActiveSessionCount returns the number of open capture sessions.
func (p *Pipeline) ActiveSessionCount() int {
	return p.sessions.Len()
}

// SSESubscriberCount returns the number of connected SSE subscribers.
func (p *Pipeline) SSESubscriberCount() int {
	return p.eventBus.SubscriberCount()
}
