package api

import "time"

// LiveDataSource provides real-time data from the ingest pipeline to the API layer.
// The pipeline implements it; api owns the interface so there is no import cycle.
type LiveDataSource interface {
	// ActiveSessions returns currently open MQTT capture sessions.
	ActiveSessions() []CaptureSessionData

	// RecorderPresence returns the last known status of each capture client.
	RecorderPresence() []RecorderPresenceData

	// QueueStats reports the analysis queue counters.
	QueueStats() QueueStatsData

	// Subscribe returns a channel that receives SSE events matching the filter,
	// and a cancel function to unsubscribe.
	Subscribe(filter EventFilter) (<-chan SSEEvent, func())

	// ReplaySince returns buffered events since the given event ID (for Last-Event-ID recovery).
	ReplaySince(lastEventID string, filter EventFilter) []SSEEvent

	// WatcherStatus returns the file watcher status, or nil if not active.
	WatcherStatus() *WatcherStatusData
}

// WatcherStatusData represents the status of the file watcher ingest mode.
type WatcherStatusData struct {
	Status         string `json:"status"` // "watching", "backfilling", "stopped"
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// CaptureSessionData represents an open live capture session.
type CaptureSessionData struct {
	Room      string    `json:"room"`
	StartedAt time.Time `json:"started_at"`
	LineCount int       `json:"line_count"`
	LastLine  time.Time `json:"last_line,omitempty"`
}

// RecorderPresenceData represents a capture client's last reported status.
type RecorderPresenceData struct {
	Room       string    `json:"room"`
	Status     string    `json:"status"` // "online", "recording", "offline"
	Battery    int       `json:"battery,omitempty"`
	AppVersion string    `json:"app_version,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
}

// QueueStatsData mirrors the analysis worker pool counters.
type QueueStatsData struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// EventFilter specifies which events an SSE subscriber wants to receive.
type EventFilter struct {
	Types       []string
	Rooms       []string
	Transcripts []int64
}

// SSEEvent represents a server-sent event ready for transmission.
type SSEEvent struct {
	ID           string `json:"event_id"`
	Type         string `json:"event_type"`
	Timestamp    string `json:"timestamp"`
	TranscriptID int64  `json:"transcript_id,omitempty"`
	Room         string `json:"room,omitempty"`
	Data         []byte `json:"-"` // pre-serialized JSON payload
}
