package ingest

import (
	"github.com/classlens/cl-engine/internal/database"
)

// SessionStartMsg opens a live capture session for a room.
type SessionStartMsg struct {
	Course     string            `json:"course,omitempty"`
	Title      string            `json:"title,omitempty"`
	Objectives string            `json:"objectives,omitempty"`
	T          database.FlexTime `json:"t"`
}

// LineMsg is one spoken line from a live capture client.
type LineMsg struct {
	T       database.FlexTime `json:"t"`
	Text    string            `json:"text"`
	Speaker string            `json:"speaker,omitempty"`
}

// SessionEndMsg closes a live capture session.
type SessionEndMsg struct {
	T database.FlexTime `json:"t"`
}

// TranscriptMsg carries a complete transcript document in one payload.
type TranscriptMsg struct {
	Title         string `json:"title,omitempty"`
	Objectives    string `json:"objectives,omitempty"`
	Text          string `json:"text"`
	WindowMinutes int    `json:"window_minutes,omitempty"`
}

// StatusMsg is a capture client presence report.
type StatusMsg struct {
	Status     string            `json:"status"` // "online", "recording", "offline"
	Battery    int               `json:"battery,omitempty"`
	AppVersion string            `json:"app_version,omitempty"`
	T          database.FlexTime `json:"t"`
}
