package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// presenceEntry caches a capture client's last status report.
type presenceEntry struct {
	Status     string
	Battery    int
	AppVersion string
	LastSeen   time.Time
}

// handleStatus updates the in-memory recorder presence map surfaced via
// /live and /health. Nothing is persisted; presence resets on restart.
func (p *Pipeline) handleStatus(room string, payload []byte) error {
	var msg StatusMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	switch msg.Status {
	case "online", "recording", "offline":
	default:
		return fmt.Errorf("unknown recorder status %q", msg.Status)
	}

	at := msg.T.Time
	if at.IsZero() {
		at = time.Now()
	}

	p.presence.Store(room, presenceEntry{
		Status:     msg.Status,
		Battery:    msg.Battery,
		AppVersion: msg.AppVersion,
		LastSeen:   at,
	})

	p.PublishEvent(EventData{
		Type: "recorder.status",
		Room: room,
		Payload: map[string]any{
			"room":      room,
			"status":    msg.Status,
			"last_seen": at.UTC().Format(time.RFC3339),
		},
	})
	return nil
}
