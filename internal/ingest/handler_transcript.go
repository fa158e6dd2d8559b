package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/classlens/cl-engine/internal/api"
)

// handleTranscript ingests a complete transcript document delivered in a
// single MQTT payload, bypassing the live session flow.
func (p *Pipeline) handleTranscript(room string, payload []byte) error {
	var msg TranscriptMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parse transcript: %w", err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("transcript message with empty text")
	}

	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	_, err := p.IngestTranscript(ctx, api.TranscriptInput{
		Title:         msg.Title,
		Objectives:    msg.Objectives,
		Text:          msg.Text,
		Room:          room,
		Source:        "mqtt",
		WindowMinutes: msg.WindowMinutes,
	})
	return err
}
