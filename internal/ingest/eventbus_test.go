package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/classlens/cl-engine/internal/api"
)

// ── EventBus Publish/Subscribe ────────────────────────────────────────

func TestEventBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		defer cancel()

		eb.Publish(EventData{
			Type:         "transcript.created",
			TranscriptID: 7,
			Room:         "room-b",
			Payload:      map[string]string{"title": "hello"},
		})

		select {
		case evt := <-ch:
			if evt.Type != "transcript.created" {
				t.Errorf("Type = %q, want transcript.created", evt.Type)
			}
			if evt.TranscriptID != 7 {
				t.Errorf("TranscriptID = %d, want 7", evt.TranscriptID)
			}
			if evt.Room != "room-b" {
				t.Errorf("Room = %q, want room-b", evt.Room)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			// Verify data is valid JSON
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["title"] != "hello" {
				t.Errorf("payload title = %q, want hello", payload["title"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{Types: []string{"session.ended"}})
		defer cancel()

		eb.Publish(EventData{Type: "session.started", Payload: "x"})

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
			// expected
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		cancel()

		eb.Publish(EventData{Type: "session.started", Payload: "x"})

		select {
		case _, ok := <-ch:
			if ok {
				t.Fatal("should not receive event after cancel")
			}
		case <-time.After(50 * time.Millisecond):
			// expected: channel not closed, just removed from map
		}
	})

	t.Run("multiple_subscribers", func(t *testing.T) {
		eb := NewEventBus(64)
		ch1, cancel1 := eb.Subscribe(api.EventFilter{})
		defer cancel1()
		ch2, cancel2 := eb.Subscribe(api.EventFilter{})
		defer cancel2()

		eb.Publish(EventData{Type: "session.started", Payload: "x"})

		for i, ch := range []<-chan api.SSEEvent{ch1, ch2} {
			select {
			case evt := <-ch:
				if evt.Type != "session.started" {
					t.Errorf("subscriber %d: Type = %q, want session.started", i, evt.Type)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})
}

// ── EventBus ReplaySince ─────────────────────────────────────────────

func TestEventBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "session.started", Payload: "a"})
		eb.Publish(EventData{Type: "session.ended", Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{})
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "session.started", Payload: "a"})

		// Grab the first event's ID from the ring
		allEvents := eb.ReplaySince("", api.EventFilter{})
		if len(allEvents) != 1 {
			t.Fatalf("expected 1 event, got %d", len(allEvents))
		}
		firstID := allEvents[0].ID

		eb.Publish(EventData{Type: "session.ended", Payload: "b"})

		events := eb.ReplaySince(firstID, api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (after first)", len(events))
		}
		if events[0].Type != "session.ended" {
			t.Errorf("Type = %q, want session.ended", events[0].Type)
		}
	})

	t.Run("replay_with_filter", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "transcript.created", TranscriptID: 1, Payload: "a"})
		eb.Publish(EventData{Type: "transcript.created", TranscriptID: 2, Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{Transcripts: []int64{2}})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (filtered)", len(events))
		}
		if events[0].TranscriptID != 2 {
			t.Errorf("TranscriptID = %d, want 2", events[0].TranscriptID)
		}
	})

	t.Run("unknown_lastID_replays_all", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "session.started", Payload: "a"})

		// When lastEventID is not found (overwritten by ring wrap), all available
		// events are returned so the client doesn't silently miss everything.
		events := eb.ReplaySince("nonexistent-id", api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (fallback replay all)", len(events))
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		event  api.SSEEvent
		filter api.EventFilter
		want   bool
	}{
		// Empty filter matches everything
		{
			name:   "empty_filter_matches_all",
			event:  api.SSEEvent{Type: "session.started", Room: "room-b"},
			filter: api.EventFilter{},
			want:   true,
		},

		// Type matching
		{
			name:   "type_match",
			event:  api.SSEEvent{Type: "session.started"},
			filter: api.EventFilter{Types: []string{"session.started"}},
			want:   true,
		},
		{
			name:   "type_no_match",
			event:  api.SSEEvent{Type: "session.started"},
			filter: api.EventFilter{Types: []string{"session.ended"}},
			want:   false,
		},
		{
			name:   "type_multiple_one_matches",
			event:  api.SSEEvent{Type: "session.ended"},
			filter: api.EventFilter{Types: []string{"session.started", "session.ended"}},
			want:   true,
		},

		// Room filter
		{
			name:   "room_match",
			event:  api.SSEEvent{Type: "session.started", Room: "room-b"},
			filter: api.EventFilter{Rooms: []string{"room-b", "lab-2"}},
			want:   true,
		},
		{
			name:   "room_no_match",
			event:  api.SSEEvent{Type: "session.started", Room: "room-c"},
			filter: api.EventFilter{Rooms: []string{"room-b", "lab-2"}},
			want:   false,
		},
		{
			name:   "roomless_event_passes_room_filter",
			event:  api.SSEEvent{Type: "analysis.completed", Room: ""},
			filter: api.EventFilter{Rooms: []string{"room-b"}},
			want:   true,
		},

		// Transcript filter
		{
			name:   "transcript_match",
			event:  api.SSEEvent{Type: "analysis.completed", TranscriptID: 100},
			filter: api.EventFilter{Transcripts: []int64{100, 200}},
			want:   true,
		},
		{
			name:   "transcript_no_match",
			event:  api.SSEEvent{Type: "analysis.completed", TranscriptID: 300},
			filter: api.EventFilter{Transcripts: []int64{100, 200}},
			want:   false,
		},
		{
			name:   "transcriptless_event_passes_through",
			event:  api.SSEEvent{Type: "recorder.status", TranscriptID: 0},
			filter: api.EventFilter{Transcripts: []int64{100}},
			want:   true,
		},

		// Multi-dimension AND logic
		{
			name:   "multi_all_pass",
			event:  api.SSEEvent{Type: "transcript.created", TranscriptID: 100, Room: "room-b"},
			filter: api.EventFilter{Types: []string{"transcript.created"}, Rooms: []string{"room-b"}, Transcripts: []int64{100}},
			want:   true,
		},
		{
			name:   "multi_one_fails",
			event:  api.SSEEvent{Type: "transcript.created", TranscriptID: 300, Room: "room-b"},
			filter: api.EventFilter{Types: []string{"transcript.created"}, Rooms: []string{"room-b"}, Transcripts: []int64{100}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesFilter(tt.event, tt.filter)
			if got != tt.want {
				t.Errorf("matchesFilter(%+v, %+v) = %v, want %v", tt.event, tt.filter, got, tt.want)
			}
		})
	}
}
