package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// EventsHandler serves the SSE stream dashboards use to follow analyses,
// scores, and live capture sessions as they happen.
type EventsHandler struct {
	live LiveDataSource
}

func NewEventsHandler(live LiveDataSource) *EventsHandler {
	return &EventsHandler{live: live}
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events", h.StreamEvents)
}

// eventFilterFromQuery builds the subscriber filter from ?types=,
// ?rooms=, and ?transcripts= query parameters. Empty dimensions match
// everything.
func eventFilterFromQuery(r *http.Request) EventFilter {
	filter := EventFilter{
		Rooms: QueryStringList(r, "rooms"),
	}
	if v, ok := QueryString(r, "types"); ok {
		filter.Types = strings.Split(v, ",")
	}
	for _, id := range QueryIntList(r, "transcripts") {
		filter.Transcripts = append(filter.Transcripts, int64(id))
	}
	return filter
}

func writeSSE(w http.ResponseWriter, e SSEEvent) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

// StreamEvents handles GET /api/v1/events. It replays buffered events
// when the client reconnects with Last-Event-ID, then streams until the
// client goes away.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	// ResponseController flushes through middleware wrappers (the metrics
	// statusWriter exposes Unwrap for exactly this).
	rc := http.NewResponseController(w)

	filter := eventFilterFromQuery(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, e := range h.live.ReplaySince(lastEventID, filter) {
			writeSSE(w, e)
		}
	}
	if err := rc.Flush(); err != nil {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, cancel := h.live.Subscribe(filter)
	defer cancel()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			rc.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			rc.Flush()
		}
	}
}
