package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classlens/cl-engine/internal/database"
)

type StatsHandler struct {
	db   *database.DB
	live LiveDataSource
}

func NewStatsHandler(db *database.DB, live LiveDataSource) *StatsHandler {
	return &StatsHandler{db: db, live: live}
}

// GetStats returns aggregate engine statistics for dashboards.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to get stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// GetLive returns the real-time snapshot: analysis queue, watcher
// status, open capture sessions, and recorder presence.
func (h *StatsHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		WriteError(w, http.StatusServiceUnavailable, "live data not available")
		return
	}

	out := map[string]any{
		"queue":     h.live.QueueStats(),
		"sessions":  h.live.ActiveSessions(),
		"recorders": h.live.RecorderPresence(),
	}
	if ws := h.live.WatcherStatus(); ws != nil {
		out["watcher"] = ws
	}
	WriteJSON(w, http.StatusOK, out)
}

// Routes registers stats routes on the given router.
func (h *StatsHandler) Routes(r chi.Router) {
	r.Get("/stats", h.GetStats)
	r.Get("/live", h.GetLive)
}
