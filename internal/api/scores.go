package api

import (
	"io"
	"net/http"

	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/score"
	"github.com/classlens/cl-engine/internal/storage"
)

type ScoresHandler struct {
	db      *database.DB
	service *score.Service // nil when scoring is disabled
	clips   storage.ClipStore
}

func NewScoresHandler(db *database.DB, service *score.Service, clips storage.ClipStore) *ScoresHandler {
	return &ScoresHandler{db: db, service: service, clips: clips}
}

// CreateScore runs one pronunciation attempt end to end and returns the
// persisted row. Vendor failures still return the stored failed attempt
// alongside the error code.
func (h *ScoresHandler) CreateScore(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		WriteError(w, http.StatusServiceUnavailable, "scoring not configured")
		return
	}

	var req score.Request
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid request body")
		return
	}

	room := r.URL.Query().Get("room")
	row, err := h.service.Evaluate(r.Context(), req, room)
	if err != nil {
		if row != nil {
			// Attempt was persisted as failed; expose it with the class.
			WriteJSON(w, statusForClass(row.ErrorCode), map[string]any{
				"error":   err.Error(),
				"code":    row.ErrorCode,
				"attempt": row,
			})
			return
		}
		WriteClassifiedError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

func statusForClass(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ListScores returns score attempts matching the query filters.
func (h *ScoresHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	filter := database.ScoreAttemptFilter{
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v, ok := QueryString(r, "accent"); ok {
		filter.Accent = v
	}
	if v, ok := QueryString(r, "room"); ok {
		filter.Room = v
	}
	if v, ok := QueryString(r, "status"); ok {
		filter.Status = v
	}
	if n, ok := QueryInt(r, "min_overall"); ok {
		filter.MinOverall = &n
	}
	if t, ok := QueryTime(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := QueryTime(r, "end_time"); ok {
		filter.EndTime = &t
	}

	attempts, total, err := h.db.ListScoreAttempts(r.Context(), filter)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to list score attempts")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"total":    total,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

// GetScore returns a single score attempt by ID.
func (h *ScoresHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid attempt ID")
		return
	}

	row, err := h.db.GetScoreAttempt(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, row)
}

// GetScoreAudio streams the stored clip for an attempt.
func (h *ScoresHandler) GetScoreAudio(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid attempt ID")
		return
	}

	row, err := h.db.GetScoreAttempt(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}
	if row.AudioKey == "" || h.clips == nil {
		WriteErrorWithCode(w, ErrNotFound, "no audio stored for this attempt")
		return
	}

	// S3-backed stores mint a presigned URL so clip bytes never proxy
	// through the engine.
	if u, ok := h.clips.(storage.URLer); ok {
		if url, err := u.URL(r.Context(), row.AudioKey); err == nil && url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
	}

	rc, err := h.clips.Open(r.Context(), row.AudioKey)
	if err != nil {
		WriteErrorWithCode(w, ErrNotFound, "clip not found in store")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", row.Mime)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	io.Copy(w, rc)
}
