package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/classlens/cl-engine/internal/analyze"
	"github.com/classlens/cl-engine/internal/database"
)

// TranscriptInput is the shared ingest input. HTTP upload, the drop
// directory watcher, and MQTT capture all funnel through it.
type TranscriptInput struct {
	Title         string
	Objectives    string
	Text          string
	Room          string
	Source        string // "upload", "watcher", "mqtt"
	WindowMinutes int
}

// IngestedTranscript is the outcome of one split/persist/enqueue run.
type IngestedTranscript struct {
	Transcript *database.TranscriptAPI `json:"transcript"`
	Windows    []database.WindowAPI    `json:"windows"`
	Queued     int                     `json:"queued"`
}

// TranscriptIngester runs the shared ingest path. The pipeline
// implements it; the API layer owns the interface.
type TranscriptIngester interface {
	IngestTranscript(ctx context.Context, in TranscriptInput) (*IngestedTranscript, error)
}

type TranscriptsHandler struct {
	db       *database.DB
	ingester TranscriptIngester
	pool     *analyze.Pool // nil when analysis is disabled
}

func NewTranscriptsHandler(db *database.DB, ingester TranscriptIngester, pool *analyze.Pool) *TranscriptsHandler {
	return &TranscriptsHandler{db: db, ingester: ingester, pool: pool}
}

// CreateTranscript accepts a raw transcript, splits it into time
// windows, and persists it. Zero windows is a valid outcome (a
// transcript with no timestamp markers).
func (h *TranscriptsHandler) CreateTranscript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title         string `json:"title"`
		Objectives    string `json:"objectives"`
		Text          string `json:"text"`
		Room          string `json:"room"`
		WindowMinutes int    `json:"window_minutes"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		WriteErrorWithCode(w, ErrInvalidInput, "text is required")
		return
	}

	result, err := h.ingester.IngestTranscript(r.Context(), TranscriptInput{
		Title:         body.Title,
		Objectives:    body.Objectives,
		Text:          body.Text,
		Room:          body.Room,
		Source:        "upload",
		WindowMinutes: body.WindowMinutes,
	})
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, result)
}

// ListTranscripts returns transcripts matching the query filters.
func (h *TranscriptsHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)
	sort := ParseSort(r, "-created_at", database.TranscriptSortColumns)

	filter := database.TranscriptFilter{
		Limit:    p.Limit,
		Offset:   p.Offset,
		Sort:     sort.Field,
		SortDesc: sort.Desc,
	}
	if v, ok := QueryString(r, "room"); ok {
		filter.Room = v
	}
	if v, ok := QueryString(r, "source"); ok {
		filter.Source = v
	}
	if v, ok := QueryString(r, "q"); ok {
		filter.Search = v
	}
	if t, ok := QueryTime(r, "start_time"); ok {
		filter.StartTime = &t
	}
	if t, ok := QueryTime(r, "end_time"); ok {
		filter.EndTime = &t
	}

	transcripts, total, err := h.db.ListTranscripts(r.Context(), filter)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to list transcripts")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcripts": transcripts,
		"total":       total,
		"limit":       p.Limit,
		"offset":      p.Offset,
	})
}

// GetTranscript returns a single transcript by ID.
func (h *TranscriptsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid transcript ID")
		return
	}

	t, err := h.db.GetTranscript(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// DeleteTranscript removes a transcript and its windows and analyses.
func (h *TranscriptsHandler) DeleteTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid transcript ID")
		return
	}

	n, err := h.db.DeleteTranscript(r.Context(), id)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to delete transcript")
		return
	}
	if n == 0 {
		WriteErrorWithCode(w, ErrNotFound, "transcript not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// ListWindows returns a transcript's windows, optionally filtered by
// analysis status.
func (h *TranscriptsHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid transcript ID")
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", "pending", "analyzed", "failed":
	default:
		WriteErrorWithCode(w, ErrInvalidInput, "status must be pending, analyzed, or failed")
		return
	}

	if _, err := h.db.GetTranscript(r.Context(), id); err != nil {
		WriteClassifiedError(w, err)
		return
	}

	windows, err := h.db.ListWindows(r.Context(), id, status)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to list windows")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"windows": windows,
		"total":   len(windows),
	})
}

// ListResults returns a transcript's windows joined with their analyses.
// A failed window shows its error class next to its analyzed siblings.
func (h *TranscriptsHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid transcript ID")
		return
	}

	t, err := h.db.GetTranscript(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}

	results, err := h.db.ListResults(r.Context(), id)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "failed to list results")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcript": t,
		"results":    results,
	})
}

// AnalyzeTranscript (re-)enqueues a transcript's pending and failed
// windows, or a single window via ?window=. Failed windows flip back to
// pending before enqueueing.
func (h *TranscriptsHandler) AnalyzeTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid transcript ID")
		return
	}

	if h.pool == nil {
		WriteError(w, http.StatusServiceUnavailable, "analysis not configured")
		return
	}

	t, err := h.db.GetTranscript(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}

	var windows []database.WindowAPI
	if wid, ok := QueryInt64(r, "window"); ok {
		win, err := h.db.GetWindow(r.Context(), wid)
		if err != nil {
			WriteClassifiedError(w, err)
			return
		}
		if win.TranscriptID != id {
			WriteErrorWithCode(w, ErrInvalidInput, "window does not belong to this transcript")
			return
		}
		windows = []database.WindowAPI{*win}
	} else {
		windows, err = h.db.ListUnanalyzedWindows(r.Context(), id)
		if err != nil {
			WriteErrorWithCode(w, ErrInternal, "failed to list windows")
			return
		}
	}

	queued, skipped := 0, 0
	for _, win := range windows {
		if win.AnalysisStatus == "failed" {
			if err := h.db.ResetWindowPending(r.Context(), win.ID); err != nil {
				skipped++
				continue
			}
		}
		ok := h.pool.Enqueue(analyze.Job{
			TranscriptID: id,
			WindowID:     win.ID,
			WindowIndex:  win.Index,
			WindowText:   win.Text,
			Objectives:   t.Objectives,
		})
		if ok {
			queued++
		} else {
			skipped++
		}
	}

	if queued == 0 && skipped > 0 {
		WriteJSON(w, http.StatusConflict, map[string]any{
			"error":   "analysis queue full",
			"queued":  0,
			"skipped": skipped,
		})
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"queued":  queued,
		"skipped": skipped,
	})
}

// GetWindowAnalysis returns the analysis row for one window.
func (h *TranscriptsHandler) GetWindowAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid window ID")
		return
	}

	a, err := h.db.GetAnalysisByWindow(r.Context(), id)
	if err != nil {
		WriteClassifiedError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}
