package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// UploadHandler accepts transcript files as multipart form uploads, the
// alternative to the JSON POST /transcripts body for plain-text exports.
type UploadHandler struct {
	ingester TranscriptIngester
	maxBytes int
	log      zerolog.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(ingester TranscriptIngester, maxBytes int, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		ingester: ingester,
		maxBytes: maxBytes,
		log:      log.With().Str("handler", "upload").Logger(),
	}
}

// Upload handles POST /api/v1/transcript-upload. The "file" field
// carries the transcript text; "title", "objectives", "room", and
// "window_minutes" are optional.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(h.maxBytes) + 1<<20); err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(h.maxBytes)+1))
	if err != nil {
		WriteErrorWithCode(w, ErrInvalidInput, "failed to read uploaded file")
		return
	}
	if len(data) > h.maxBytes {
		WriteErrorWithCode(w, ErrTooLarge, "transcript exceeds the size limit")
		return
	}
	if strings.TrimSpace(string(data)) == "" {
		WriteErrorWithCode(w, ErrInvalidInput, "uploaded file is empty")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	windowMinutes := 0
	if v := r.FormValue("window_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteErrorWithCode(w, ErrInvalidInput, "window_minutes must be an integer")
			return
		}
		windowMinutes = n
	}

	result, err := h.ingester.IngestTranscript(r.Context(), TranscriptInput{
		Title:         title,
		Objectives:    r.FormValue("objectives"),
		Text:          string(data),
		Room:          r.FormValue("room"),
		Source:        "upload",
		WindowMinutes: windowMinutes,
	})
	if err != nil {
		h.log.Error().Err(err).Str("file", header.Filename).Msg("upload processing failed")
		WriteClassifiedError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, result)
}
