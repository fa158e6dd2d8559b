package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/classlens/cl-engine/internal/database"
)

type SearchHandler struct {
	db *database.DB
}

func NewSearchHandler(db *database.DB) *SearchHandler {
	return &SearchHandler{db: db}
}

func (h *SearchHandler) Routes(r chi.Router) {
	r.Get("/search", h.Search)
}

// Search performs full-text search over window text, returning hits
// with their transcript context ranked by relevance.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		WriteErrorWithCode(w, ErrInvalidInput, "q parameter is required")
		return
	}

	p := ParsePagination(r)
	hits, total, err := h.db.SearchWindows(r.Context(), q, p.Limit, p.Offset)
	if err != nil {
		WriteErrorWithCode(w, ErrInternal, "search failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"total":   total,
		"limit":   p.Limit,
		"offset":  p.Offset,
	})
}
