package contests

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles HTTP requests for contests.
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a contests handler.
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "contests").Logger(),
	}
}

// HandleGetContest handles GET /api/contests/{id}.
func (h *Handler) HandleGetContest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid contest id", http.StatusBadRequest)
		return
	}

	contest, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("contest_id", id).Msg("Failed to get contest")
		http.Error(w, "Failed to get contest", http.StatusInternalServerError)
		return
	}
	if contest == nil {
		http.Error(w, "Contest not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(contest)
}

// HandleListActive handles GET /api/contests/active.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	contests, err := h.repo.ListActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list active contests")
		http.Error(w, "Failed to list contests", http.StatusInternalServerError)
		return
	}
	if contests == nil {
		contests = []Contest{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(contests)
}
