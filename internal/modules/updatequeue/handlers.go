package updatequeue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// Handler exposes the queue engine over HTTP.
type Handler struct {
	manager *Manager
	log     zerolog.Logger
}

// NewHandler creates an updates handler.
func NewHandler(manager *Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "updatequeue").Logger(),
	}
}

type createQueueRequest struct {
	AccountIDs []int64 `json:"account_ids"`
	ContestID  *int64  `json:"contest_id,omitempty"`
}

// HandleCreateQueue handles POST /api/updates/queues.
func (h *Handler) HandleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handle, err := h.manager.CreateQueue(req.AccountIDs, req.ContestID, false)
	if err != nil {
		if errors.Is(err, ErrEmptyAccountSet) {
			http.Error(w, "No accounts selected for update", http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Failed to create queue")
		http.Error(w, "Failed to create queue", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(handle)
}

// HandleGetStatus handles GET /api/updates/status. With ?queue_id= it returns
// one queue's snapshot; with ?contest_id= (or neither) it returns an aggregate.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	if queueID := r.URL.Query().Get("queue_id"); queueID != "" {
		snapshot, err := h.manager.QueueStatus(queueID)
		if err != nil {
			if errors.Is(err, ErrQueueNotFound) {
				http.Error(w, "Queue not found", http.StatusNotFound)
				return
			}
			h.log.Error().Err(err).Str("queue_id", queueID).Msg("Failed to get queue status")
			http.Error(w, "Failed to get queue status", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
		return
	}

	var contestID *int64
	if raw := r.URL.Query().Get("contest_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid contest id", http.StatusBadRequest)
			return
		}
		contestID = &id
	}

	agg, err := h.manager.ContestStatus(contestID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get aggregate status")
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agg)
}

// HandleClearQueues handles POST /api/updates/queues/clear.
func (h *Handler) HandleClearQueues(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.manager.ClearAllQueues()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to clear queues")
		http.Error(w, "Failed to clear queues", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"cleared_count": cleared,
	})
}

// HandleResetActiveRequests handles POST /api/updates/reset-active-requests.
func (h *Handler) HandleResetActiveRequests(w http.ResponseWriter, r *http.Request) {
	previous := h.manager.ResetActiveRequests()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"previous": previous,
		"active":   0,
	})
}

// HandleGetHistory handles GET /api/updates/history.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.manager.History(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get update history")
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []HistoryRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
