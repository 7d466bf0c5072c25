package accounts

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles account HTTP requests
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a new accounts handler
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "accounts").Logger(),
	}
}

// HandleGetAccount handles GET /{id}
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	account, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("account_id", id).Msg("Failed to get account")
		http.Error(w, "Failed to retrieve account", http.StatusInternalServerError)
		return
	}
	if account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// HandleGetOrders handles GET /{id}/orders
func (h *Handler) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	orders, err := h.repo.GetOrders(id)
	if err != nil {
		h.log.Error().Err(err).Int64("account_id", id).Msg("Failed to get orders")
		http.Error(w, "Failed to retrieve orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []OpenOrder{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// HandleListByContest handles GET /contest/{contestID}
func (h *Handler) HandleListByContest(w http.ResponseWriter, r *http.Request) {
	contestID, err := strconv.ParseInt(chi.URLParam(r, "contestID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid contest id", http.StatusBadRequest)
		return
	}

	accounts, err := h.repo.ListByContest(contestID)
	if err != nil {
		h.log.Error().Err(err).Int64("contest_id", contestID).Msg("Failed to list accounts")
		http.Error(w, "Failed to retrieve accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}
