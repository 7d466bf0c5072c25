package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/fttrader/contest-sync/internal/clients/broker"
	"github.com/fttrader/contest-sync/internal/database"
	"github.com/fttrader/contest-sync/internal/modules/updatequeue"
	"github.com/fttrader/contest-sync/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	broker    *broker.Client
	manager   *updatequeue.Manager
	scheduler *scheduler.Scheduler
	startedAt time.Time
	// Jobs (set after job registration in main.go)
	updateTickJob scheduler.Job
	autoUpdateJob scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	brokerClient *broker.Client,
	manager *updatequeue.Manager,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		db:        db,
		broker:    brokerClient,
		manager:   manager,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// SetJobs registers job references for manual triggering
// Called after jobs are registered in main.go
func (h *SystemHandlers) SetJobs(updateTick, autoUpdate scheduler.Job) {
	h.updateTickJob = updateTick
	h.autoUpdateJob = autoUpdate
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	QueuesCount    int     `json:"queues_count"`
	UpdatesRunning bool    `json:"updates_running"`
	ActiveRequests int     `json:"active_requests"`
	MaxRequests    int     `json:"max_requests"`
	DatabasePath   string  `json:"database_path"`
	DatabaseSizeMB float64 `json:"database_size_mb"`
}

// BrokerStatusResponse represents broker bridge connection status
type BrokerStatusResponse struct {
	Connected bool   `json:"connected"`
	LastCheck string `json:"last_check"`
	Message   string `json:"message,omitempty"`
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	status, err := h.manager.ContestStatus(nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get queue status")
		http.Error(w, "Failed to get system status", http.StatusInternalServerError)
		return
	}

	limiter := h.manager.Limiter()
	response := SystemStatusResponse{
		Status:         "running",
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		QueuesCount:    status.QueuesCount,
		UpdatesRunning: status.IsRunning,
		ActiveRequests: limiter.InFlight(),
		MaxRequests:    limiter.Max(),
		DatabasePath:   h.db.Path(),
	}
	if info, err := os.Stat(h.db.Path()); err == nil {
		response.DatabaseSizeMB = float64(info.Size()) / 1024 / 1024
	}

	h.writeJSON(w, response)
}

// HandleBrokerStatus returns broker bridge connection status
func (h *SystemHandlers) HandleBrokerStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Checking broker status")

	response := BrokerStatusResponse{
		Connected: true,
		LastCheck: time.Now().Format(time.RFC3339),
	}
	if err := h.broker.Ping(); err != nil {
		response.Connected = false
		response.Message = err.Error()
	}

	h.writeJSON(w, response)
}

// HandleTriggerUpdateTick triggers the update tick job immediately
// POST /api/system/jobs/update-tick
func (h *SystemHandlers) HandleTriggerUpdateTick(w http.ResponseWriter, r *http.Request) {
	if h.updateTickJob == nil {
		h.log.Warn().Msg("Update tick job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Update tick job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual update tick triggered")

	if err := h.scheduler.RunNow(h.updateTickJob); err != nil {
		h.log.Error().Err(err).Msg("Failed to trigger update tick")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Update tick triggered successfully",
	})
}

// HandleTriggerAutoUpdate triggers the auto update job immediately
// POST /api/system/jobs/auto-update
func (h *SystemHandlers) HandleTriggerAutoUpdate(w http.ResponseWriter, r *http.Request) {
	if h.autoUpdateJob == nil {
		h.log.Warn().Msg("Auto update job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Auto update job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual auto update triggered")

	if err := h.scheduler.RunNow(h.autoUpdateJob); err != nil {
		h.log.Error().Err(err).Msg("Failed to trigger auto update")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Auto update triggered successfully",
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
