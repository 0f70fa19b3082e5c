package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ptscheck/services/duration"
	"ptscheck/services/scheduler"
)

// DurationsHandler exposes the state of the reference-duration oracle and
// lets clients trigger a refresh from the configured export URL.
type DurationsHandler struct {
	live      *duration.Live
	scheduler *scheduler.Service
}

// NewDurationsHandler creates a durations handler. scheduler may be nil when
// no refresh is configured.
func NewDurationsHandler(live *duration.Live, s *scheduler.Service) *DurationsHandler {
	return &DurationsHandler{live: live, scheduler: s}
}

// DurationsStatus is the response of GET /api/durations.
type DurationsStatus struct {
	Entries int                   `json:"entries"`
	Refresh *scheduler.TaskStatus `json:"refresh,omitempty"`
}

// Status returns the number of loaded reference durations and the refresh task state
// GET /api/durations
func (h *DurationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := DurationsStatus{}
	if h.live != nil {
		resp.Entries = h.live.Len()
	}
	if h.scheduler != nil {
		status := h.scheduler.Status()
		resp.Refresh = &status
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Refresh starts a refresh of the duration table in the background
// POST /api/durations/refresh
func (h *DurationsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "duration refresh is not configured")
		return
	}

	if err := h.scheduler.RunNow(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrTaskRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Refresh started",
	})
}
