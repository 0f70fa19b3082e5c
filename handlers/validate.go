package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"ptscheck/config"
	"ptscheck/internal/metrics"
	"ptscheck/services/loader"
	"ptscheck/services/validation"
)

const maxUploadSize = 100 * 1024 * 1024 // 100 MB max

// ValidateHandler handles schedule validation requests.
type ValidateHandler struct {
	loader    *loader.Service
	validator *validation.Service
	rules     *config.Rules
	loc       *time.Location
	metrics   *metrics.Metrics
}

// NewValidateHandler creates a new validation handler. m may be nil.
func NewValidateHandler(l *loader.Service, v *validation.Service, rules *config.Rules, loc *time.Location, m *metrics.Metrics) *ValidateHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ValidateHandler{
		loader:    l,
		validator: v,
		rules:     rules,
		loc:       loc,
		metrics:   m,
	}
}

// Validate decodes the uploaded schedule and returns the report.
// POST /api/validate?source=name.xml&day=2024-01-15
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil || h.validator == nil {
		http.Error(w, `{"error":"validation service not available"}`, http.StatusServiceUnavailable)
		return
	}

	var day time.Time
	if dayParam := r.URL.Query().Get("day"); dayParam != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dayParam, h.loc)
		if err != nil {
			http.Error(w, `{"error":"invalid day parameter, expected YYYY-MM-DD"}`, http.StatusBadRequest)
			return
		}
		day = parsed
	}

	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		source = "upload"
	}

	start := time.Now()
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	schedule, err := h.loader.Decode(body, source)
	if err != nil {
		log.Printf("[validate] rejected %s: %v", source, err)
		if h.metrics != nil {
			h.metrics.ObserveFailure()
		}
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	report := h.validator.Validate(schedule)
	if h.metrics != nil {
		h.metrics.ObserveReport(report, time.Since(start))
	}
	if !day.IsZero() {
		report = report.ForDay(day, h.loc)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Printf("[validate] Validate JSON encode error: %v", err)
	}
}

// GetRules returns the active rules table.
// GET /api/rules
func (h *ValidateHandler) GetRules(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		http.Error(w, `{"error":"rules not loaded"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.rules); err != nil {
		log.Printf("[validate] GetRules JSON encode error: %v", err)
	}
}

// Health reports that the server is up.
// GET /api/health
func (h *ValidateHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}


func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
