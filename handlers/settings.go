package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"ptscheck/config"
	"ptscheck/services/continuity"
)

type SettingsHandler struct {
	Manager *config.Manager
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

// SettingsResponse wraps config.Settings with runtime information.
type SettingsResponse struct {
	config.Settings
	Path            string `json:"path"`
	RestartRequired bool   `json:"restartRequired,omitempty"`
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SettingsResponse{Settings: s, Path: h.Manager.Path()})
}

// PutSettings persists new settings. The running server keeps its engine;
// the new values apply on the next start.
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	s := config.DefaultSettings()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := continuity.NewValidator(s.Validation); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Manager.Save(s); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("[settings] saved %s", h.Manager.Path())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SettingsResponse{Settings: s, Path: h.Manager.Path(), RestartRequired: true})
}
