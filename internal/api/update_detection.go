package api

import (
	"encoding/json"
	"net/http"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
)

// ClearDetectionHandler сбрасывает сессию в idle
func (h *Handlers) ClearDetectionHandler(w http.ResponseWriter, r *http.Request) {
	h.controller.ClearDetections()
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// SetViolationsHandler replaces the result with violations supplied by the
// caller, e.g. ones reviewed by hand.
func (h *Handlers) SetViolationsHandler(w http.ResponseWriter, r *http.Request) {
	var vs []models.Violation
	if err := json.NewDecoder(r.Body).Decode(&vs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.controller.SetViolations(vs)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}
