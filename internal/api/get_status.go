package api

import (
	"net/http"
	"strconv"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/timeline"
)

// GetDetectionHandler обработчик для получения текущего состояния детекции
func (h *Handlers) GetDetectionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// GetMarkersHandler returns timeline markers for the finished detection.
// zoom defaults to 1.
func (h *Handlers) GetMarkersHandler(w http.ResponseWriter, r *http.Request) {
	zoom := 1.0
	if raw := r.URL.Query().Get("zoom"); raw != "" {
		z, err := strconv.ParseFloat(raw, 64)
		if err != nil || z <= 0 {
			http.Error(w, "zoom must be a positive number", http.StatusBadRequest)
			return
		}
		zoom = z
	}

	markers := timeline.Markers(h.controller.Snapshot(), zoom)
	if markers == nil {
		markers = []timeline.Marker{}
	}
	writeJSON(w, http.StatusOK, markers)
}
