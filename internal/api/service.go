package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Controller is the detection session the HTTP API drives.
type Controller interface {
	Start(ctx context.Context, req detection.Request) error
	StartFromFile(ctx context.Context, filename string, r io.Reader, req detection.Request) error
	ClearDetections()
	SetViolations(vs []models.Violation)
	Snapshot() detection.Snapshot
}

type Handlers struct {
	controller Controller
	metrics    http.Handler
	journal    TaskJournal
}

func NewHandlers(controller Controller, metrics http.Handler) *Handlers {
	return &Handlers{controller: controller, metrics: metrics}
}

// WithJournal exposes the task journal under /tasks.
func (h *Handlers) WithJournal(j TaskJournal) *Handlers {
	h.journal = j
	return h
}

// Router registers every endpoint on a new mux router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/detection", h.StartDetectionHandler).Methods("POST")
	r.HandleFunc("/detection/upload", h.UploadDetectionHandler).Methods("POST")
	r.HandleFunc("/detection", h.GetDetectionHandler).Methods("GET")
	r.HandleFunc("/detection", h.ClearDetectionHandler).Methods("DELETE")
	r.HandleFunc("/detection/violations", h.SetViolationsHandler).Methods("PUT")
	r.HandleFunc("/detection/markers", h.GetMarkersHandler).Methods("GET")
	if h.journal != nil {
		r.HandleFunc("/tasks", h.ListTasksHandler).Methods("GET")
		r.HandleFunc("/tasks/{task_id}", h.GetTaskHandler).Methods("GET")
	}
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("API: failed to write response")
	}
}
