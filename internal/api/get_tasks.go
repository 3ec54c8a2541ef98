package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/database"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const defaultTaskLimit = 50

// TaskJournal is the read side of the Postgres task journal.
type TaskJournal interface {
	GetTask(ctx context.Context, taskID string) (*database.TaskRecord, error)
	ListTasks(ctx context.Context, limit int) ([]database.TaskRecord, error)
}

// ListTasksHandler возвращает последние задачи из журнала
func (h *Handlers) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultTaskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	tasks, err := h.journal.ListTasks(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("API: list tasks")
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []database.TaskRecord{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTaskHandler обработчик для получения задачи по task_id
func (h *Handlers) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	task, err := h.journal.GetTask(r.Context(), taskID)
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("API: get task")
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
