package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/rs/zerolog/log"
)

const journalTimeout = 5 * time.Second

// TaskRecord is one journaled detection task. Only lifecycle fields are kept;
// violations themselves stay in memory.
type TaskRecord struct {
	TaskID     string                 `json:"task_id"`
	VideoPath  string                 `json:"video_path"`
	Status     models.DetectionStatus `json:"status"`
	Progress   int                    `json:"progress"`
	Violations int                    `json:"violations"`
	Error      string                 `json:"error"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (d *Database) UpsertTask(ctx context.Context, ev models.StatusEvent) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO detection_tasks (task_id, video_path, status, progress, violations, error, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (task_id) DO UPDATE SET status = $3, progress = $4, violations = $5, error = $6, updated_at = $7`,
		ev.TaskID,
		ev.VideoPath,
		ev.Status,
		ev.Progress,
		ev.Violations,
		ev.Error,
		ev.TimeStamp,
	)

	return err
}

func (d *Database) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT task_id, video_path, status, progress, violations, error, created_at, updated_at
		FROM detection_tasks
		WHERE task_id = $1
	`, taskID)

	var t TaskRecord
	err := row.Scan(&t.TaskID, &t.VideoPath, &t.Status, &t.Progress, &t.Violations, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // задача не найдена - это не ошибка
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &t, nil
}

// ListTasks returns the most recently updated tasks first.
func (d *Database) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT task_id, video_path, status, progress, violations, error, created_at, updated_at
		FROM detection_tasks
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.TaskID, &t.VideoPath, &t.Status, &t.Progress, &t.Violations, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// Observe journals task events; it implements detection.Observer. Events
// without a task id (before submission, after a clear) are skipped.
func (d *Database) Observe(ev models.StatusEvent) {
	if ev.TaskID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := d.UpsertTask(ctx, ev); err != nil {
		log.Error().Err(err).Str("task_id", ev.TaskID).Msg("Journal: failed to write task")
	}
}
