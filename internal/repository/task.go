package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"taskkash/internal/model"
)

const taskColumns = `id, title, description, category, reward_points, validation_type,
	instructions, links, deadline, status, created_by, created_at, updated_at`

// TaskRepository handles task and task start persistence.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a new TaskRepository instance.
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Category,
		&t.RewardPoints,
		&t.ValidationType,
		&t.Instructions,
		&t.Links,
		&t.Deadline,
		&t.Status,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	query := `
		INSERT INTO tasks (title, description, category, reward_points, validation_type,
			instructions, links, deadline, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING ` + taskColumns

	t, err := scanTask(r.db.QueryRow(ctx, query,
		task.Title, task.Description, task.Category, task.RewardPoints, task.ValidationType,
		task.Instructions, nonNilStrings(task.Links), task.Deadline, task.Status, task.CreatedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// Update replaces the editable fields of a task.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) (*model.Task, error) {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, category = $4, reward_points = $5, validation_type = $6,
			instructions = $7, links = $8, deadline = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns

	t, err := scanTask(r.db.QueryRow(ctx, query,
		task.ID, task.Title, task.Description, task.Category, task.RewardPoints, task.ValidationType,
		task.Instructions, nonNilStrings(task.Links), task.Deadline,
	))
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound, "task")
	}
	return t, nil
}

// GetByID retrieves a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound, "task")
	}
	return t, nil
}

// SetStatus changes a task's status.
func (r *TaskRepository) SetStatus(ctx context.Context, id int64, status string) (*model.Task, error) {
	query := `
		UPDATE tasks SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns

	t, err := scanTask(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound, "task")
	}
	return t, nil
}

// List returns tasks newest first.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]*model.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, filter.Status, filter.Category, PageLimit(filter.Limit), PageOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// ExpireOverdue moves active tasks past their deadline to expired.
func (r *TaskRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE tasks SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND deadline IS NOT NULL AND deadline <= $1
	`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Start records that the user started the task. It reports false when a
// start was already recorded.
func (r *TaskRepository) Start(ctx context.Context, userID, taskID int64, at time.Time) (bool, error) {
	const query = `
		INSERT INTO task_starts (user_id, task_id, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, task_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, userID, taskID, at)
	if err != nil {
		return false, fmt.Errorf("failed to record task start: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StartsByUser maps task ID to start time for one user.
func (r *TaskRepository) StartsByUser(ctx context.Context, userID int64) (map[int64]time.Time, error) {
	const query = `SELECT task_id, started_at FROM task_starts WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task starts: %w", err)
	}
	defer rows.Close()

	starts := make(map[int64]time.Time)
	for rows.Next() {
		var taskID int64
		var at time.Time
		if err := rows.Scan(&taskID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan task start: %w", err)
		}
		starts[taskID] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task starts: %w", err)
	}
	return starts, nil
}
