package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"familypoints/internal/database"
	"familypoints/internal/models"

	"github.com/google/uuid"
)

// TaskRepository handles database operations for tasks
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, title, description, points, assigned_to, created_by, family_id, status,
	due_date, completed_at, approved_at, created_at, updated_at`

// InsertTask stores a new task. ID, status and timestamps are filled in when empty.
func (r *TaskRepository) InsertTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	task.CreatedAt = now()
	task.UpdatedAt = task.CreatedAt

	query := `
		INSERT INTO tasks (id, title, description, points, assigned_to, created_by, family_id, status,
			due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, nullString(&task.Description), task.Points, task.AssignedTo, task.CreatedBy,
		task.FamilyID, string(task.Status), nullTime(task.DueDate), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTaskByID retrieves a task by ID
func (r *TaskRepository) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns the tasks matching filter, newest first
func (r *TaskRepository) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.FamilyID != "" {
		conditions = append(conditions, "family_id = ?")
		args = append(args, filter.FamilyID)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus moves a task from one status to another only if it is still in from.
// Reaching completed stamps completed_at; reaching approved stamps approved_at; any other
// target clears approved_at. Returns false when the task was not in from.
func (r *TaskRepository) UpdateTaskStatus(ctx context.Context, id string, from, to models.TaskStatus, at time.Time) (bool, error) {
	var completedAt, approvedAt *time.Time
	switch to {
	case models.TaskCompleted:
		if from == models.TaskInProgress {
			completedAt = &at
		}
	case models.TaskApproved:
		approvedAt = &at
	}

	query := `
		UPDATE tasks
		SET status = ?, completed_at = COALESCE(?, completed_at), approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(to), nullTime(completedAt), nullTime(approvedAt), at.UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", err)
	}
	return n == 1, nil
}

// DeleteTask removes an unapproved task of familyID. Returns the number of rows deleted.
func (r *TaskRepository) DeleteTask(ctx context.Context, id, familyID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND family_id = ? AND status <> ?",
		id, familyID, string(models.TaskApproved))
	if err != nil {
		return 0, fmt.Errorf("failed to delete task: %w", err)
	}
	return result.RowsAffected()
}

// CountTasksByStatus counts a family's tasks in status
func (r *TaskRepository) CountTasksByStatus(ctx context.Context, familyID string, status models.TaskStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE family_id = ? AND status = ?",
		familyID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		description sql.NullString
		status      string
		dueDate     sql.NullTime
		completedAt sql.NullTime
		approvedAt  sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.Points,
		&task.AssignedTo,
		&task.CreatedBy,
		&task.FamilyID,
		&status,
		&dueDate,
		&completedAt,
		&approvedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if task.Status, err = models.ParseTaskStatus(status); err != nil {
		return nil, err
	}
	task.Description = description.String
	task.DueDate = timePtr(dueDate)
	task.CompletedAt = timePtr(completedAt)
	task.ApprovedAt = timePtr(approvedAt)
	return &task, nil
}
