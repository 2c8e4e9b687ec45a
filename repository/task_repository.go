package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"familypoints/database"
	"familypoints/models"
	"familypoints/service"

	"github.com/jackc/pgx/v5"
)

// TaskRepository implements the TaskRepository interface
type TaskRepository struct {
	q queryable
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{q: db.Pool}
}

// newTaskRepositoryWithTx creates a new task repository with a transaction
func newTaskRepositoryWithTx(tx queryable) *TaskRepository {
	return &TaskRepository{q: tx}
}

const taskColumns = `id, family_id, title, points, approval_type, auto_approve_hours, timer_minutes, checklist, assigned_child_id, is_active, created_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	err := row.Scan(
		&task.ID,
		&task.FamilyID,
		&task.Title,
		&task.Points,
		&task.ApprovalType,
		&task.AutoApproveHours,
		&task.TimerMinutes,
		&task.Checklist,
		&task.AssignedChildID,
		&task.IsActive,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Create inserts a task and fills its ID and CreatedAt
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.Checklist == nil {
		task.Checklist = []string{}
	}

	query := `
		INSERT INTO tasks (family_id, title, points, approval_type, auto_approve_hours, timer_minutes, checklist, assigned_child_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		task.FamilyID,
		task.Title,
		task.Points,
		task.ApprovalType,
		task.AutoApproveHours,
		task.TimerMinutes,
		task.Checklist,
		task.AssignedChildID,
		task.IsActive,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by id
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	task, err := scanTask(r.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return task, nil
}

// ListByFamily returns the tasks of a family
func (r *TaskRepository) ListByFamily(ctx context.Context, familyID int64) ([]*models.Task, error) {
	rows, err := r.q.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE family_id = $1 ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskCompletionRepository implements the TaskCompletionRepository interface
type TaskCompletionRepository struct {
	q queryable
}

// NewTaskCompletionRepository creates a new task completion repository
func NewTaskCompletionRepository(db *database.DB) *TaskCompletionRepository {
	return &TaskCompletionRepository{q: db.Pool}
}

// newTaskCompletionRepositoryWithTx creates a new task completion repository with a transaction
func newTaskCompletionRepositoryWithTx(tx queryable) *TaskCompletionRepository {
	return &TaskCompletionRepository{q: tx}
}

const completionColumns = `id, task_id, child_id, family_id, status, evidence, fix_request, fix_request_count, points_awarded, approved_by, requested_at, approved_at`

func scanCompletion(row pgx.Row) (*models.TaskCompletion, error) {
	var c models.TaskCompletion
	err := row.Scan(
		&c.ID,
		&c.TaskID,
		&c.ChildID,
		&c.FamilyID,
		&c.Status,
		&c.Evidence,
		&c.FixRequest,
		&c.FixRequestCount,
		&c.PointsAwarded,
		&c.ApprovedBy,
		&c.RequestedAt,
		&c.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *TaskCompletionRepository) list(ctx context.Context, query string, args ...any) ([]*models.TaskCompletion, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []*models.TaskCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return completions, nil
}

// Create inserts a completion. The open-completion index turns a duplicate into a conflict.
func (r *TaskCompletionRepository) Create(ctx context.Context, c *models.TaskCompletion) error {
	query := `
		INSERT INTO task_completions (task_id, child_id, family_id, status, evidence, points_awarded, requested_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		c.TaskID,
		c.ChildID,
		c.FamilyID,
		c.Status,
		c.Evidence,
		c.PointsAwarded,
		c.RequestedAt,
		c.ApprovedAt,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err, "uq_task_completions_open") {
			return service.NewConflictError("task %d is already submitted and awaiting review", c.TaskID)
		}
		return fmt.Errorf("failed to create completion: %w", err)
	}
	return nil
}

// GetByID retrieves a completion by id
func (r *TaskCompletionRepository) GetByID(ctx context.Context, id int64) (*models.TaskCompletion, error) {
	c, err := scanCompletion(r.q.QueryRow(ctx, `SELECT `+completionColumns+` FROM task_completions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion %d: %w", id, err)
	}
	return c, nil
}

// GetOpen returns the open completion for (task, child), or nil
func (r *TaskCompletionRepository) GetOpen(ctx context.Context, taskID, childID int64) (*models.TaskCompletion, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM task_completions
		WHERE task_id = $1 AND child_id = $2 AND status IN ('pending', 'fix_requested')
	`

	c, err := scanCompletion(r.q.QueryRow(ctx, query, taskID, childID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open completion: %w", err)
	}
	return c, nil
}

// MarkApproved moves a completion out of one of the from states into an approved state
func (r *TaskCompletionRepository) MarkApproved(ctx context.Context, id int64, from []models.CompletionStatus, to models.CompletionStatus, approvedBy *int64, points int64, at time.Time) (bool, error) {
	query := `
		UPDATE task_completions
		SET status = $2, approved_by = $3, points_awarded = $4, approved_at = $5
		WHERE id = $1 AND status = ANY($6)
	`

	result, err := r.q.Exec(ctx, query, id, to, approvedBy, points, at, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("failed to approve completion %d: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// RequestFix moves a pending completion to fix_requested
func (r *TaskCompletionRepository) RequestFix(ctx context.Context, id int64, fix models.FixRequest) (bool, error) {
	if fix.Items == nil {
		fix.Items = []string{}
	}

	query := `
		UPDATE task_completions
		SET status = 'fix_requested', fix_request = $2, fix_request_count = fix_request_count + 1
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, id, fix)
	if err != nil {
		return false, fmt.Errorf("failed to request fix for completion %d: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// Resubmit moves a fix_requested completion back to pending
func (r *TaskCompletionRepository) Resubmit(ctx context.Context, id int64, evidence models.CompletionEvidence, at time.Time) (bool, error) {
	query := `
		UPDATE task_completions
		SET status = 'pending', evidence = $2, requested_at = $3
		WHERE id = $1 AND status = 'fix_requested'
	`

	result, err := r.q.Exec(ctx, query, id, evidence, at)
	if err != nil {
		return false, fmt.Errorf("failed to resubmit completion %d: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListPendingByFamily returns open completions awaiting a parent, oldest first
func (r *TaskCompletionRepository) ListPendingByFamily(ctx context.Context, familyID int64) ([]*models.TaskCompletion, error) {
	return r.list(ctx, `
		SELECT `+completionColumns+`
		FROM task_completions
		WHERE family_id = $1 AND status IN ('pending', 'fix_requested')
		ORDER BY requested_at, id
	`, familyID)
}

// ListAutoApproveDue returns pending completions whose auto-approval deadline has passed
func (r *TaskCompletionRepository) ListAutoApproveDue(ctx context.Context, now time.Time, defaultHours int) ([]*models.TaskCompletion, error) {
	query := `
		SELECT ` + prefixed("tc", completionColumns) + `
		FROM task_completions tc
		JOIN tasks t ON t.id = tc.task_id
		WHERE tc.status = 'pending'
		  AND COALESCE(t.auto_approve_hours, $2) > 0
		  AND tc.requested_at + make_interval(hours => COALESCE(t.auto_approve_hours, $2)) <= $1
		ORDER BY tc.requested_at, tc.id
	`
	return r.list(ctx, query, now, defaultHours)
}

func statusStrings(statuses []models.CompletionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
