package repository

import (
	"context"
	"errors"
	"fmt"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
)

// GoalRepository implements the GoalRepository interface
type GoalRepository struct {
	q queryable
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(db *database.DB) *GoalRepository {
	return &GoalRepository{q: db.Pool}
}

// newGoalRepositoryWithTx creates a new goal repository with a transaction
func newGoalRepositoryWithTx(tx queryable) *GoalRepository {
	return &GoalRepository{q: tx}
}

const goalColumns = `id, child_id, family_id, title, target_points, current_points, milestone_bonuses, milestones_completed, is_completed, completed_at, created_at`

func scanGoal(row pgx.Row) (*models.Goal, error) {
	var goal models.Goal
	var completed []int32
	err := row.Scan(
		&goal.ID,
		&goal.ChildID,
		&goal.FamilyID,
		&goal.Title,
		&goal.TargetPoints,
		&goal.CurrentPoints,
		&goal.MilestoneBonuses,
		&completed,
		&goal.IsCompleted,
		&goal.CompletedAt,
		&goal.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	goal.MilestonesCompleted = toInts(completed)
	if goal.MilestoneBonuses == nil {
		goal.MilestoneBonuses = map[int]int64{}
	}
	return &goal, nil
}

// Create inserts a goal and fills its ID and CreatedAt
func (r *GoalRepository) Create(ctx context.Context, goal *models.Goal) error {
	if goal.MilestoneBonuses == nil {
		goal.MilestoneBonuses = map[int]int64{}
	}

	query := `
		INSERT INTO goals (child_id, family_id, title, target_points, current_points, milestone_bonuses, milestones_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		goal.ChildID,
		goal.FamilyID,
		goal.Title,
		goal.TargetPoints,
		goal.CurrentPoints,
		goal.MilestoneBonuses,
		toInt32s(goal.MilestonesCompleted),
	).Scan(&goal.ID, &goal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}
	return nil
}

// GetByID retrieves a goal by id
func (r *GoalRepository) GetByID(ctx context.Context, id int64) (*models.Goal, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate retrieves a goal and locks its row until the transaction ends
func (r *GoalRepository) GetForUpdate(ctx context.Context, id int64) (*models.Goal, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *GoalRepository) get(ctx context.Context, id int64, lock string) (*models.Goal, error) {
	goal, err := scanGoal(r.q.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal %d: %w", id, err)
	}
	return goal, nil
}

// UpdateProgress persists current points, consumed milestones and completion
func (r *GoalRepository) UpdateProgress(ctx context.Context, goal *models.Goal) error {
	query := `
		UPDATE goals
		SET current_points = $2, milestones_completed = $3, is_completed = $4, completed_at = $5
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query,
		goal.ID,
		goal.CurrentPoints,
		toInt32s(goal.MilestonesCompleted),
		goal.IsCompleted,
		goal.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update goal %d: %w", goal.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("goal %d not found", goal.ID)
	}
	return nil
}

// ListByChild returns a child's goals
func (r *GoalRepository) ListByChild(ctx context.Context, childID int64) ([]*models.Goal, error) {
	rows, err := r.q.Query(ctx, `SELECT `+goalColumns+` FROM goals WHERE child_id = $1 ORDER BY id`, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// CreateDeposit records a transfer between the account and the goal
func (r *GoalRepository) CreateDeposit(ctx context.Context, deposit *models.GoalDeposit) error {
	query := `
		INSERT INTO goal_deposits (goal_id, child_id, amount, type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, deposit.GoalID, deposit.ChildID, deposit.Amount, deposit.Type).
		Scan(&deposit.ID, &deposit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record goal %s: %w", deposit.Type, err)
	}
	return nil
}
