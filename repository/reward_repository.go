package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
)

// RewardRepository implements the RewardRepository interface
type RewardRepository struct {
	q queryable
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *database.DB) *RewardRepository {
	return &RewardRepository{q: db.Pool}
}

// newRewardRepositoryWithTx creates a new reward repository with a transaction
func newRewardRepositoryWithTx(tx queryable) *RewardRepository {
	return &RewardRepository{q: tx}
}

const rewardColumns = `id, family_id, title, points_cost, reward_type, screen_minutes, stock, weekly_limit, restricted_child_id, is_active, created_at`

func scanReward(row pgx.Row) (*models.Reward, error) {
	var reward models.Reward
	err := row.Scan(
		&reward.ID,
		&reward.FamilyID,
		&reward.Title,
		&reward.PointsCost,
		&reward.RewardType,
		&reward.ScreenMinutes,
		&reward.Stock,
		&reward.WeeklyLimit,
		&reward.RestrictedChildID,
		&reward.IsActive,
		&reward.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

// Create inserts a reward and fills its ID and CreatedAt
func (r *RewardRepository) Create(ctx context.Context, reward *models.Reward) error {
	query := `
		INSERT INTO rewards (family_id, title, points_cost, reward_type, screen_minutes, stock, weekly_limit, restricted_child_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		reward.FamilyID,
		reward.Title,
		reward.PointsCost,
		reward.RewardType,
		reward.ScreenMinutes,
		reward.Stock,
		reward.WeeklyLimit,
		reward.RestrictedChildID,
		reward.IsActive,
	).Scan(&reward.ID, &reward.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

// GetByID retrieves a reward by id
func (r *RewardRepository) GetByID(ctx context.Context, id int64) (*models.Reward, error) {
	reward, err := scanReward(r.q.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward %d: %w", id, err)
	}
	return reward, nil
}

// ListByFamily returns the rewards of a family
func (r *RewardRepository) ListByFamily(ctx context.Context, familyID int64) ([]*models.Reward, error) {
	rows, err := r.q.Query(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE family_id = $1 ORDER BY id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*models.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}

// DecrementStock takes one unit of finite stock
func (r *RewardRepository) DecrementStock(ctx context.Context, id int64) (bool, error) {
	result, err := r.q.Exec(ctx, `UPDATE rewards SET stock = stock - 1 WHERE id = $1 AND stock > 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock of reward %d: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// IncrementStock returns one unit of finite stock
func (r *RewardRepository) IncrementStock(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE rewards SET stock = stock + 1 WHERE id = $1 AND stock IS NOT NULL`, id); err != nil {
		return fmt.Errorf("failed to increment stock of reward %d: %w", id, err)
	}
	return nil
}

// RewardPurchaseRepository implements the RewardPurchaseRepository interface
type RewardPurchaseRepository struct {
	q queryable
}

// NewRewardPurchaseRepository creates a new reward purchase repository
func NewRewardPurchaseRepository(db *database.DB) *RewardPurchaseRepository {
	return &RewardPurchaseRepository{q: db.Pool}
}

// newRewardPurchaseRepositoryWithTx creates a new reward purchase repository with a transaction
func newRewardPurchaseRepositoryWithTx(tx queryable) *RewardPurchaseRepository {
	return &RewardPurchaseRepository{q: tx}
}

const purchaseColumns = `id, reward_id, child_id, family_id, points_spent, status, purchased_at, use_requested_at, used_at, fulfilled_at, cancelled_at`

func scanPurchase(row pgx.Row) (*models.RewardPurchase, error) {
	var p models.RewardPurchase
	err := row.Scan(
		&p.ID,
		&p.RewardID,
		&p.ChildID,
		&p.FamilyID,
		&p.PointsSpent,
		&p.Status,
		&p.PurchasedAt,
		&p.UseRequestedAt,
		&p.UsedAt,
		&p.FulfilledAt,
		&p.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RewardPurchaseRepository) list(ctx context.Context, query string, args ...any) ([]*models.RewardPurchase, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*models.RewardPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}

// Create inserts a purchase and fills its ID
func (r *RewardPurchaseRepository) Create(ctx context.Context, p *models.RewardPurchase) error {
	query := `
		INSERT INTO reward_purchases (reward_id, child_id, family_id, points_spent, status, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query, p.RewardID, p.ChildID, p.FamilyID, p.PointsSpent, p.Status, p.PurchasedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// GetByID retrieves a purchase by id
func (r *RewardPurchaseRepository) GetByID(ctx context.Context, id int64) (*models.RewardPurchase, error) {
	p, err := scanPurchase(r.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM reward_purchases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase %d: %w", id, err)
	}
	return p, nil
}

// ListByChild returns a child's purchases, newest first
func (r *RewardPurchaseRepository) ListByChild(ctx context.Context, childID int64) ([]*models.RewardPurchase, error) {
	return r.list(ctx, `SELECT `+purchaseColumns+` FROM reward_purchases WHERE child_id = $1 ORDER BY purchased_at DESC, id DESC`, childID)
}

// CountSince counts non-refunded purchases of a reward by a child since a point in time
func (r *RewardPurchaseRepository) CountSince(ctx context.Context, rewardID, childID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM reward_purchases
		WHERE reward_id = $1 AND child_id = $2 AND purchased_at >= $3
		  AND status NOT IN ('cancelled', 'expired')
	`

	var count int
	if err := r.q.QueryRow(ctx, query, rewardID, childID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return count, nil
}

// timestampColumn returns the column stamped when a ticket enters a status
func timestampColumn(status models.PurchaseStatus) string {
	switch status {
	case models.PurchaseStatusUseRequested:
		return "use_requested_at"
	case models.PurchaseStatusUsed:
		return "used_at"
	case models.PurchaseStatusFulfilled:
		return "fulfilled_at"
	case models.PurchaseStatusCancelled, models.PurchaseStatusExpired:
		return "cancelled_at"
	}
	return ""
}

// Transition moves a ticket from one of the expected states to the target state
func (r *RewardPurchaseRepository) Transition(ctx context.Context, id int64, from []models.PurchaseStatus, to models.PurchaseStatus, at time.Time) (bool, error) {
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	var query string
	args := []any{id, to, fromStrings}
	switch column := timestampColumn(to); {
	case column != "":
		query = `UPDATE reward_purchases SET status = $2, ` + column + ` = $4 WHERE id = $1 AND status = ANY($3)`
		args = append(args, at)
	case to == models.PurchaseStatusActive:
		// A denied use request clears the request time
		query = `UPDATE reward_purchases SET status = $2, use_requested_at = NULL WHERE id = $1 AND status = ANY($3)`
	default:
		return false, fmt.Errorf("unsupported purchase transition to %s", to)
	}

	result, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to move purchase %d to %s: %w", id, to, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListUseRequestedBefore returns use_requested tickets requested before the cutoff
func (r *RewardPurchaseRepository) ListUseRequestedBefore(ctx context.Context, cutoff time.Time) ([]*models.RewardPurchase, error) {
	return r.list(ctx, `
		SELECT `+purchaseColumns+`
		FROM reward_purchases
		WHERE status = 'use_requested' AND use_requested_at < $1
		ORDER BY use_requested_at, id
	`, cutoff)
}
