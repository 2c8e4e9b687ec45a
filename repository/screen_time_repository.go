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

// ScreenTimeRepository implements the ScreenTimeRepository interface
type ScreenTimeRepository struct {
	q queryable
}

// NewScreenTimeRepository creates a new screen time repository
func NewScreenTimeRepository(db *database.DB) *ScreenTimeRepository {
	return &ScreenTimeRepository{q: db.Pool}
}

// newScreenTimeRepositoryWithTx creates a new screen time repository with a transaction
func newScreenTimeRepositoryWithTx(tx queryable) *ScreenTimeRepository {
	return &ScreenTimeRepository{q: tx}
}

// GetSettings returns the per-child allowance override, or nil
func (r *ScreenTimeRepository) GetSettings(ctx context.Context, childID int64) (*models.ScreenTimeSettings, error) {
	query := `SELECT child_id, weekly_minutes, daily_limit_minutes, updated_at FROM screen_time_settings WHERE child_id = $1`

	var s models.ScreenTimeSettings
	err := r.q.QueryRow(ctx, query, childID).Scan(&s.ChildID, &s.WeeklyMinutes, &s.DailyLimitMinutes, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screen time settings: %w", err)
	}
	return &s, nil
}

// UpsertSettings stores the per-child allowance override
func (r *ScreenTimeRepository) UpsertSettings(ctx context.Context, s *models.ScreenTimeSettings) error {
	query := `
		INSERT INTO screen_time_settings (child_id, weekly_minutes, daily_limit_minutes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (child_id) DO UPDATE
		SET weekly_minutes = EXCLUDED.weekly_minutes,
		    daily_limit_minutes = EXCLUDED.daily_limit_minutes,
		    updated_at = EXCLUDED.updated_at
	`

	if _, err := r.q.Exec(ctx, query, s.ChildID, s.WeeklyMinutes, s.DailyLimitMinutes, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save screen time settings: %w", err)
	}
	return nil
}

const budgetColumns = `id, child_id, week_start_date, base_minutes, bonus_minutes, used_minutes, daily_limit_minutes`

// GetOrCreateBudgetForUpdate returns the week's budget row, creating it when absent, and locks it
func (r *ScreenTimeRepository) GetOrCreateBudgetForUpdate(ctx context.Context, childID int64, weekStart time.Time, baseMinutes, dailyLimitMinutes int) (*models.ScreenTimeBudget, error) {
	// Concurrent creators collapse onto one row through the unique constraint
	insert := `
		INSERT INTO screen_time_budgets (child_id, week_start_date, base_minutes, daily_limit_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (child_id, week_start_date) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, insert, childID, weekStart, baseMinutes, dailyLimitMinutes); err != nil {
		return nil, fmt.Errorf("failed to create screen time budget: %w", err)
	}

	query := `SELECT ` + budgetColumns + ` FROM screen_time_budgets WHERE child_id = $1 AND week_start_date = $2 FOR UPDATE`

	var b models.ScreenTimeBudget
	err := r.q.QueryRow(ctx, query, childID, weekStart).Scan(
		&b.ID,
		&b.ChildID,
		&b.WeekStartDate,
		&b.BaseMinutes,
		&b.BonusMinutes,
		&b.UsedMinutes,
		&b.DailyLimitMinutes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock screen time budget: %w", err)
	}
	return &b, nil
}

// UpdateBudget persists allowance, used and bonus minutes of a locked budget
func (r *ScreenTimeRepository) UpdateBudget(ctx context.Context, b *models.ScreenTimeBudget) error {
	query := `
		UPDATE screen_time_budgets
		SET base_minutes = $2, bonus_minutes = $3, used_minutes = $4, daily_limit_minutes = $5
		WHERE id = $1
	`

	if _, err := r.q.Exec(ctx, query, b.ID, b.BaseMinutes, b.BonusMinutes, b.UsedMinutes, b.DailyLimitMinutes); err != nil {
		return fmt.Errorf("failed to update screen time budget %d: %w", b.ID, err)
	}
	return nil
}

// RecordBonus logs where bonus minutes came from
func (r *ScreenTimeRepository) RecordBonus(ctx context.Context, childID int64, weekStart time.Time, minutes int, source string) error {
	query := `INSERT INTO screen_time_bonuses (child_id, week_start_date, minutes, source) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.Exec(ctx, query, childID, weekStart, minutes, source); err != nil {
		return fmt.Errorf("failed to record bonus minutes: %w", err)
	}
	return nil
}

// UsedOnDate sums logged usage minutes for a child on a calendar date
func (r *ScreenTimeRepository) UsedOnDate(ctx context.Context, childID int64, date time.Time) (int, error) {
	var used int
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(minutes), 0)::INTEGER FROM screen_time_usage WHERE child_id = $1 AND usage_date = $2`,
		childID, date,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return used, nil
}

const sessionColumns = `id, child_id, purchase_id, started_at, ended_at, paused_at, paused_seconds, minutes_used`

func scanSession(row pgx.Row) (*models.ScreenTimeSession, error) {
	var s models.ScreenTimeSession
	err := row.Scan(
		&s.ID,
		&s.ChildID,
		&s.PurchaseID,
		&s.StartedAt,
		&s.EndedAt,
		&s.PausedAt,
		&s.PausedSeconds,
		&s.MinutesUsed,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession opens a session. The open-session index turns a second one into a conflict.
func (r *ScreenTimeRepository) CreateSession(ctx context.Context, s *models.ScreenTimeSession) error {
	query := `
		INSERT INTO screen_time_sessions (child_id, purchase_id, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query, s.ChildID, s.PurchaseID, s.StartedAt).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err, "uq_screen_time_sessions_open") {
			return service.NewConflictError("a screen time session is already running")
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id
func (r *ScreenTimeRepository) GetSession(ctx context.Context, id int64) (*models.ScreenTimeSession, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM screen_time_sessions WHERE id = $1`, id)
}

// GetSessionForUpdate retrieves a session and locks its row
func (r *ScreenTimeRepository) GetSessionForUpdate(ctx context.Context, id int64) (*models.ScreenTimeSession, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM screen_time_sessions WHERE id = $1 FOR UPDATE`, id)
}

// GetOpenSession returns the child's session with no end time, or nil
func (r *ScreenTimeRepository) GetOpenSession(ctx context.Context, childID int64) (*models.ScreenTimeSession, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM screen_time_sessions WHERE child_id = $1 AND ended_at IS NULL`, childID)
}

func (r *ScreenTimeRepository) getSession(ctx context.Context, query string, arg int64) (*models.ScreenTimeSession, error) {
	s, err := scanSession(r.q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// UpdateSession persists end, pause and usage fields of a locked session
func (r *ScreenTimeRepository) UpdateSession(ctx context.Context, s *models.ScreenTimeSession) error {
	query := `
		UPDATE screen_time_sessions
		SET ended_at = $2, paused_at = $3, paused_seconds = $4, minutes_used = $5
		WHERE id = $1
	`

	if _, err := r.q.Exec(ctx, query, s.ID, s.EndedAt, s.PausedAt, s.PausedSeconds, s.MinutesUsed); err != nil {
		return fmt.Errorf("failed to update session %d: %w", s.ID, err)
	}
	return nil
}

// InsertUsage appends a usage-log row
func (r *ScreenTimeRepository) InsertUsage(ctx context.Context, u *models.ScreenTimeUsage) error {
	query := `
		INSERT INTO screen_time_usage (child_id, session_id, usage_date, minutes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := r.q.QueryRow(ctx, query, u.ChildID, u.SessionID, u.UsageDate, u.Minutes).Scan(&u.ID, &u.CreatedAt); err != nil {
		return fmt.Errorf("failed to log usage: %w", err)
	}
	return nil
}
