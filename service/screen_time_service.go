package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"familypoints/config"
	"familypoints/events"
	"familypoints/models"

	log "github.com/sirupsen/logrus"
)

type screenTimeService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	now        func() time.Time
}

// NewScreenTimeService creates a new screen-time quota service
func NewScreenTimeService(uowFactory UnitOfWorkFactory, cfg *config.Config) ScreenTimeService {
	return &screenTimeService{
		uowFactory: uowFactory,
		config:     cfg,
		now:        time.Now,
	}
}

// lockBudget returns the child's budget for the week containing now, locked for the
// rest of the transaction. The lock serializes all quota checks for one child.
func lockBudget(ctx context.Context, uow UnitOfWork, cfg *config.Config, childID int64, now time.Time) (*models.ScreenTimeBudget, error) {
	base, daily := cfg.ScreenTimeBaseMinutes, cfg.ScreenTimeDailyLimitMinutes
	settings, err := uow.ScreenTimeRepository().GetSettings(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get screen time settings: %w", err)
	}
	if settings != nil {
		base, daily = settings.WeeklyMinutes, settings.DailyLimitMinutes
	}

	budget, err := uow.ScreenTimeRepository().GetOrCreateBudgetForUpdate(ctx, childID, WeekStart(now, cfg.WeekStartDay), base, daily)
	if err != nil {
		return nil, fmt.Errorf("failed to get screen time budget: %w", err)
	}
	return budget, nil
}

// availableMinutes returns minutes used today and min(weekly remaining, daily remaining)
func availableMinutes(ctx context.Context, uow UnitOfWork, budget *models.ScreenTimeBudget, now time.Time) (int, int, error) {
	usedToday, err := uow.ScreenTimeRepository().UsedOnDate(ctx, budget.ChildID, DateOf(now))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get today's usage: %w", err)
	}
	return usedToday, min(budget.WeeklyRemaining(), budget.DailyRemaining(usedToday)), nil
}

// startSessionInTx opens a session after checking the quota. purchaseID links
// the session to a redeemed screen-time ticket.
func startSessionInTx(ctx context.Context, uow UnitOfWork, cfg *config.Config, childID int64, purchaseID *int64, now time.Time) (*models.ScreenTimeSession, error) {
	budget, err := lockBudget(ctx, uow, cfg, childID, now)
	if err != nil {
		return nil, err
	}

	open, err := uow.ScreenTimeRepository().GetOpenSession(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open session: %w", err)
	}
	if open != nil {
		return nil, NewConflictError("a screen time session is already running")
	}

	_, available, err := availableMinutes(ctx, uow, budget, now)
	if err != nil {
		return nil, err
	}
	if available <= 0 {
		return nil, NewQuotaExceededError(0, "no screen time left")
	}

	session := &models.ScreenTimeSession{
		ChildID:    childID,
		PurchaseID: purchaseID,
		StartedAt:  now,
	}
	if err := uow.ScreenTimeRepository().CreateSession(ctx, session); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.ScreenTimeSessionChangedEvent{
		SessionID: session.ID,
		ChildID:   childID,
		Action:    "started",
	})
	return session, nil
}

// GetOrCreateWeeklyBudget returns the budget of the week containing weekStart
func (s *screenTimeService) GetOrCreateWeeklyBudget(ctx context.Context, childID int64, weekStart time.Time) (*models.ScreenTimeBudget, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	budget, err := lockBudget(ctx, uow, s.config, childID, weekStart)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return budget, nil
}

// SetAllowance stores a per-child allowance and applies it to the current week
func (s *screenTimeService) SetAllowance(ctx context.Context, actor models.Actor, childID int64, weeklyMinutes, dailyLimitMinutes int) (*models.ScreenTimeSettings, error) {
	if weeklyMinutes < 0 || dailyLimitMinutes < 0 {
		return nil, NewValidationError("allowances cannot be negative")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := loadChild(ctx, uow, actor, childID)
	if err != nil {
		return nil, err
	}
	if err := requireParent(actor, child.FamilyID); err != nil {
		return nil, err
	}

	now := s.now()
	settings := &models.ScreenTimeSettings{
		ChildID:           childID,
		WeeklyMinutes:     weeklyMinutes,
		DailyLimitMinutes: dailyLimitMinutes,
		UpdatedAt:         now,
	}
	if err := uow.ScreenTimeRepository().UpsertSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save screen time settings: %w", err)
	}

	budget, err := lockBudget(ctx, uow, s.config, childID, now)
	if err != nil {
		return nil, err
	}
	// Minutes already used stay covered by the budget
	budget.BaseMinutes = max(weeklyMinutes, budget.UsedMinutes-budget.BonusMinutes)
	budget.DailyLimitMinutes = dailyLimitMinutes
	if err := uow.ScreenTimeRepository().UpdateBudget(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to update screen time budget: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return settings, nil
}

// GetStatus summarises the child's remaining allowance
func (s *screenTimeService) GetStatus(ctx context.Context, actor models.Actor, childID int64) (*models.ScreenTimeStatus, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := loadChild(ctx, uow, actor, childID); err != nil {
		return nil, err
	}

	now := s.now()
	budget, err := lockBudget(ctx, uow, s.config, childID, now)
	if err != nil {
		return nil, err
	}
	usedToday, available, err := availableMinutes(ctx, uow, budget, now)
	if err != nil {
		return nil, err
	}
	open, err := uow.ScreenTimeRepository().GetOpenSession(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.ScreenTimeStatus{
		Budget:          budget,
		UsedToday:       usedToday,
		WeeklyRemaining: budget.WeeklyRemaining(),
		DailyRemaining:  budget.DailyRemaining(usedToday),
		Available:       available,
		OpenSession:     open,
	}, nil
}

// StartSession opens a usage window when minutes are left
func (s *screenTimeService) StartSession(ctx context.Context, actor models.Actor, childID int64) (*models.ScreenTimeSession, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := loadChild(ctx, uow, actor, childID); err != nil {
		return nil, err
	}

	session, err := startSessionInTx(ctx, uow, s.config, childID, nil, s.now())
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

// EndSession closes a session and records its usage, clamped to what is left
// today and this week. A nil minutesUsed records the elapsed active time.
func (s *screenTimeService) EndSession(ctx context.Context, actor models.Actor, sessionID int64, minutesUsed *int) (*models.EndSessionResult, error) {
	if minutesUsed != nil && *minutesUsed < 0 {
		return nil, NewValidationError("minutes used cannot be negative")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	found, err := uow.ScreenTimeRepository().GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if found == nil {
		return nil, NewNotFoundError("session %d not found", sessionID)
	}
	if _, err := loadChild(ctx, uow, actor, found.ChildID); err != nil {
		return nil, err
	}

	// Budget before session, the same order startSessionInTx locks in
	now := s.now()
	budget, err := lockBudget(ctx, uow, s.config, found.ChildID, now)
	if err != nil {
		return nil, err
	}
	session, err := uow.ScreenTimeRepository().GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if session == nil {
		return nil, NewNotFoundError("session %d not found", sessionID)
	}
	if !session.IsOpen() {
		return nil, NewConflictError("session %d has already ended", sessionID)
	}

	requested := CeilMinutes(session.ElapsedSeconds(now))
	if minutesUsed != nil {
		requested = *minutesUsed
	}

	usedToday, available, err := availableMinutes(ctx, uow, budget, now)
	if err != nil {
		return nil, err
	}
	if session.PurchaseID != nil {
		ticketMinutes, err := s.ticketMinutes(ctx, uow, *session.PurchaseID)
		if err != nil {
			return nil, err
		}
		available = min(available, ticketMinutes)
	}
	recorded := min(requested, available)
	if recorded < requested {
		log.WithFields(log.Fields{
			"sessionID": sessionID,
			"childID":   session.ChildID,
			"requested": requested,
			"recorded":  recorded,
			"usedToday": usedToday,
		}).Warn("Clamped screen time usage to remaining allowance")
	}

	if session.PausedAt != nil {
		session.PausedSeconds += int(now.Sub(*session.PausedAt).Seconds())
		session.PausedAt = nil
	}
	session.EndedAt = &now
	session.MinutesUsed = recorded
	if err := uow.ScreenTimeRepository().UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	if err := uow.ScreenTimeRepository().InsertUsage(ctx, &models.ScreenTimeUsage{
		ChildID:   session.ChildID,
		SessionID: &session.ID,
		UsageDate: DateOf(now),
		Minutes:   recorded,
	}); err != nil {
		return nil, fmt.Errorf("failed to log usage: %w", err)
	}

	budget.UsedMinutes += recorded
	if err := uow.ScreenTimeRepository().UpdateBudget(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to update screen time budget: %w", err)
	}

	uow.EventBus().Publish(events.ScreenTimeSessionChangedEvent{
		SessionID:   session.ID,
		ChildID:     session.ChildID,
		Action:      "ended",
		MinutesUsed: recorded,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.EndSessionResult{
		Session:          session,
		RequestedMinutes: requested,
		RecordedMinutes:  recorded,
		Budget:           budget,
	}, nil
}

// PauseSession freezes accrual of a ticket-linked session
func (s *screenTimeService) PauseSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.ScreenTimeSession, error) {
	return s.togglePause(ctx, actor, sessionID, true)
}

// ResumeSession resumes accrual without counting the paused time
func (s *screenTimeService) ResumeSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.ScreenTimeSession, error) {
	return s.togglePause(ctx, actor, sessionID, false)
}

func (s *screenTimeService) togglePause(ctx context.Context, actor models.Actor, sessionID int64, pause bool) (*models.ScreenTimeSession, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	session, err := uow.ScreenTimeRepository().GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if session == nil {
		return nil, NewNotFoundError("session %d not found", sessionID)
	}
	if _, err := loadChild(ctx, uow, actor, session.ChildID); err != nil {
		return nil, err
	}
	if session.PurchaseID == nil {
		return nil, NewValidationError("only sessions started from a reward ticket can be paused")
	}
	if !session.IsOpen() {
		return nil, NewConflictError("session %d has already ended", sessionID)
	}

	now := s.now()
	action := "paused"
	if pause {
		if session.IsPaused() {
			return nil, NewConflictError("session %d is already paused", sessionID)
		}
		session.PausedAt = &now
	} else {
		if !session.IsPaused() {
			return nil, NewConflictError("session %d is not paused", sessionID)
		}
		session.PausedSeconds += int(now.Sub(*session.PausedAt).Seconds())
		session.PausedAt = nil
		action = "resumed"
	}

	if err := uow.ScreenTimeRepository().UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	uow.EventBus().Publish(events.ScreenTimeSessionChangedEvent{
		SessionID: session.ID,
		ChildID:   session.ChildID,
		Action:    action,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

// AddBonusMinutes grants extra minutes for the current week only
func (s *screenTimeService) AddBonusMinutes(ctx context.Context, actor models.Actor, childID int64, minutes int, source string) (*models.ScreenTimeBudget, error) {
	if minutes <= 0 {
		return nil, NewValidationError("bonus minutes must be positive")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "parent"
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := loadChild(ctx, uow, actor, childID)
	if err != nil {
		return nil, err
	}
	if err := requireParent(actor, child.FamilyID); err != nil {
		return nil, err
	}

	budget, err := lockBudget(ctx, uow, s.config, childID, s.now())
	if err != nil {
		return nil, err
	}
	budget.BonusMinutes += minutes
	if err := uow.ScreenTimeRepository().UpdateBudget(ctx, budget); err != nil {
		return nil, fmt.Errorf("failed to update screen time budget: %w", err)
	}
	if err := uow.ScreenTimeRepository().RecordBonus(ctx, childID, budget.WeekStartDate, minutes, source); err != nil {
		return nil, fmt.Errorf("failed to record bonus: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return budget, nil
}

// ticketMinutes returns the minutes a screen-time ticket grants its linked session
func (s *screenTimeService) ticketMinutes(ctx context.Context, uow UnitOfWork, purchaseID int64) (int, error) {
	purchase, err := uow.RewardPurchaseRepository().GetByID(ctx, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil {
		return 0, NewNotFoundError("purchase %d not found", purchaseID)
	}
	reward, err := uow.RewardRepository().GetByID(ctx, purchase.RewardID)
	if err != nil {
		return 0, fmt.Errorf("failed to get reward: %w", err)
	}
	if reward == nil {
		return 0, NewNotFoundError("reward %d not found", purchase.RewardID)
	}
	return reward.ScreenMinutes, nil
}
