package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"familypoints/events"
	"familypoints/models"

	log "github.com/sirupsen/logrus"
)

type goalService struct {
	uowFactory UnitOfWorkFactory
	now        func() time.Time
}

// NewGoalService creates a new goal deposit and milestone service
func NewGoalService(uowFactory UnitOfWorkFactory) GoalService {
	return &goalService{
		uowFactory: uowFactory,
		now:        time.Now,
	}
}

// CreateGoal creates a savings goal for a child
func (s *goalService) CreateGoal(ctx context.Context, actor models.Actor, goal *models.Goal) (*models.Goal, error) {
	if goal == nil {
		return nil, NewValidationError("goal is required")
	}
	goal.Title = strings.TrimSpace(goal.Title)
	if goal.Title == "" {
		return nil, NewValidationError("goal title is required")
	}
	if goal.TargetPoints <= 0 {
		return nil, NewValidationError("goal target must be positive")
	}
	for threshold, bonus := range goal.MilestoneBonuses {
		if !isMilestoneThreshold(threshold) {
			return nil, NewValidationError("milestone %d%% is not one of %v", threshold, models.MilestoneThresholds)
		}
		if bonus < 0 {
			return nil, NewValidationError("milestone bonuses cannot be negative")
		}
	}
	if goal.MilestoneBonuses == nil {
		goal.MilestoneBonuses = map[int]int64{}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := loadChild(ctx, uow, actor, goal.ChildID)
	if err != nil {
		return nil, err
	}
	goal.FamilyID = child.FamilyID
	goal.CurrentPoints = 0
	goal.MilestonesCompleted = []int{}
	goal.IsCompleted = false
	goal.CompletedAt = nil

	if err := uow.GoalRepository().Create(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return goal, nil
}

// GetGoal returns a goal the actor may see
func (s *goalService) GetGoal(ctx context.Context, actor models.Actor, goalID int64) (*models.Goal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	goal, err := uow.GoalRepository().GetByID(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}
	if goal == nil {
		return nil, NewNotFoundError("goal %d not found", goalID)
	}
	if err := requireChildAccess(actor, goal.FamilyID, goal.ChildID); err != nil {
		return nil, err
	}
	return goal, nil
}

func isMilestoneThreshold(threshold int) bool {
	for _, t := range models.MilestoneThresholds {
		if t == threshold {
			return true
		}
	}
	return false
}

// lockGoal fetches and locks a goal the actor may act on
func lockGoal(ctx context.Context, uow UnitOfWork, actor models.Actor, goalID int64) (*models.Goal, error) {
	goal, err := uow.GoalRepository().GetForUpdate(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock goal: %w", err)
	}
	if goal == nil {
		return nil, NewNotFoundError("goal %d not found", goalID)
	}
	if err := requireChildAccess(actor, goal.FamilyID, goal.ChildID); err != nil {
		return nil, err
	}
	return goal, nil
}

// Deposit moves points from the child's account into a goal and pays any
// milestone bonuses the deposit crosses
func (s *goalService) Deposit(ctx context.Context, actor models.Actor, goalID int64, amount int64) (*models.DepositResult, error) {
	if amount <= 0 {
		return nil, NewValidationError("deposit amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	goal, err := lockGoal(ctx, uow, actor, goalID)
	if err != nil {
		return nil, err
	}
	if goal.IsCompleted {
		return nil, NewConflictError("goal %q is already completed", goal.Title)
	}

	deposit := &models.GoalDeposit{
		GoalID:  goal.ID,
		ChildID: goal.ChildID,
		Amount:  amount,
		Type:    models.DepositTypeDeposit,
	}
	if err := uow.GoalRepository().CreateDeposit(ctx, deposit); err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	ledger, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       goal.ChildID,
		Amount:        -amount,
		Type:          models.TransactionTypeGoalDeposit,
		ReferenceType: models.ReferenceTypeGoalDeposit,
		ReferenceID:   strconv.FormatInt(deposit.ID, 10),
		Description:   fmt.Sprintf("Saved toward goal: %s", goal.Title),
	})
	if err != nil {
		return nil, err
	}

	goal.CurrentPoints += amount
	result := &models.DepositResult{Goal: goal, Deposit: deposit, NewBalance: ledger.NewBalance}

	for _, payout := range reachedMilestones(goal) {
		goal.MilestonesCompleted = append(goal.MilestonesCompleted, payout.Threshold)
		result.Milestones = append(result.Milestones, payout)
		if payout.Bonus > 0 {
			bonus, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
				ChildID:       goal.ChildID,
				Amount:        payout.Bonus,
				Type:          models.TransactionTypeMilestoneBonus,
				ReferenceType: models.ReferenceTypeGoalMilestone,
				ReferenceID:   models.MilestoneReference(goal.ID, payout.Threshold),
				Description:   fmt.Sprintf("Reached %d%% of goal: %s", payout.Threshold, goal.Title),
			})
			if err != nil {
				return nil, err
			}
			result.NewBalance = bonus.NewBalance
		}
		uow.EventBus().Publish(events.GoalMilestoneReachedEvent{
			GoalID:    goal.ID,
			ChildID:   goal.ChildID,
			FamilyID:  goal.FamilyID,
			Threshold: payout.Threshold,
			Bonus:     payout.Bonus,
		})
	}

	if goal.CurrentPoints >= goal.TargetPoints {
		now := s.now()
		goal.IsCompleted = true
		goal.CompletedAt = &now
		uow.EventBus().Publish(events.GoalCompletedEvent{
			GoalID:   goal.ID,
			ChildID:  goal.ChildID,
			FamilyID: goal.FamilyID,
			Title:    goal.Title,
		})
	}

	if err := uow.GoalRepository().UpdateProgress(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"goalID":     goal.ID,
		"childID":    goal.ChildID,
		"amount":     amount,
		"current":    goal.CurrentPoints,
		"milestones": len(result.Milestones),
		"completed":  goal.IsCompleted,
	}).Info("Goal deposit recorded")

	return result, nil
}

// reachedMilestones returns the thresholds the goal's progress has crossed that
// have not paid out yet, in ascending order
func reachedMilestones(goal *models.Goal) []models.MilestonePayout {
	var payouts []models.MilestonePayout
	for _, threshold := range models.MilestoneThresholds {
		if goal.HasMilestone(threshold) {
			continue
		}
		if goal.CurrentPoints*100 >= int64(threshold)*goal.TargetPoints {
			payouts = append(payouts, models.MilestonePayout{
				Threshold: threshold,
				Bonus:     goal.MilestoneBonuses[threshold],
			})
		}
	}
	return payouts
}

// Withdraw moves points from a goal back to the child's account. Milestones
// already paid stay consumed.
func (s *goalService) Withdraw(ctx context.Context, actor models.Actor, goalID int64, amount int64) (*models.DepositResult, error) {
	if amount <= 0 {
		return nil, NewValidationError("withdrawal amount must be positive")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	goal, err := lockGoal(ctx, uow, actor, goalID)
	if err != nil {
		return nil, err
	}
	if goal.IsCompleted {
		return nil, NewConflictError("goal %q is completed and can no longer be withdrawn from", goal.Title)
	}
	if amount > goal.CurrentPoints {
		return nil, NewValidationError("goal only holds %d points", goal.CurrentPoints)
	}

	withdrawal := &models.GoalDeposit{
		GoalID:  goal.ID,
		ChildID: goal.ChildID,
		Amount:  amount,
		Type:    models.DepositTypeWithdrawal,
	}
	if err := uow.GoalRepository().CreateDeposit(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}

	ledger, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       goal.ChildID,
		Amount:        amount,
		Type:          models.TransactionTypeGoalWithdrawal,
		ReferenceType: models.ReferenceTypeGoalWithdrawal,
		ReferenceID:   strconv.FormatInt(withdrawal.ID, 10),
		Description:   fmt.Sprintf("Withdrew from goal: %s", goal.Title),
	})
	if err != nil {
		return nil, err
	}

	goal.CurrentPoints -= amount
	if err := uow.GoalRepository().UpdateProgress(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.DepositResult{Goal: goal, Deposit: withdrawal, NewBalance: ledger.NewBalance}, nil
}
