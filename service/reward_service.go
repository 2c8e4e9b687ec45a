package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"familypoints/config"
	"familypoints/events"
	"familypoints/models"

	log "github.com/sirupsen/logrus"
)

type rewardService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	now        func() time.Time
}

// NewRewardService creates a new reward purchase and redemption service
func NewRewardService(uowFactory UnitOfWorkFactory, cfg *config.Config) RewardService {
	return &rewardService{
		uowFactory: uowFactory,
		config:     cfg,
		now:        time.Now,
	}
}

// CreateReward defines a new reward for the parent's family
func (s *rewardService) CreateReward(ctx context.Context, actor models.Actor, reward *models.Reward) (*models.Reward, error) {
	if reward == nil {
		return nil, NewValidationError("reward is required")
	}
	if actor == nil {
		return nil, NewAuthorizationError("no actor")
	}
	reward.FamilyID = actor.Family()
	if err := requireParent(actor, reward.FamilyID); err != nil {
		return nil, err
	}

	reward.Title = strings.TrimSpace(reward.Title)
	if reward.RewardType == "" {
		reward.RewardType = models.RewardTypeStandard
	}
	switch {
	case reward.Title == "":
		return nil, NewValidationError("reward title is required")
	case reward.PointsCost <= 0:
		return nil, NewValidationError("reward cost must be positive")
	case reward.RewardType != models.RewardTypeStandard && reward.RewardType != models.RewardTypeScreenTime:
		return nil, NewValidationError("unknown reward type %q", reward.RewardType)
	case reward.IsScreenTime() && reward.ScreenMinutes <= 0:
		return nil, NewValidationError("screen time rewards need a positive number of minutes")
	case reward.Stock != nil && *reward.Stock < 0:
		return nil, NewValidationError("stock cannot be negative")
	case reward.WeeklyLimit != nil && *reward.WeeklyLimit <= 0:
		return nil, NewValidationError("weekly limit must be positive")
	}
	reward.IsActive = true

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if reward.RestrictedChildID != nil {
		if _, err := loadChild(ctx, uow, actor, *reward.RestrictedChildID); err != nil {
			return nil, err
		}
	}

	if err := uow.RewardRepository().Create(ctx, reward); err != nil {
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return reward, nil
}

// Purchase spends points on a reward. The purchase row, the debit and the
// stock decrement commit together or not at all.
func (s *rewardService) Purchase(ctx context.Context, actor models.Actor, childID, rewardID int64) (*models.PurchaseResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := loadChild(ctx, uow, actor, childID)
	if err != nil {
		return nil, err
	}

	reward, err := uow.RewardRepository().GetByID(ctx, rewardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	if reward == nil || reward.FamilyID != child.FamilyID {
		return nil, NewNotFoundError("reward %d not found", rewardID)
	}
	if !reward.IsActive {
		return nil, NewConflictError("reward %q is no longer available", reward.Title)
	}
	if reward.RestrictedChildID != nil && *reward.RestrictedChildID != childID {
		return nil, NewAuthorizationError("reward %q is reserved for another child", reward.Title)
	}

	// Lock the account before the limit checks so they cannot race another purchase
	account, err := uow.AccountRepository().GetForUpdate(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, NewNotFoundError("account for child %d not found", childID)
	}

	now := s.now()
	if reward.WeeklyLimit != nil {
		count, err := uow.RewardPurchaseRepository().CountSince(ctx, rewardID, childID, WeekStart(now, s.config.WeekStartDay))
		if err != nil {
			return nil, fmt.Errorf("failed to count weekly purchases: %w", err)
		}
		if count >= *reward.WeeklyLimit {
			return nil, NewQuotaExceededError(0, "reward %q can only be bought %d times per week", reward.Title, *reward.WeeklyLimit)
		}
	}
	if reward.Stock != nil && *reward.Stock <= 0 {
		return nil, NewQuotaExceededError(0, "reward %q is out of stock", reward.Title)
	}
	if reward.IsScreenTime() {
		budget, err := lockBudget(ctx, uow, s.config, childID, now)
		if err != nil {
			return nil, err
		}
		_, available, err := availableMinutes(ctx, uow, budget, now)
		if err != nil {
			return nil, err
		}
		if available < reward.ScreenMinutes {
			return nil, NewQuotaExceededError(available, "only %d screen minutes left, reward needs %d", available, reward.ScreenMinutes)
		}
	}
	if account.Balance < reward.PointsCost {
		return nil, NewInsufficientFundsError(account.Balance, reward.PointsCost)
	}

	purchase := &models.RewardPurchase{
		RewardID:    rewardID,
		ChildID:     childID,
		FamilyID:    child.FamilyID,
		PointsSpent: reward.PointsCost,
		Status:      models.PurchaseStatusActive,
		PurchasedAt: now,
	}
	if err := uow.RewardPurchaseRepository().Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	debit, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       childID,
		Amount:        -reward.PointsCost,
		Type:          models.TransactionTypeRewardPurchase,
		ReferenceType: models.ReferenceTypeRewardPurchase,
		ReferenceID:   strconv.FormatInt(purchase.ID, 10),
		Description:   fmt.Sprintf("Bought reward: %s", reward.Title),
	})
	if err != nil {
		return nil, err
	}

	if reward.Stock != nil {
		ok, err := uow.RewardRepository().DecrementStock(ctx, rewardID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
		if !ok {
			return nil, NewQuotaExceededError(0, "reward %q is out of stock", reward.Title)
		}
	}

	uow.EventBus().Publish(events.RewardPurchaseChangedEvent{
		PurchaseID: purchase.ID,
		RewardID:   rewardID,
		ChildID:    childID,
		FamilyID:   child.FamilyID,
		NewStatus:  models.PurchaseStatusActive,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"purchaseID": purchase.ID,
		"rewardID":   rewardID,
		"childID":    childID,
		"cost":       reward.PointsCost,
		"newBalance": debit.NewBalance,
	}).Info("Reward purchased")

	return &models.PurchaseResult{Purchase: purchase, NewBalance: debit.NewBalance}, nil
}

// refundInTx credits back a purchase and returns finite stock. The refund
// references the purchase id so it can only ever be applied once.
func refundInTx(ctx context.Context, uow UnitOfWork, purchase *models.RewardPurchase, description string) (*models.LedgerResult, error) {
	credit, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       purchase.ChildID,
		Amount:        purchase.PointsSpent,
		Type:          models.TransactionTypeRewardRefund,
		ReferenceType: models.ReferenceTypeRewardRefund,
		ReferenceID:   strconv.FormatInt(purchase.ID, 10),
		Description:   description,
	})
	if err != nil {
		return nil, err
	}
	if err := uow.RewardRepository().IncrementStock(ctx, purchase.RewardID); err != nil {
		return nil, fmt.Errorf("failed to restore stock: %w", err)
	}
	return credit, nil
}

// Cancel refunds an unused ticket
func (s *rewardService) Cancel(ctx context.Context, actor models.Actor, purchaseID int64) (*models.PurchaseResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	purchase, err := s.loadPurchase(ctx, uow, actor, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.Status != models.PurchaseStatusActive {
		return nil, NewConflictError("purchase %d cannot be cancelled, it is %s", purchaseID, purchase.Status)
	}

	now := s.now()
	ok, err := uow.RewardPurchaseRepository().Transition(ctx, purchaseID,
		[]models.PurchaseStatus{models.PurchaseStatusActive}, models.PurchaseStatusCancelled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel purchase: %w", err)
	}
	if !ok {
		return nil, NewConflictError("purchase %d is no longer active", purchaseID)
	}

	credit, err := refundInTx(ctx, uow, purchase, "Reward cancelled")
	if err != nil {
		return nil, err
	}

	purchase.Status = models.PurchaseStatusCancelled
	purchase.CancelledAt = &now
	s.publish(uow, purchase, models.PurchaseStatusActive)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &models.PurchaseResult{Purchase: purchase, NewBalance: credit.NewBalance}, nil
}

// RequestUse asks a parent to let the child redeem a ticket
func (s *rewardService) RequestUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error) {
	return s.transition(ctx, actor, purchaseID, false,
		[]models.PurchaseStatus{models.PurchaseStatusActive}, models.PurchaseStatusUseRequested)
}

// DenyUse returns a requested ticket to active
func (s *rewardService) DenyUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error) {
	return s.transition(ctx, actor, purchaseID, true,
		[]models.PurchaseStatus{models.PurchaseStatusUseRequested}, models.PurchaseStatusActive)
}

// Fulfill marks a ticket as delivered. Fulfilled tickets are never refunded.
func (s *rewardService) Fulfill(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error) {
	return s.transition(ctx, actor, purchaseID, true,
		[]models.PurchaseStatus{models.PurchaseStatusUseRequested, models.PurchaseStatusUsed}, models.PurchaseStatusFulfilled)
}

// ApproveUse lets the child redeem a requested ticket. Screen-time tickets
// start a session linked to the purchase.
func (s *rewardService) ApproveUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.UseApproval, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	purchase, err := s.loadPurchase(ctx, uow, actor, purchaseID)
	if err != nil {
		return nil, err
	}
	if err := requireParent(actor, purchase.FamilyID); err != nil {
		return nil, err
	}
	if purchase.Status != models.PurchaseStatusUseRequested {
		return nil, NewConflictError("purchase %d has no pending use request, it is %s", purchaseID, purchase.Status)
	}

	reward, err := uow.RewardRepository().GetByID(ctx, purchase.RewardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	if reward == nil {
		return nil, NewNotFoundError("reward %d not found", purchase.RewardID)
	}

	now := s.now()
	ok, err := uow.RewardPurchaseRepository().Transition(ctx, purchaseID,
		[]models.PurchaseStatus{models.PurchaseStatusUseRequested}, models.PurchaseStatusUsed, now)
	if err != nil {
		return nil, fmt.Errorf("failed to approve use: %w", err)
	}
	if !ok {
		return nil, NewConflictError("purchase %d is no longer awaiting approval", purchaseID)
	}
	purchase.Status = models.PurchaseStatusUsed
	purchase.UsedAt = &now

	approval := &models.UseApproval{Purchase: purchase}
	if reward.IsScreenTime() {
		session, err := startSessionInTx(ctx, uow, s.config, purchase.ChildID, &purchase.ID, now)
		if err != nil {
			return nil, err
		}
		approval.Session = session
	}

	s.publish(uow, purchase, models.PurchaseStatusUseRequested)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return approval, nil
}

// ListPurchases returns a child's tickets, newest first
func (s *rewardService) ListPurchases(ctx context.Context, actor models.Actor, childID int64) ([]*models.RewardPurchase, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := loadChild(ctx, uow, actor, childID); err != nil {
		return nil, err
	}

	purchases, err := uow.RewardPurchaseRepository().ListByChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// AutoRefundSweep refunds tickets whose use request was never answered.
// Each ticket is handled in its own transaction and only moves out of
// use_requested, so a concurrent manual approval wins.
func (s *rewardService) AutoRefundSweep(ctx context.Context, now time.Time) (*models.SweepSummary, error) {
	cutoff := now.Add(-time.Duration(s.config.UseRequestExpiryHours) * time.Hour)

	listUow := s.uowFactory.Create()
	if err := listUow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	expired, err := listUow.RewardPurchaseRepository().ListUseRequestedBefore(ctx, cutoff)
	listUow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired use requests: %w", err)
	}

	summary := &models.SweepSummary{Processed: len(expired)}
	for _, purchase := range expired {
		err := s.expireOne(ctx, purchase, now)
		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, ErrConflict):
			summary.Skipped++
		default:
			summary.Failed++
			log.WithFields(log.Fields{
				"purchaseID": purchase.ID,
				"error":      err,
			}).Error("Failed to auto-refund purchase")
		}
	}

	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("Auto-refund sweep finished")
	return summary, nil
}

func (s *rewardService) expireOne(ctx context.Context, purchase *models.RewardPurchase, now time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ok, err := uow.RewardPurchaseRepository().Transition(ctx, purchase.ID,
		[]models.PurchaseStatus{models.PurchaseStatusUseRequested}, models.PurchaseStatusExpired, now)
	if err != nil {
		return fmt.Errorf("failed to expire purchase: %w", err)
	}
	if !ok {
		return NewConflictError("purchase %d is no longer awaiting approval", purchase.ID)
	}

	if _, err := refundInTx(ctx, uow, purchase, "Reward use request expired"); err != nil {
		return err
	}

	purchase.Status = models.PurchaseStatusExpired
	s.publish(uow, purchase, models.PurchaseStatusUseRequested)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// transition moves a ticket along its lifecycle without touching the ledger
func (s *rewardService) transition(ctx context.Context, actor models.Actor, purchaseID int64, parentOnly bool, from []models.PurchaseStatus, to models.PurchaseStatus) (*models.RewardPurchase, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	purchase, err := s.loadPurchase(ctx, uow, actor, purchaseID)
	if err != nil {
		return nil, err
	}
	if parentOnly {
		if err := requireParent(actor, purchase.FamilyID); err != nil {
			return nil, err
		}
	}

	allowed := false
	for _, status := range from {
		if purchase.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, NewConflictError("purchase %d cannot become %s, it is %s", purchaseID, to, purchase.Status)
	}

	now := s.now()
	ok, err := uow.RewardPurchaseRepository().Transition(ctx, purchaseID, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase: %w", err)
	}
	if !ok {
		return nil, NewConflictError("purchase %d changed concurrently", purchaseID)
	}

	oldStatus := purchase.Status
	purchase.Status = to
	switch to {
	case models.PurchaseStatusUseRequested:
		purchase.UseRequestedAt = &now
	case models.PurchaseStatusFulfilled:
		purchase.FulfilledAt = &now
	case models.PurchaseStatusActive:
		purchase.UseRequestedAt = nil
	}
	s.publish(uow, purchase, oldStatus)

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return purchase, nil
}

func (s *rewardService) publish(uow UnitOfWork, purchase *models.RewardPurchase, oldStatus models.PurchaseStatus) {
	uow.EventBus().Publish(events.RewardPurchaseChangedEvent{
		PurchaseID:  purchase.ID,
		RewardID:    purchase.RewardID,
		ChildID:     purchase.ChildID,
		FamilyID:    purchase.FamilyID,
		OldStatus:   oldStatus,
		NewStatus:   purchase.Status,
		RequestedAt: purchase.UseRequestedAt,
	})
}

// loadPurchase fetches a ticket the actor may act on
func (s *rewardService) loadPurchase(ctx context.Context, uow UnitOfWork, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error) {
	purchase, err := uow.RewardPurchaseRepository().GetByID(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil {
		return nil, NewNotFoundError("purchase %d not found", purchaseID)
	}
	if err := requireChildAccess(actor, purchase.FamilyID, purchase.ChildID); err != nil {
		return nil, err
	}
	return purchase, nil
}
