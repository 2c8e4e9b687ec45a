package service

import (
	"context"
	"fmt"
	"strconv"

	"familypoints/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultEntryLimit = 50
	maxEntryLimit     = 500
)

type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// ApplyTransaction applies one signed balance change in its own transaction
func (s *ledgerService) ApplyTransaction(ctx context.Context, tx models.LedgerTransaction) (*models.LedgerResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := ApplyLedgerTransaction(ctx, uow, tx)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// GetBalance returns a child's account
func (s *ledgerService) GetBalance(ctx context.Context, actor models.Actor, childID int64) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := loadChild(ctx, uow, actor, childID); err != nil {
		return nil, err
	}

	account, err := uow.AccountRepository().Get(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, NewNotFoundError("account for child %d not found", childID)
	}
	return account, nil
}

// ListEntries returns the newest ledger entries of a child
func (s *ledgerService) ListEntries(ctx context.Context, actor models.Actor, childID int64, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntryLimit
	}
	if limit > maxEntryLimit {
		limit = maxEntryLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := loadChild(ctx, uow, actor, childID); err != nil {
		return nil, err
	}

	entries, err := uow.LedgerRepository().ListByChild(ctx, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// Adjust lets a parent credit or debit points directly
func (s *ledgerService) Adjust(ctx context.Context, actor models.Actor, childID int64, amount int64, description, idempotencyKey string) (*models.LedgerResult, error) {
	if amount == 0 {
		return nil, NewValidationError("adjustment amount must not be zero")
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

	referenceID := idempotencyKey
	if referenceID == "" {
		referenceID = uuid.New().String()
	} else {
		// Keys are scoped to the child so two children cannot collide
		referenceID = strconv.FormatInt(childID, 10) + ":" + idempotencyKey
	}
	if description == "" {
		description = "Parent adjustment"
	}

	result, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       childID,
		Amount:        amount,
		Type:          models.TransactionTypeParentAdjustment,
		ReferenceType: models.ReferenceTypeAdjustment,
		ReferenceID:   referenceID,
		Description:   description,
	})
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"childID":    childID,
		"amount":     amount,
		"newBalance": result.NewBalance,
		"replayed":   result.Replayed,
	}).Info("Applied parent adjustment")

	return result, nil
}

// openAccount creates the account for a new child and credits the opening balance
func openAccount(ctx context.Context, uow UnitOfWork, child *models.Child, initialBalance int64) error {
	if _, err := uow.AccountRepository().Create(ctx, child.ID, child.FamilyID); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if initialBalance == 0 {
		return nil
	}
	_, err := ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       child.ID,
		Amount:        initialBalance,
		Type:          models.TransactionTypeInitial,
		ReferenceType: models.ReferenceTypeAccountOpening,
		ReferenceID:   strconv.FormatInt(child.ID, 10),
		Description:   "Opening balance",
	})
	return err
}
