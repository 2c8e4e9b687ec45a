package service

import (
	"context"
	"fmt"

	"familypoints/events"
	"familypoints/models"
)

// ApplyLedgerTransaction applies one signed balance change inside the caller's unit of work.
// This is the single entry point for all balance changes in the system.
//
// The account row is locked first so concurrent changes for the same child serialize.
// A transaction whose (reference type, reference id) already has an entry is a no-op that
// returns the existing entry with Replayed set.
func ApplyLedgerTransaction(ctx context.Context, uow UnitOfWork, tx models.LedgerTransaction) (*models.LedgerResult, error) {
	if tx.Amount == 0 {
		return nil, NewValidationError("amount must not be zero")
	}
	if tx.ReferenceType == "" || tx.ReferenceID == "" {
		return nil, NewValidationError("reference type and id are required")
	}

	account, err := uow.AccountRepository().GetForUpdate(ctx, tx.ChildID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, NewNotFoundError("account for child %d not found", tx.ChildID)
	}

	existing, err := uow.LedgerRepository().GetByReference(ctx, tx.ReferenceType, tx.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger reference: %w", err)
	}
	if existing != nil {
		return &models.LedgerResult{
			NewBalance: account.Balance,
			EntryID:    existing.ID,
			Replayed:   true,
		}, nil
	}

	newBalance := account.Balance + tx.Amount
	if newBalance < 0 {
		return nil, NewInsufficientFundsError(account.Balance, -tx.Amount)
	}

	if err := uow.AccountRepository().UpdateBalance(ctx, tx.ChildID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.LedgerEntry{
		ChildID:       tx.ChildID,
		FamilyID:      account.FamilyID,
		Type:          tx.Type,
		Amount:        tx.Amount,
		BalanceAfter:  newBalance,
		ReferenceType: tx.ReferenceType,
		ReferenceID:   tx.ReferenceID,
		Description:   tx.Description,
	}
	if err := uow.LedgerRepository().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	// Flushed after the transaction commits
	uow.EventBus().Publish(events.LedgerEntryCreatedEvent{
		EntryID:         entry.ID,
		ChildID:         entry.ChildID,
		FamilyID:        entry.FamilyID,
		TransactionType: entry.Type,
		Amount:          entry.Amount,
		BalanceAfter:    entry.BalanceAfter,
		ReferenceType:   entry.ReferenceType,
		ReferenceID:     entry.ReferenceID,
	})

	return &models.LedgerResult{
		NewBalance: newBalance,
		EntryID:    entry.ID,
	}, nil
}
