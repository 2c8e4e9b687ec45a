package repository

import (
	"context"
	"errors"
	"fmt"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

// Create opens an account with a zero balance
func (r *AccountRepository) Create(ctx context.Context, childID, familyID int64) (*models.Account, error) {
	query := `
		INSERT INTO accounts (child_id, family_id, balance)
		VALUES ($1, $2, 0)
		RETURNING child_id, family_id, balance, created_at, updated_at
	`

	var account models.Account
	err := r.q.QueryRow(ctx, query, childID, familyID).Scan(
		&account.ChildID,
		&account.FamilyID,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account for child %d: %w", childID, err)
	}
	return &account, nil
}

// Get retrieves an account without locking it
func (r *AccountRepository) Get(ctx context.Context, childID int64) (*models.Account, error) {
	return r.get(ctx, childID, "")
}

// GetForUpdate retrieves an account and locks its row until the transaction ends
func (r *AccountRepository) GetForUpdate(ctx context.Context, childID int64) (*models.Account, error) {
	return r.get(ctx, childID, "FOR UPDATE")
}

func (r *AccountRepository) get(ctx context.Context, childID int64, lock string) (*models.Account, error) {
	query := `
		SELECT child_id, family_id, balance, created_at, updated_at
		FROM accounts
		WHERE child_id = $1
	` + lock

	var account models.Account
	err := r.q.QueryRow(ctx, query, childID).Scan(
		&account.ChildID,
		&account.FamilyID,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account for child %d: %w", childID, err)
	}
	return &account, nil
}

// UpdateBalance overwrites the balance of a locked account
func (r *AccountRepository) UpdateBalance(ctx context.Context, childID int64, newBalance int64) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE child_id = $1
	`

	result, err := r.q.Exec(ctx, query, childID, newBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account for child %d not found", childID)
	}
	return nil
}
