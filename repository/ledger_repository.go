package repository

import (
	"context"
	"errors"
	"fmt"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
)

// LedgerRepository implements the LedgerRepository interface
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

const ledgerColumns = `id, child_id, family_id, type, amount, balance_after, reference_type, reference_id, description, created_at`

func scanLedgerEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := row.Scan(
		&entry.ID,
		&entry.ChildID,
		&entry.FamilyID,
		&entry.Type,
		&entry.Amount,
		&entry.BalanceAfter,
		&entry.ReferenceType,
		&entry.ReferenceID,
		&entry.Description,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Insert appends an entry and fills its ID and CreatedAt
func (r *LedgerRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (child_id, family_id, type, amount, balance_after, reference_type, reference_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.ChildID,
		entry.FamilyID,
		entry.Type,
		entry.Amount,
		entry.BalanceAfter,
		entry.ReferenceType,
		entry.ReferenceID,
		entry.Description,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "uq_ledger_reference") {
			return fmt.Errorf("ledger entry for %s/%s already exists: %w", entry.ReferenceType, entry.ReferenceID, err)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// GetByReference returns the entry for a causal event, or nil
func (r *LedgerRepository) GetByReference(ctx context.Context, referenceType models.ReferenceType, referenceID string) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE reference_type = $1 AND reference_id = $2`

	entry, err := scanLedgerEntry(r.q.QueryRow(ctx, query, referenceType, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry by reference: %w", err)
	}
	return entry, nil
}

// ListByChild returns the newest entries for a child
func (r *LedgerRepository) ListByChild(ctx context.Context, childID int64, limit int) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE child_id = $1 ORDER BY id DESC LIMIT $2`

	rows, err := r.q.Query(ctx, query, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// SumByChild returns the sum of all entry amounts for a child
func (r *LedgerRepository) SumByChild(ctx context.Context, childID int64) (int64, error) {
	var sum int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM ledger_entries WHERE child_id = $1`, childID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}
