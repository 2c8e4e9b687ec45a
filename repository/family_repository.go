package repository

import (
	"context"
	"errors"
	"fmt"

	"familypoints/database"
	"familypoints/models"

	"github.com/jackc/pgx/v5"
)

// FamilyRepository implements the FamilyRepository interface
type FamilyRepository struct {
	q queryable
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{q: db.Pool}
}

// newFamilyRepositoryWithTx creates a new family repository with a transaction
func newFamilyRepositoryWithTx(tx queryable) *FamilyRepository {
	return &FamilyRepository{q: tx}
}

// Create creates a new family with the given public lookup code
func (r *FamilyRepository) Create(ctx context.Context, name, lookupCode string) (*models.Family, error) {
	query := `
		INSERT INTO families (name, lookup_code)
		VALUES ($1, $2)
		RETURNING id, name, lookup_code, created_at
	`

	var family models.Family
	err := r.q.QueryRow(ctx, query, name, lookupCode).Scan(
		&family.ID,
		&family.Name,
		&family.LookupCode,
		&family.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	return &family, nil
}

// GetByID retrieves a family by id
func (r *FamilyRepository) GetByID(ctx context.Context, id int64) (*models.Family, error) {
	return r.getOne(ctx, `SELECT id, name, lookup_code, created_at FROM families WHERE id = $1`, id)
}

// GetByLookupCode retrieves a family by its public code
func (r *FamilyRepository) GetByLookupCode(ctx context.Context, code string) (*models.Family, error) {
	return r.getOne(ctx, `SELECT id, name, lookup_code, created_at FROM families WHERE lookup_code = $1`, code)
}

func (r *FamilyRepository) getOne(ctx context.Context, query string, arg any) (*models.Family, error) {
	var family models.Family
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&family.ID,
		&family.Name,
		&family.LookupCode,
		&family.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return &family, nil
}

// CreateChild adds a child to a family
func (r *FamilyRepository) CreateChild(ctx context.Context, familyID int64, name string) (*models.Child, error) {
	query := `
		INSERT INTO children (family_id, name)
		VALUES ($1, $2)
		RETURNING id, family_id, name, created_at
	`

	var child models.Child
	err := r.q.QueryRow(ctx, query, familyID, name).Scan(
		&child.ID,
		&child.FamilyID,
		&child.Name,
		&child.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	return &child, nil
}

// GetChild retrieves a child by id
func (r *FamilyRepository) GetChild(ctx context.Context, childID int64) (*models.Child, error) {
	query := `SELECT id, family_id, name, created_at FROM children WHERE id = $1`

	var child models.Child
	err := r.q.QueryRow(ctx, query, childID).Scan(
		&child.ID,
		&child.FamilyID,
		&child.Name,
		&child.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child %d: %w", childID, err)
	}
	return &child, nil
}

// ListChildren returns every child of a family ordered by id
func (r *FamilyRepository) ListChildren(ctx context.Context, familyID int64) ([]*models.Child, error) {
	query := `SELECT id, family_id, name, created_at FROM children WHERE family_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []*models.Child
	for rows.Next() {
		var child models.Child
		if err := rows.Scan(&child.ID, &child.FamilyID, &child.Name, &child.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		children = append(children, &child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating children: %w", err)
	}
	return children, nil
}
