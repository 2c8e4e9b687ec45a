package service

import (
	"context"
	"fmt"
	"strings"

	"familypoints/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type familyService struct {
	uowFactory UnitOfWorkFactory
}

// NewFamilyService creates a new family service
func NewFamilyService(uowFactory UnitOfWorkFactory) FamilyService {
	return &familyService{
		uowFactory: uowFactory,
	}
}

// newLookupCode returns an 8 character public family code
func newLookupCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// CreateFamily creates a family with a fresh lookup code
func (s *familyService) CreateFamily(ctx context.Context, name string) (*models.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("family name is required")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	family, err := uow.FamilyRepository().Create(ctx, name, newLookupCode())
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"familyID": family.ID,
	}).Info("Created family")
	return family, nil
}

// AddChild adds a child with an opened account and an optional opening balance
func (s *familyService) AddChild(ctx context.Context, actor models.Actor, name string, initialBalance int64) (*models.Child, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("child name is required")
	}
	if initialBalance < 0 {
		return nil, NewValidationError("opening balance cannot be negative")
	}
	if actor == nil {
		return nil, NewAuthorizationError("no actor")
	}
	if err := requireParent(actor, actor.Family()); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := uow.FamilyRepository().CreateChild(ctx, actor.Family(), name)
	if err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}

	if err := openAccount(ctx, uow, child, initialBalance); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return child, nil
}

// LookupFamily resolves a public lookup code to the family and its children's names
func (s *familyService) LookupFamily(ctx context.Context, code string) (*models.FamilyLookup, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, NewValidationError("lookup code is required")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	family, err := uow.FamilyRepository().GetByLookupCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up family: %w", err)
	}
	if family == nil {
		return nil, NewNotFoundError("family not found")
	}

	children, err := uow.FamilyRepository().ListChildren(ctx, family.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	lookup := &models.FamilyLookup{
		FamilyID:   family.ID,
		Name:       family.Name,
		ChildNames: make([]string, 0, len(children)),
	}
	for _, child := range children {
		lookup.ChildNames = append(lookup.ChildNames, child.Name)
	}
	return lookup, nil
}
