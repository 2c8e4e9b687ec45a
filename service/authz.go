package service

import (
	"context"
	"fmt"

	"familypoints/models"
)

// requireParent allows only a parent of the given family
func requireParent(actor models.Actor, familyID int64) error {
	if actor == nil {
		return NewAuthorizationError("no actor")
	}
	if actor.Family() != familyID {
		return NewNotFoundError("resource not found")
	}
	if _, ok := actor.(models.ParentActor); !ok {
		return NewAuthorizationError("only a parent can do this")
	}
	return nil
}

// requireChildAccess allows a parent of the child's family or the child itself
func requireChildAccess(actor models.Actor, familyID, childID int64) error {
	if actor == nil {
		return NewAuthorizationError("no actor")
	}
	if actor.Family() != familyID {
		return NewNotFoundError("resource not found")
	}
	switch a := actor.(type) {
	case models.ParentActor:
		return nil
	case models.ChildActor:
		if a.ChildID != childID {
			return NewAuthorizationError("children can only act for themselves")
		}
		return nil
	}
	return NewAuthorizationError("unknown actor")
}

// loadChild fetches a child and checks the actor may act for it
func loadChild(ctx context.Context, uow UnitOfWork, actor models.Actor, childID int64) (*models.Child, error) {
	child, err := uow.FamilyRepository().GetChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	if child == nil {
		return nil, NewNotFoundError("child %d not found", childID)
	}
	if err := requireChildAccess(actor, child.FamilyID, child.ID); err != nil {
		return nil, err
	}
	return child, nil
}

// approverID returns the parent's user id, or nil for other actors
func approverID(actor models.Actor) *int64 {
	if p, ok := actor.(models.ParentActor); ok {
		id := p.UserID
		return &id
	}
	return nil
}
