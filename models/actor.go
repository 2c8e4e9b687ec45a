package models

// ActorRole identifies which variant of Actor is acting
type ActorRole string

const (
	ActorRoleParent ActorRole = "parent"
	ActorRoleChild  ActorRole = "child"
)

// Actor is the authenticated caller of a core operation. It is resolved once at the
// request boundary and is either a ParentActor or a ChildActor.
type Actor interface {
	Role() ActorRole
	Family() int64
	isActor()
}

// ParentActor is a parent acting on behalf of their family
type ParentActor struct {
	UserID   int64 `json:"user_id"`
	FamilyID int64 `json:"family_id"`
}

func (ParentActor) Role() ActorRole { return ActorRoleParent }
func (p ParentActor) Family() int64 { return p.FamilyID }
func (ParentActor) isActor()        {}

// ChildActor is a child acting on their own account
type ChildActor struct {
	ChildID  int64 `json:"child_id"`
	FamilyID int64 `json:"family_id"`
}

func (ChildActor) Role() ActorRole { return ActorRoleChild }
func (c ChildActor) Family() int64 { return c.FamilyID }
func (ChildActor) isActor()        {}
