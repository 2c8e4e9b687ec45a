package models

import (
	"time"
)

// RewardType distinguishes plain rewards from screen-time rewards
type RewardType string

const (
	RewardTypeStandard   RewardType = "standard"
	RewardTypeScreenTime RewardType = "screen_time"
)

// Reward is something a child can buy with points
type Reward struct {
	ID                int64      `db:"id" json:"id"`
	FamilyID          int64      `db:"family_id" json:"family_id"`
	Title             string     `db:"title" json:"title"`
	PointsCost        int64      `db:"points_cost" json:"points_cost"`
	RewardType        RewardType `db:"reward_type" json:"reward_type"`
	ScreenMinutes     int        `db:"screen_minutes" json:"screen_minutes"`
	Stock             *int       `db:"stock" json:"stock,omitempty"`               // nil means unlimited
	WeeklyLimit       *int       `db:"weekly_limit" json:"weekly_limit,omitempty"` // purchases per child per week
	RestrictedChildID *int64     `db:"restricted_child_id" json:"restricted_child_id,omitempty"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// IsScreenTime reports whether buying the reward grants screen minutes
func (r *Reward) IsScreenTime() bool {
	return r.RewardType == RewardTypeScreenTime
}

// PurchaseStatus represents where a purchased ticket is in its lifecycle
type PurchaseStatus string

const (
	PurchaseStatusActive       PurchaseStatus = "active"
	PurchaseStatusUseRequested PurchaseStatus = "use_requested"
	PurchaseStatusUsed         PurchaseStatus = "used"
	PurchaseStatusFulfilled    PurchaseStatus = "fulfilled"
	PurchaseStatusCancelled    PurchaseStatus = "cancelled"
	PurchaseStatusExpired      PurchaseStatus = "expired"
)

// RewardPurchase is one redemption of points for a reward (a ticket)
type RewardPurchase struct {
	ID             int64          `db:"id" json:"id"`
	RewardID       int64          `db:"reward_id" json:"reward_id"`
	ChildID        int64          `db:"child_id" json:"child_id"`
	FamilyID       int64          `db:"family_id" json:"family_id"`
	PointsSpent    int64          `db:"points_spent" json:"points_spent"`
	Status         PurchaseStatus `db:"status" json:"status"`
	PurchasedAt    time.Time      `db:"purchased_at" json:"purchased_at"`
	UseRequestedAt *time.Time     `db:"use_requested_at" json:"use_requested_at,omitempty"`
	UsedAt         *time.Time     `db:"used_at" json:"used_at,omitempty"`
	FulfilledAt    *time.Time     `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
	CancelledAt    *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// PurchaseResult is returned by purchase and cancel
type PurchaseResult struct {
	Purchase   *RewardPurchase `json:"purchase"`
	NewBalance int64           `json:"new_balance"`
}

// UseApproval is returned when a parent approves a ticket for use
type UseApproval struct {
	Purchase *RewardPurchase    `json:"purchase"`
	Session  *ScreenTimeSession `json:"session,omitempty"`
}
