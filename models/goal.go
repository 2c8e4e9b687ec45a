package models

import (
	"strconv"
	"time"
)

// MilestoneThresholds are the goal progress percentages that pay a bonus
var MilestoneThresholds = []int{25, 50, 75}

// Goal is a savings target a child deposits points into
type Goal struct {
	ID                  int64         `db:"id" json:"id"`
	ChildID             int64         `db:"child_id" json:"child_id"`
	FamilyID            int64         `db:"family_id" json:"family_id"`
	Title               string        `db:"title" json:"title"`
	TargetPoints        int64         `db:"target_points" json:"target_points"`
	CurrentPoints       int64         `db:"current_points" json:"current_points"`
	MilestoneBonuses    map[int]int64 `db:"milestone_bonuses" json:"milestone_bonuses"`
	MilestonesCompleted []int         `db:"milestones_completed" json:"milestones_completed"`
	IsCompleted         bool          `db:"is_completed" json:"is_completed"`
	CompletedAt         *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

// HasMilestone reports whether the threshold has already paid out
func (g *Goal) HasMilestone(threshold int) bool {
	for _, t := range g.MilestonesCompleted {
		if t == threshold {
			return true
		}
	}
	return false
}

// ProgressPercent returns current/target as a percentage (integer math, floor)
func (g *Goal) ProgressPercent() int64 {
	if g.TargetPoints <= 0 {
		return 0
	}
	return g.CurrentPoints * 100 / g.TargetPoints
}

// MilestoneReference is the ledger reference id of a goal's milestone bonus
func MilestoneReference(goalID int64, threshold int) string {
	return strconv.FormatInt(goalID, 10) + ":" + strconv.Itoa(threshold)
}

// DepositType distinguishes deposits into a goal from withdrawals out of it
type DepositType string

const (
	DepositTypeDeposit    DepositType = "deposit"
	DepositTypeWithdrawal DepositType = "withdrawal"
)

// GoalDeposit is one transfer between an account and a goal
type GoalDeposit struct {
	ID        int64       `db:"id" json:"id"`
	GoalID    int64       `db:"goal_id" json:"goal_id"`
	ChildID   int64       `db:"child_id" json:"child_id"`
	Amount    int64       `db:"amount" json:"amount"`
	Type      DepositType `db:"type" json:"type"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// MilestonePayout records one milestone bonus credited during a deposit
type MilestonePayout struct {
	Threshold int   `json:"threshold"`
	Bonus     int64 `json:"bonus"`
}

// DepositResult is returned by goal deposits and withdrawals
type DepositResult struct {
	Goal       *Goal             `json:"goal"`
	Deposit    *GoalDeposit      `json:"deposit"`
	NewBalance int64             `json:"new_balance"`
	Milestones []MilestonePayout `json:"milestones,omitempty"`
}
