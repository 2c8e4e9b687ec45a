package models

import (
	"time"
)

// Account is a child's spendable points balance
type Account struct {
	ChildID   int64     `db:"child_id" json:"child_id"`
	FamilyID  int64     `db:"family_id" json:"family_id"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TransactionType represents the type of balance change
type TransactionType string

const (
	TransactionTypeInitial          TransactionType = "initial"
	TransactionTypeTaskReward       TransactionType = "task_reward"
	TransactionTypeRewardPurchase   TransactionType = "reward_purchase"
	TransactionTypeRewardRefund     TransactionType = "reward_refund"
	TransactionTypeGoalDeposit      TransactionType = "goal_deposit"
	TransactionTypeGoalWithdrawal   TransactionType = "goal_withdrawal"
	TransactionTypeMilestoneBonus   TransactionType = "milestone_bonus"
	TransactionTypeParentAdjustment TransactionType = "parent_adjustment"
)

// ReferenceType represents what kind of causal event a ledger entry belongs to.
// (ReferenceType, ReferenceID) is unique across the ledger.
type ReferenceType string

const (
	ReferenceTypeAccountOpening ReferenceType = "account_opening"
	ReferenceTypeTaskCompletion ReferenceType = "task_completion"
	ReferenceTypeRewardPurchase ReferenceType = "reward_purchase"
	ReferenceTypeRewardRefund   ReferenceType = "reward_refund"
	ReferenceTypeGoalDeposit    ReferenceType = "goal_deposit"
	ReferenceTypeGoalWithdrawal ReferenceType = "goal_withdrawal"
	ReferenceTypeGoalMilestone  ReferenceType = "goal_milestone"
	ReferenceTypeAdjustment     ReferenceType = "adjustment"
)

// LedgerEntry is an immutable record of one balance change
type LedgerEntry struct {
	ID            int64           `db:"id" json:"id"`
	ChildID       int64           `db:"child_id" json:"child_id"`
	FamilyID      int64           `db:"family_id" json:"family_id"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        int64           `db:"amount" json:"amount"`
	BalanceAfter  int64           `db:"balance_after" json:"balance_after"`
	ReferenceType ReferenceType   `db:"reference_type" json:"reference_type"`
	ReferenceID   string          `db:"reference_id" json:"reference_id"`
	Description   string          `db:"description" json:"description"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LedgerTransaction is a request to move points on one child's account
type LedgerTransaction struct {
	ChildID       int64
	Amount        int64 // signed: credits are positive, debits negative
	Type          TransactionType
	ReferenceType ReferenceType
	ReferenceID   string
	Description   string
}

// LedgerResult is the outcome of applying a LedgerTransaction
type LedgerResult struct {
	NewBalance int64 `json:"new_balance"`
	EntryID    int64 `json:"entry_id"`
	// Replayed is true when an entry for the same reference already existed and nothing was applied
	Replayed bool `json:"replayed"`
}
