package models

import (
	"time"
)

// ApprovalType governs how a task completion becomes credited
type ApprovalType string

const (
	ApprovalTypeAuto      ApprovalType = "auto"      // credited immediately on submit
	ApprovalTypeParent    ApprovalType = "parent"    // parent approves manually
	ApprovalTypeTimer     ApprovalType = "timer"     // submit requires elapsed timer evidence
	ApprovalTypeChecklist ApprovalType = "checklist" // submit requires every checklist item ticked
)

// IsValid reports whether the approval type is known
func (a ApprovalType) IsValid() bool {
	switch a {
	case ApprovalTypeAuto, ApprovalTypeParent, ApprovalTypeTimer, ApprovalTypeChecklist:
		return true
	}
	return false
}

// Task is a chore a child can complete for points
type Task struct {
	ID               int64        `db:"id" json:"id"`
	FamilyID         int64        `db:"family_id" json:"family_id"`
	Title            string       `db:"title" json:"title"`
	Points           int64        `db:"points" json:"points"`
	ApprovalType     ApprovalType `db:"approval_type" json:"approval_type"`
	AutoApproveHours *int         `db:"auto_approve_hours" json:"auto_approve_hours,omitempty"`
	TimerMinutes     int          `db:"timer_minutes" json:"timer_minutes"`
	Checklist        []string     `db:"checklist" json:"checklist"`
	AssignedChildID  *int64       `db:"assigned_child_id" json:"assigned_child_id,omitempty"`
	IsActive         bool         `db:"is_active" json:"is_active"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// CompletionStatus represents the state of a task completion
type CompletionStatus string

const (
	CompletionStatusPending      CompletionStatus = "pending"
	CompletionStatusFixRequested CompletionStatus = "fix_requested"
	CompletionStatusApproved     CompletionStatus = "approved"
	CompletionStatusAutoApproved CompletionStatus = "auto_approved"
)

// IsOpen reports whether the completion still awaits a decision
func (s CompletionStatus) IsOpen() bool {
	return s == CompletionStatusPending || s == CompletionStatusFixRequested
}

// FixRequest is the feedback a parent attaches when asking for a redo
type FixRequest struct {
	Items   []string `json:"items"`
	Message string   `json:"message"`
}

// CompletionEvidence is what a child submits for evidence-gated approval types
type CompletionEvidence struct {
	TimerSeconds   int      `json:"timer_seconds,omitempty"`
	ChecklistItems []string `json:"checklist_items,omitempty"`
}

// TaskCompletion is one submission of a task by a child
type TaskCompletion struct {
	ID              int64              `db:"id" json:"id"`
	TaskID          int64              `db:"task_id" json:"task_id"`
	ChildID         int64              `db:"child_id" json:"child_id"`
	FamilyID        int64              `db:"family_id" json:"family_id"`
	Status          CompletionStatus   `db:"status" json:"status"`
	Evidence        CompletionEvidence `db:"evidence" json:"evidence"`
	FixRequest      *FixRequest        `db:"fix_request" json:"fix_request,omitempty"`
	FixRequestCount int                `db:"fix_request_count" json:"fix_request_count"`
	PointsAwarded   int64              `db:"points_awarded" json:"points_awarded"`
	ApprovedBy      *int64             `db:"approved_by" json:"approved_by,omitempty"`
	RequestedAt     time.Time          `db:"requested_at" json:"requested_at"`
	ApprovedAt      *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
}

// CompletionResult is returned by operations that may credit the ledger
type CompletionResult struct {
	Completion *TaskCompletion `json:"completion"`
	NewBalance *int64          `json:"new_balance,omitempty"`
}

// BatchApproveResult reports how a batch approval went item by item
type BatchApproveResult struct {
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Errors    map[int64]string `json:"errors,omitempty"`
}
