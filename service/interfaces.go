package service

import (
	"context"
	"time"

	"familypoints/events"
	"familypoints/models"
)

// FamilyRepository defines the interface for family and child data access
type FamilyRepository interface {
	// Create creates a new family with the given public lookup code
	Create(ctx context.Context, name, lookupCode string) (*models.Family, error)

	// GetByID retrieves a family by id, returning nil if absent
	GetByID(ctx context.Context, id int64) (*models.Family, error)

	// GetByLookupCode retrieves a family by its public code, returning nil if absent
	GetByLookupCode(ctx context.Context, code string) (*models.Family, error)

	// CreateChild adds a child to a family
	CreateChild(ctx context.Context, familyID int64, name string) (*models.Child, error)

	// GetChild retrieves a child by id, returning nil if absent
	GetChild(ctx context.Context, childID int64) (*models.Child, error)

	// ListChildren returns every child of a family ordered by id
	ListChildren(ctx context.Context, familyID int64) ([]*models.Child, error)
}

// AccountRepository defines the interface for account balance access
type AccountRepository interface {
	// Create opens an account with a zero balance
	Create(ctx context.Context, childID, familyID int64) (*models.Account, error)

	// Get retrieves an account without locking it, returning nil if absent
	Get(ctx context.Context, childID int64) (*models.Account, error)

	// GetForUpdate retrieves an account and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, childID int64) (*models.Account, error)

	// UpdateBalance overwrites the balance of a locked account
	UpdateBalance(ctx context.Context, childID int64, newBalance int64) error
}

// LedgerRepository defines the interface for the append-only ledger
type LedgerRepository interface {
	// Insert appends an entry and fills its ID and CreatedAt
	Insert(ctx context.Context, entry *models.LedgerEntry) error

	// GetByReference returns the entry for a causal event, or nil if none exists
	GetByReference(ctx context.Context, referenceType models.ReferenceType, referenceID string) (*models.LedgerEntry, error)

	// ListByChild returns the newest entries for a child
	ListByChild(ctx context.Context, childID int64, limit int) ([]*models.LedgerEntry, error)

	// SumByChild returns the sum of all entry amounts for a child
	SumByChild(ctx context.Context, childID int64) (int64, error)
}

// TaskRepository defines the interface for task definitions
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	ListByFamily(ctx context.Context, familyID int64) ([]*models.Task, error)
}

// TaskCompletionRepository defines the interface for task completion data access
type TaskCompletionRepository interface {
	// Create inserts a completion. A second open completion for the same
	// (task, child) fails with a conflict error.
	Create(ctx context.Context, completion *models.TaskCompletion) error

	GetByID(ctx context.Context, id int64) (*models.TaskCompletion, error)

	// GetOpen returns the pending or fix_requested completion for (task, child), or nil
	GetOpen(ctx context.Context, taskID, childID int64) (*models.TaskCompletion, error)

	// MarkApproved moves a completion whose status is one of from into an
	// approved state. Returns false when the row was not in an expected state.
	MarkApproved(ctx context.Context, id int64, from []models.CompletionStatus, to models.CompletionStatus, approvedBy *int64, points int64, at time.Time) (bool, error)

	// RequestFix moves a pending completion to fix_requested and stores the feedback
	RequestFix(ctx context.Context, id int64, fix models.FixRequest) (bool, error)

	// Resubmit moves a fix_requested completion back to pending with fresh evidence
	Resubmit(ctx context.Context, id int64, evidence models.CompletionEvidence, at time.Time) (bool, error)

	// ListPendingByFamily returns open completions awaiting a parent, oldest first
	ListPendingByFamily(ctx context.Context, familyID int64) ([]*models.TaskCompletion, error)

	// ListAutoApproveDue returns pending completions whose auto-approval deadline is at or before now.
	// defaultHours applies to tasks without their own deadline. A deadline of zero hours never expires.
	ListAutoApproveDue(ctx context.Context, now time.Time, defaultHours int) ([]*models.TaskCompletion, error)
}

// RewardRepository defines the interface for reward definitions
type RewardRepository interface {
	Create(ctx context.Context, reward *models.Reward) error
	GetByID(ctx context.Context, id int64) (*models.Reward, error)
	ListByFamily(ctx context.Context, familyID int64) ([]*models.Reward, error)

	// DecrementStock takes one unit of finite stock. Returns false when none is left.
	DecrementStock(ctx context.Context, id int64) (bool, error)

	// IncrementStock returns one unit of finite stock. Unlimited rewards are left untouched.
	IncrementStock(ctx context.Context, id int64) error
}

// RewardPurchaseRepository defines the interface for purchased tickets
type RewardPurchaseRepository interface {
	Create(ctx context.Context, purchase *models.RewardPurchase) error
	GetByID(ctx context.Context, id int64) (*models.RewardPurchase, error)
	ListByChild(ctx context.Context, childID int64) ([]*models.RewardPurchase, error)

	// CountSince counts non-refunded purchases of a reward by a child since a point in time
	CountSince(ctx context.Context, rewardID, childID int64, since time.Time) (int, error)

	// Transition moves a ticket from one of the expected states to the target state
	// and stamps the matching timestamp column. Returns false when the row was not
	// in an expected state.
	Transition(ctx context.Context, id int64, from []models.PurchaseStatus, to models.PurchaseStatus, at time.Time) (bool, error)

	// ListUseRequestedBefore returns use_requested tickets requested before the cutoff
	ListUseRequestedBefore(ctx context.Context, cutoff time.Time) ([]*models.RewardPurchase, error)
}

// GoalRepository defines the interface for savings goals
type GoalRepository interface {
	Create(ctx context.Context, goal *models.Goal) error
	GetByID(ctx context.Context, id int64) (*models.Goal, error)

	// GetForUpdate retrieves a goal and locks its row until the transaction ends
	GetForUpdate(ctx context.Context, id int64) (*models.Goal, error)

	// UpdateProgress persists current points, consumed milestones and completion
	UpdateProgress(ctx context.Context, goal *models.Goal) error

	ListByChild(ctx context.Context, childID int64) ([]*models.Goal, error)

	// CreateDeposit records a transfer between the account and the goal
	CreateDeposit(ctx context.Context, deposit *models.GoalDeposit) error
}

// ScreenTimeRepository defines the interface for screen-time budgets, sessions and usage
type ScreenTimeRepository interface {
	// GetSettings returns the per-child allowance override, or nil if none is set
	GetSettings(ctx context.Context, childID int64) (*models.ScreenTimeSettings, error)
	UpsertSettings(ctx context.Context, settings *models.ScreenTimeSettings) error

	// GetOrCreateBudgetForUpdate returns the week's budget row, creating it from the
	// given defaults when absent, and locks it until the transaction ends
	GetOrCreateBudgetForUpdate(ctx context.Context, childID int64, weekStart time.Time, baseMinutes, dailyLimitMinutes int) (*models.ScreenTimeBudget, error)

	// UpdateBudget persists used and bonus minutes of a locked budget
	UpdateBudget(ctx context.Context, budget *models.ScreenTimeBudget) error

	// RecordBonus logs where bonus minutes came from
	RecordBonus(ctx context.Context, childID int64, weekStart time.Time, minutes int, source string) error

	// UsedOnDate sums logged usage minutes for a child on a calendar date
	UsedOnDate(ctx context.Context, childID int64, date time.Time) (int, error)

	// CreateSession opens a session. A second open session for the child fails with a conflict error.
	CreateSession(ctx context.Context, session *models.ScreenTimeSession) error

	GetSession(ctx context.Context, id int64) (*models.ScreenTimeSession, error)

	// GetSessionForUpdate retrieves a session and locks its row until the transaction ends
	GetSessionForUpdate(ctx context.Context, id int64) (*models.ScreenTimeSession, error)

	// GetOpenSession returns the child's session with no end time, or nil
	GetOpenSession(ctx context.Context, childID int64) (*models.ScreenTimeSession, error)

	// UpdateSession persists end, pause and usage fields of a locked session
	UpdateSession(ctx context.Context, session *models.ScreenTimeSession) error

	// InsertUsage appends a usage-log row
	InsertUsage(ctx context.Context, usage *models.ScreenTimeUsage) error
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	FamilyRepository() FamilyRepository
	AccountRepository() AccountRepository
	LedgerRepository() LedgerRepository
	TaskRepository() TaskRepository
	TaskCompletionRepository() TaskCompletionRepository
	RewardRepository() RewardRepository
	RewardPurchaseRepository() RewardPurchaseRepository
	GoalRepository() GoalRepository
	ScreenTimeRepository() ScreenTimeRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// FamilyService defines family setup and the public family lookup
type FamilyService interface {
	// CreateFamily creates a family with a fresh lookup code
	CreateFamily(ctx context.Context, name string) (*models.Family, error)

	// AddChild adds a child with an opened account and an optional opening balance
	AddChild(ctx context.Context, actor models.Actor, name string, initialBalance int64) (*models.Child, error)

	// LookupFamily resolves a public lookup code to the family and its children's names
	LookupFamily(ctx context.Context, code string) (*models.FamilyLookup, error)
}

// LedgerService defines read access to balances and parent adjustments
type LedgerService interface {
	// ApplyTransaction applies one signed balance change in its own transaction
	ApplyTransaction(ctx context.Context, tx models.LedgerTransaction) (*models.LedgerResult, error)

	// GetBalance returns a child's account
	GetBalance(ctx context.Context, actor models.Actor, childID int64) (*models.Account, error)

	// ListEntries returns the newest ledger entries of a child
	ListEntries(ctx context.Context, actor models.Actor, childID int64, limit int) ([]*models.LedgerEntry, error)

	// Adjust lets a parent credit or debit points directly. A non-empty
	// idempotency key makes retries of the same adjustment no-ops.
	Adjust(ctx context.Context, actor models.Actor, childID int64, amount int64, description, idempotencyKey string) (*models.LedgerResult, error)
}

// TaskService defines the task completion approval state machine
type TaskService interface {
	CreateTask(ctx context.Context, actor models.Actor, task *models.Task) (*models.Task, error)
	Submit(ctx context.Context, actor models.Actor, taskID, childID int64, evidence models.CompletionEvidence) (*models.CompletionResult, error)
	Approve(ctx context.Context, actor models.Actor, completionID int64) (*models.CompletionResult, error)
	BatchApprove(ctx context.Context, actor models.Actor, completionIDs []int64) (*models.BatchApproveResult, error)
	RequestFix(ctx context.Context, actor models.Actor, completionID int64, fix models.FixRequest) (*models.TaskCompletion, error)
	Resubmit(ctx context.Context, actor models.Actor, completionID int64, evidence models.CompletionEvidence) (*models.TaskCompletion, error)
	ListPending(ctx context.Context, actor models.Actor) ([]*models.TaskCompletion, error)
	AutoApproveSweep(ctx context.Context, now time.Time) (*models.SweepSummary, error)
}

// RewardService defines the reward purchase and redemption flow
type RewardService interface {
	CreateReward(ctx context.Context, actor models.Actor, reward *models.Reward) (*models.Reward, error)
	Purchase(ctx context.Context, actor models.Actor, childID, rewardID int64) (*models.PurchaseResult, error)
	Cancel(ctx context.Context, actor models.Actor, purchaseID int64) (*models.PurchaseResult, error)
	RequestUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error)
	ApproveUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.UseApproval, error)
	DenyUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error)
	Fulfill(ctx context.Context, actor models.Actor, purchaseID int64) (*models.RewardPurchase, error)
	ListPurchases(ctx context.Context, actor models.Actor, childID int64) ([]*models.RewardPurchase, error)
	AutoRefundSweep(ctx context.Context, now time.Time) (*models.SweepSummary, error)
}

// GoalService defines goal deposits, withdrawals and milestone payouts
type GoalService interface {
	CreateGoal(ctx context.Context, actor models.Actor, goal *models.Goal) (*models.Goal, error)
	GetGoal(ctx context.Context, actor models.Actor, goalID int64) (*models.Goal, error)
	Deposit(ctx context.Context, actor models.Actor, goalID int64, amount int64) (*models.DepositResult, error)
	Withdraw(ctx context.Context, actor models.Actor, goalID int64, amount int64) (*models.DepositResult, error)
}

// ScreenTimeService defines the screen-time quota enforcer
type ScreenTimeService interface {
	GetOrCreateWeeklyBudget(ctx context.Context, childID int64, weekStart time.Time) (*models.ScreenTimeBudget, error)
	SetAllowance(ctx context.Context, actor models.Actor, childID int64, weeklyMinutes, dailyLimitMinutes int) (*models.ScreenTimeSettings, error)
	GetStatus(ctx context.Context, actor models.Actor, childID int64) (*models.ScreenTimeStatus, error)
	StartSession(ctx context.Context, actor models.Actor, childID int64) (*models.ScreenTimeSession, error)
	EndSession(ctx context.Context, actor models.Actor, sessionID int64, minutesUsed *int) (*models.EndSessionResult, error)
	PauseSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.ScreenTimeSession, error)
	ResumeSession(ctx context.Context, actor models.Actor, sessionID int64) (*models.ScreenTimeSession, error)
	AddBonusMinutes(ctx context.Context, actor models.Actor, childID int64, minutes int, source string) (*models.ScreenTimeBudget, error)
}
