package service

import (
	"context"
	"sync"
	"time"

	"familypoints/events"
	"familypoints/models"

	"github.com/stretchr/testify/mock"
)

// MockFamilyRepository is a mock implementation of FamilyRepository
type MockFamilyRepository struct {
	mock.Mock
}

func (m *MockFamilyRepository) Create(ctx context.Context, name, lookupCode string) (*models.Family, error) {
	args := m.Called(ctx, name, lookupCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Family), args.Error(1)
}

func (m *MockFamilyRepository) GetByID(ctx context.Context, id int64) (*models.Family, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Family), args.Error(1)
}

func (m *MockFamilyRepository) GetByLookupCode(ctx context.Context, code string) (*models.Family, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Family), args.Error(1)
}

func (m *MockFamilyRepository) CreateChild(ctx context.Context, familyID int64, name string) (*models.Child, error) {
	args := m.Called(ctx, familyID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Child), args.Error(1)
}

func (m *MockFamilyRepository) GetChild(ctx context.Context, childID int64) (*models.Child, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Child), args.Error(1)
}

func (m *MockFamilyRepository) ListChildren(ctx context.Context, familyID int64) ([]*models.Child, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Child), args.Error(1)
}

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, childID, familyID int64) (*models.Account, error) {
	args := m.Called(ctx, childID, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Get(ctx context.Context, childID int64) (*models.Account, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetForUpdate(ctx context.Context, childID int64) (*models.Account, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, childID int64, newBalance int64) error {
	args := m.Called(ctx, childID, newBalance)
	return args.Error(0)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByReference(ctx context.Context, referenceType models.ReferenceType, referenceID string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, referenceType, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ListByChild(ctx context.Context, childID int64, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, childID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) SumByChild(ctx context.Context, childID int64) (int64, error) {
	args := m.Called(ctx, childID)
	return args.Get(0).(int64), args.Error(1)
}

// MockTaskRepository is a mock implementation of TaskRepository
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByFamily(ctx context.Context, familyID int64) ([]*models.Task, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

// MockTaskCompletionRepository is a mock implementation of TaskCompletionRepository
type MockTaskCompletionRepository struct {
	mock.Mock
}

func (m *MockTaskCompletionRepository) Create(ctx context.Context, completion *models.TaskCompletion) error {
	args := m.Called(ctx, completion)
	return args.Error(0)
}

func (m *MockTaskCompletionRepository) GetByID(ctx context.Context, id int64) (*models.TaskCompletion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskCompletion), args.Error(1)
}

func (m *MockTaskCompletionRepository) GetOpen(ctx context.Context, taskID, childID int64) (*models.TaskCompletion, error) {
	args := m.Called(ctx, taskID, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskCompletion), args.Error(1)
}

func (m *MockTaskCompletionRepository) MarkApproved(ctx context.Context, id int64, from []models.CompletionStatus, to models.CompletionStatus, approvedBy *int64, points int64, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, approvedBy, points, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskCompletionRepository) RequestFix(ctx context.Context, id int64, fix models.FixRequest) (bool, error) {
	args := m.Called(ctx, id, fix)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskCompletionRepository) Resubmit(ctx context.Context, id int64, evidence models.CompletionEvidence, at time.Time) (bool, error) {
	args := m.Called(ctx, id, evidence, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskCompletionRepository) ListPendingByFamily(ctx context.Context, familyID int64) ([]*models.TaskCompletion, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaskCompletion), args.Error(1)
}

func (m *MockTaskCompletionRepository) ListAutoApproveDue(ctx context.Context, now time.Time, defaultHours int) ([]*models.TaskCompletion, error) {
	args := m.Called(ctx, now, defaultHours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaskCompletion), args.Error(1)
}

// MockRewardRepository is a mock implementation of RewardRepository
type MockRewardRepository struct {
	mock.Mock
}

func (m *MockRewardRepository) Create(ctx context.Context, reward *models.Reward) error {
	args := m.Called(ctx, reward)
	return args.Error(0)
}

func (m *MockRewardRepository) GetByID(ctx context.Context, id int64) (*models.Reward, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reward), args.Error(1)
}

func (m *MockRewardRepository) ListByFamily(ctx context.Context, familyID int64) ([]*models.Reward, error) {
	args := m.Called(ctx, familyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reward), args.Error(1)
}

func (m *MockRewardRepository) DecrementStock(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRewardRepository) IncrementStock(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRewardPurchaseRepository is a mock implementation of RewardPurchaseRepository
type MockRewardPurchaseRepository struct {
	mock.Mock
}

func (m *MockRewardPurchaseRepository) Create(ctx context.Context, purchase *models.RewardPurchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockRewardPurchaseRepository) GetByID(ctx context.Context, id int64) (*models.RewardPurchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RewardPurchase), args.Error(1)
}

func (m *MockRewardPurchaseRepository) ListByChild(ctx context.Context, childID int64) ([]*models.RewardPurchase, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RewardPurchase), args.Error(1)
}

func (m *MockRewardPurchaseRepository) CountSince(ctx context.Context, rewardID, childID int64, since time.Time) (int, error) {
	args := m.Called(ctx, rewardID, childID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockRewardPurchaseRepository) Transition(ctx context.Context, id int64, from []models.PurchaseStatus, to models.PurchaseStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockRewardPurchaseRepository) ListUseRequestedBefore(ctx context.Context, cutoff time.Time) ([]*models.RewardPurchase, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RewardPurchase), args.Error(1)
}

// MockGoalRepository is a mock implementation of GoalRepository
type MockGoalRepository struct {
	mock.Mock
}

func (m *MockGoalRepository) Create(ctx context.Context, goal *models.Goal) error {
	args := m.Called(ctx, goal)
	return args.Error(0)
}

func (m *MockGoalRepository) GetByID(ctx context.Context, id int64) (*models.Goal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Goal), args.Error(1)
}

func (m *MockGoalRepository) GetForUpdate(ctx context.Context, id int64) (*models.Goal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Goal), args.Error(1)
}

func (m *MockGoalRepository) UpdateProgress(ctx context.Context, goal *models.Goal) error {
	args := m.Called(ctx, goal)
	return args.Error(0)
}

func (m *MockGoalRepository) ListByChild(ctx context.Context, childID int64) ([]*models.Goal, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Goal), args.Error(1)
}

func (m *MockGoalRepository) CreateDeposit(ctx context.Context, deposit *models.GoalDeposit) error {
	args := m.Called(ctx, deposit)
	return args.Error(0)
}

// MockScreenTimeRepository is a mock implementation of ScreenTimeRepository
type MockScreenTimeRepository struct {
	mock.Mock
}

func (m *MockScreenTimeRepository) GetSettings(ctx context.Context, childID int64) (*models.ScreenTimeSettings, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreenTimeSettings), args.Error(1)
}

func (m *MockScreenTimeRepository) UpsertSettings(ctx context.Context, settings *models.ScreenTimeSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *MockScreenTimeRepository) GetOrCreateBudgetForUpdate(ctx context.Context, childID int64, weekStart time.Time, baseMinutes, dailyLimitMinutes int) (*models.ScreenTimeBudget, error) {
	args := m.Called(ctx, childID, weekStart, baseMinutes, dailyLimitMinutes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreenTimeBudget), args.Error(1)
}

func (m *MockScreenTimeRepository) UpdateBudget(ctx context.Context, budget *models.ScreenTimeBudget) error {
	args := m.Called(ctx, budget)
	return args.Error(0)
}

func (m *MockScreenTimeRepository) RecordBonus(ctx context.Context, childID int64, weekStart time.Time, minutes int, source string) error {
	args := m.Called(ctx, childID, weekStart, minutes, source)
	return args.Error(0)
}

func (m *MockScreenTimeRepository) UsedOnDate(ctx context.Context, childID int64, date time.Time) (int, error) {
	args := m.Called(ctx, childID, date)
	return args.Int(0), args.Error(1)
}

func (m *MockScreenTimeRepository) CreateSession(ctx context.Context, session *models.ScreenTimeSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockScreenTimeRepository) GetSession(ctx context.Context, id int64) (*models.ScreenTimeSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreenTimeSession), args.Error(1)
}

func (m *MockScreenTimeRepository) GetSessionForUpdate(ctx context.Context, id int64) (*models.ScreenTimeSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreenTimeSession), args.Error(1)
}

func (m *MockScreenTimeRepository) GetOpenSession(ctx context.Context, childID int64) (*models.ScreenTimeSession, error) {
	args := m.Called(ctx, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScreenTimeSession), args.Error(1)
}

func (m *MockScreenTimeRepository) UpdateSession(ctx context.Context, session *models.ScreenTimeSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockScreenTimeRepository) InsertUsage(ctx context.Context, usage *models.ScreenTimeUsage) error {
	args := m.Called(ctx, usage)
	return args.Error(0)
}

// MockEventPublisher records published events instead of delivering them
type MockEventPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns everything published so far
func (m *MockEventPublisher) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

// OfType returns published events of one type
func (m *MockEventPublisher) OfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range m.Events() {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Begin, Commit and
// Rollback are expectations; repositories are plain fields set by the test.
type MockUnitOfWork struct {
	mock.Mock
	Families        *MockFamilyRepository
	Accounts        *MockAccountRepository
	Ledger          *MockLedgerRepository
	Tasks           *MockTaskRepository
	TaskCompletions *MockTaskCompletionRepository
	Rewards         *MockRewardRepository
	Purchases       *MockRewardPurchaseRepository
	Goals           *MockGoalRepository
	ScreenTime      *MockScreenTimeRepository
	Events          *MockEventPublisher
}

// NewMockUnitOfWork creates a unit of work with a fresh mock for every repository
func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{
		Families:        new(MockFamilyRepository),
		Accounts:        new(MockAccountRepository),
		Ledger:          new(MockLedgerRepository),
		Tasks:           new(MockTaskRepository),
		TaskCompletions: new(MockTaskCompletionRepository),
		Rewards:         new(MockRewardRepository),
		Purchases:       new(MockRewardPurchaseRepository),
		Goals:           new(MockGoalRepository),
		ScreenTime:      new(MockScreenTimeRepository),
		Events:          new(MockEventPublisher),
	}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) FamilyRepository() FamilyRepository   { return m.Families }
func (m *MockUnitOfWork) AccountRepository() AccountRepository { return m.Accounts }
func (m *MockUnitOfWork) LedgerRepository() LedgerRepository   { return m.Ledger }
func (m *MockUnitOfWork) TaskRepository() TaskRepository       { return m.Tasks }
func (m *MockUnitOfWork) TaskCompletionRepository() TaskCompletionRepository {
	return m.TaskCompletions
}
func (m *MockUnitOfWork) RewardRepository() RewardRepository                 { return m.Rewards }
func (m *MockUnitOfWork) RewardPurchaseRepository() RewardPurchaseRepository { return m.Purchases }
func (m *MockUnitOfWork) GoalRepository() GoalRepository                     { return m.Goals }
func (m *MockUnitOfWork) ScreenTimeRepository() ScreenTimeRepository         { return m.ScreenTime }
func (m *MockUnitOfWork) EventBus() EventPublisher                           { return m.Events }

// AssertRepositories asserts expectations on every repository mock
func (m *MockUnitOfWork) AssertRepositories(t mock.TestingT) {
	m.Families.AssertExpectations(t)
	m.Accounts.AssertExpectations(t)
	m.Ledger.AssertExpectations(t)
	m.Tasks.AssertExpectations(t)
	m.TaskCompletions.AssertExpectations(t)
	m.Rewards.AssertExpectations(t)
	m.Purchases.AssertExpectations(t)
	m.Goals.AssertExpectations(t)
	m.ScreenTime.AssertExpectations(t)
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
