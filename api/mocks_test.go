package api

import (
	"context"

	"familypoints/models"
	"familypoints/service"

	"github.com/stretchr/testify/mock"
)

// The service mocks embed their interface so tests only stub what they call.

type mockFamilyService struct {
	service.FamilyService
	mock.Mock
}

func (m *mockFamilyService) CreateFamily(ctx context.Context, name string) (*models.Family, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Family), args.Error(1)
}

func (m *mockFamilyService) LookupFamily(ctx context.Context, code string) (*models.FamilyLookup, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FamilyLookup), args.Error(1)
}

type mockLedgerService struct {
	service.LedgerService
	mock.Mock
}

func (m *mockLedgerService) GetBalance(ctx context.Context, actor models.Actor, childID int64) (*models.Account, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *mockLedgerService) ListEntries(ctx context.Context, actor models.Actor, childID int64, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, actor, childID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *mockLedgerService) Adjust(ctx context.Context, actor models.Actor, childID int64, amount int64, description, idempotencyKey string) (*models.LedgerResult, error) {
	args := m.Called(ctx, actor, childID, amount, description, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerResult), args.Error(1)
}

type mockTaskService struct {
	service.TaskService
	mock.Mock
}

func (m *mockTaskService) CreateTask(ctx context.Context, actor models.Actor, task *models.Task) (*models.Task, error) {
	args := m.Called(ctx, actor, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskService) Submit(ctx context.Context, actor models.Actor, taskID, childID int64, evidence models.CompletionEvidence) (*models.CompletionResult, error) {
	args := m.Called(ctx, actor, taskID, childID, evidence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompletionResult), args.Error(1)
}

func (m *mockTaskService) BatchApprove(ctx context.Context, actor models.Actor, ids []int64) (*models.BatchApproveResult, error) {
	args := m.Called(ctx, actor, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchApproveResult), args.Error(1)
}

type mockRewardService struct {
	service.RewardService
	mock.Mock
}

func (m *mockRewardService) Purchase(ctx context.Context, actor models.Actor, childID, rewardID int64) (*models.PurchaseResult, error) {
	args := m.Called(ctx, actor, childID, rewardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PurchaseResult), args.Error(1)
}

func (m *mockRewardService) ApproveUse(ctx context.Context, actor models.Actor, purchaseID int64) (*models.UseApproval, error) {
	args := m.Called(ctx, actor, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UseApproval), args.Error(1)
}

type mockGoalService struct {
	service.GoalService
	mock.Mock
}

func (m *mockGoalService) Deposit(ctx context.Context, actor models.Actor, goalID int64, amount int64) (*models.DepositResult, error) {
	args := m.Called(ctx, actor, goalID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DepositResult), args.Error(1)
}

type mockScreenTimeService struct {
	service.ScreenTimeService
	mock.Mock
}

func (m *mockScreenTimeService) EndSession(ctx context.Context, actor models.Actor, sessionID int64, minutesUsed *int) (*models.EndSessionResult, error) {
	args := m.Called(ctx, actor, sessionID, minutesUsed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EndSessionResult), args.Error(1)
}

type mockSweepRunner struct {
	mock.Mock
}

func (m *mockSweepRunner) RunNamed(ctx context.Context, name string) (*models.SweepSummary, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SweepSummary), args.Error(1)
}
