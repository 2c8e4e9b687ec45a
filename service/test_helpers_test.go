package service

import (
	"context"
	"testing"
	"time"

	"familypoints/config"
	"familypoints/models"

	"github.com/stretchr/testify/mock"
)

const (
	testFamilyID = int64(10)
	testChildID  = int64(100)
	testParentID = int64(1)
)

var testNow = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC) // a Wednesday

// testFixture wires a mock unit of work whose account balance evolves with
// every ledger write, so services can be driven end to end against mocks.
type testFixture struct {
	ctx     context.Context
	uow     *MockUnitOfWork
	factory *MockUnitOfWorkFactory
	parent  models.ParentActor
	child   models.ChildActor
	account *models.Account
	entries []*models.LedgerEntry
	cfg     *config.Config
}

func newTestFixture(t *testing.T, balance int64) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:     context.Background(),
		uow:     NewMockUnitOfWork(),
		factory: new(MockUnitOfWorkFactory),
		parent:  models.ParentActor{UserID: testParentID, FamilyID: testFamilyID},
		child:   models.ChildActor{ChildID: testChildID, FamilyID: testFamilyID},
		account: &models.Account{ChildID: testChildID, FamilyID: testFamilyID, Balance: balance},
		cfg:     config.NewTestConfig(),
	}

	f.factory.On("Create").Return(f.uow)
	f.uow.On("Begin", f.ctx).Return(nil)
	f.uow.On("Commit").Return(nil).Maybe()
	f.uow.On("Rollback").Return(nil).Maybe()

	f.uow.Families.On("GetChild", f.ctx, testChildID).
		Return(&models.Child{ID: testChildID, FamilyID: testFamilyID, Name: "Alex"}, nil).Maybe()

	return f
}

// expectLedger stubs the account and ledger repositories for any number of
// balance changes on the test child
func (f *testFixture) expectLedger() {
	f.uow.Accounts.On("GetForUpdate", f.ctx, testChildID).Return(f.account, nil).Maybe()
	f.uow.Accounts.On("UpdateBalance", f.ctx, testChildID, mock.AnythingOfType("int64")).
		Return(nil).
		Run(func(args mock.Arguments) {
			f.account.Balance = args.Get(2).(int64)
		}).Maybe()
	f.uow.Ledger.On("GetByReference", f.ctx, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	f.uow.Ledger.On("Insert", f.ctx, mock.AnythingOfType("*models.LedgerEntry")).
		Return(nil).
		Run(func(args mock.Arguments) {
			entry := args.Get(1).(*models.LedgerEntry)
			entry.ID = int64(len(f.entries) + 1)
			f.entries = append(f.entries, entry)
		}).Maybe()
}

// ledgerSum sums the amounts written through the mock ledger
func (f *testFixture) ledgerSum() int64 {
	var sum int64
	for _, e := range f.entries {
		sum += e.Amount
	}
	return sum
}

func (f *testFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.factory.AssertExpectations(t)
	f.uow.AssertExpectations(t)
	f.uow.AssertRepositories(t)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

// expectBudget stubs the screen-time budget lock for the test child
func (f *testFixture) expectBudget(budget *models.ScreenTimeBudget, usedToday int) {
	f.uow.ScreenTime.On("GetSettings", f.ctx, testChildID).Return(nil, nil).Maybe()
	f.uow.ScreenTime.On("GetOrCreateBudgetForUpdate", f.ctx, testChildID, mock.AnythingOfType("time.Time"), mock.Anything, mock.Anything).
		Return(budget, nil).Maybe()
	f.uow.ScreenTime.On("UsedOnDate", f.ctx, testChildID, mock.AnythingOfType("time.Time")).Return(usedToday, nil).Maybe()
}

func testBudget(base, bonus, used, daily int) *models.ScreenTimeBudget {
	return &models.ScreenTimeBudget{
		ID:                1,
		ChildID:           testChildID,
		WeekStartDate:     WeekStart(testNow, time.Monday),
		BaseMinutes:       base,
		BonusMinutes:      bonus,
		UsedMinutes:       used,
		DailyLimitMinutes: daily,
	}
}
