package service

import (
	"testing"

	"familypoints/events"
	"familypoints/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestGoalService(f *testFixture) *goalService {
	svc := NewGoalService(f.factory).(*goalService)
	svc.now = fixedClock(testNow)
	return svc
}

func testGoal() *models.Goal {
	return &models.Goal{
		ID:                  9,
		ChildID:             testChildID,
		FamilyID:            testFamilyID,
		Title:               "Bike",
		TargetPoints:        100,
		MilestoneBonuses:    map[int]int64{25: 5, 50: 10, 75: 0},
		MilestonesCompleted: []int{},
	}
}

func expectGoalWrites(f *testFixture) {
	deposits := int64(0)
	f.uow.Goals.On("CreateDeposit", f.ctx, mock.AnythingOfType("*models.GoalDeposit")).Return(nil).Run(func(args mock.Arguments) {
		deposits++
		args.Get(1).(*models.GoalDeposit).ID = deposits
	}).Maybe()
	f.uow.Goals.On("UpdateProgress", f.ctx, mock.AnythingOfType("*models.Goal")).Return(nil).Maybe()
}

func TestGoalService_CreateGoal(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := newTestGoalService(f)
	f.uow.Goals.On("Create", f.ctx, mock.AnythingOfType("*models.Goal")).Return(nil)

	goal, err := svc.CreateGoal(f.ctx, f.child, &models.Goal{ChildID: testChildID, Title: "Bike", TargetPoints: 100})
	require.NoError(t, err)
	assert.Equal(t, testFamilyID, goal.FamilyID)
	assert.NotNil(t, goal.MilestoneBonuses)

	_, err = svc.CreateGoal(f.ctx, f.child, &models.Goal{ChildID: testChildID, Title: "Bike", TargetPoints: 100, MilestoneBonuses: map[int]int64{30: 5}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateGoal(f.ctx, f.child, &models.Goal{ChildID: testChildID, Title: "Bike", TargetPoints: 0})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGoalService_DepositCrossesMilestones(t *testing.T) {
	f := newTestFixture(t, 200)
	f.expectLedger()
	expectGoalWrites(f)
	svc := newTestGoalService(f)

	goal := testGoal()
	f.uow.Goals.On("GetForUpdate", f.ctx, int64(9)).Return(goal, nil)

	result, err := svc.Deposit(f.ctx, f.child, 9, 60)
	require.NoError(t, err)
	assert.Equal(t, []models.MilestonePayout{{Threshold: 25, Bonus: 5}, {Threshold: 50, Bonus: 10}}, result.Milestones)
	assert.Equal(t, int64(200-60+5+10), result.NewBalance)
	assert.Equal(t, []int{25, 50}, goal.MilestonesCompleted)
	assert.False(t, goal.IsCompleted)
	assert.Len(t, f.uow.Events.OfType(events.EventTypeGoalMilestoneReached), 2)

	var references []string
	for _, e := range f.entries {
		if e.ReferenceType == models.ReferenceTypeGoalMilestone {
			references = append(references, e.ReferenceID)
		}
	}
	assert.Equal(t, []string{"9:25", "9:50"}, references)

	// A zero bonus still consumes the milestone without a ledger entry
	entries := len(f.entries)
	result, err = svc.Deposit(f.ctx, f.child, 9, 15)
	require.NoError(t, err)
	assert.Equal(t, []models.MilestonePayout{{Threshold: 75, Bonus: 0}}, result.Milestones)
	assert.Len(t, f.entries, entries+1)
}

func TestGoalService_MilestonesSurviveWithdrawal(t *testing.T) {
	f := newTestFixture(t, 100)
	f.expectLedger()
	expectGoalWrites(f)
	svc := newTestGoalService(f)

	goal := testGoal()
	goal.CurrentPoints = 30
	goal.MilestonesCompleted = []int{25}
	f.uow.Goals.On("GetForUpdate", f.ctx, int64(9)).Return(goal, nil)

	_, err := svc.Withdraw(f.ctx, f.child, 9, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), goal.CurrentPoints)
	assert.Equal(t, []int{25}, goal.MilestonesCompleted)

	result, err := svc.Deposit(f.ctx, f.child, 9, 30)
	require.NoError(t, err)
	assert.Empty(t, result.Milestones)
	assert.Equal(t, int64(100), f.account.Balance)

	_, err = svc.Withdraw(f.ctx, f.child, 9, 31)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGoalService_Completion(t *testing.T) {
	f := newTestFixture(t, 150)
	f.expectLedger()
	expectGoalWrites(f)
	svc := newTestGoalService(f)

	goal := testGoal()
	goal.CurrentPoints = 80
	goal.MilestonesCompleted = []int{25, 50, 75}
	f.uow.Goals.On("GetForUpdate", f.ctx, int64(9)).Return(goal, nil)

	result, err := svc.Deposit(f.ctx, f.child, 9, 20)
	require.NoError(t, err)
	assert.True(t, result.Goal.IsCompleted)
	require.NotNil(t, result.Goal.CompletedAt)
	assert.Equal(t, testNow, *result.Goal.CompletedAt)
	assert.Len(t, f.uow.Events.OfType(events.EventTypeGoalCompleted), 1)

	_, err = svc.Deposit(f.ctx, f.child, 9, 1)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.Withdraw(f.ctx, f.child, 9, 1)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGoalService_DepositInsufficientFunds(t *testing.T) {
	f := newTestFixture(t, 10)
	f.expectLedger()
	expectGoalWrites(f)
	svc := newTestGoalService(f)

	goal := testGoal()
	f.uow.Goals.On("GetForUpdate", f.ctx, int64(9)).Return(goal, nil)

	_, err := svc.Deposit(f.ctx, f.child, 9, 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	f.uow.Goals.AssertNotCalled(t, "UpdateProgress", mock.Anything, mock.Anything)
	f.uow.AssertNotCalled(t, "Commit")

	_, err = svc.Deposit(f.ctx, f.child, 9, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGoalService_SiblingCannotDeposit(t *testing.T) {
	f := newTestFixture(t, 10)
	svc := newTestGoalService(f)
	f.uow.Goals.On("GetForUpdate", f.ctx, int64(9)).Return(testGoal(), nil)

	_, err := svc.Deposit(f.ctx, models.ChildActor{ChildID: 101, FamilyID: testFamilyID}, 9, 5)
	assert.ErrorIs(t, err, ErrAuthorization)
}
