package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"familypoints/config"
	"familypoints/events"
	"familypoints/models"
	"familypoints/repository/testutil"
	"familypoints/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type economy struct {
	db      *testutil.TestDatabase
	seeded  *testutil.SeededFamily
	parent  models.ParentActor
	child   models.ChildActor
	ledger  service.LedgerService
	tasks   service.TaskService
	rewards service.RewardService
	goals   service.GoalService
	screen  service.ScreenTimeService
}

func newEconomy(t *testing.T, balance int64) *economy {
	testDB := testutil.SetupTestDatabase(t)
	seeded := testutil.SeedFamily(t, testDB.DB, balance)
	cfg := config.NewTestConfig()
	uowFactory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	return &economy{
		db:      testDB,
		seeded:  seeded,
		parent:  models.ParentActor{UserID: 1, FamilyID: seeded.Family.ID},
		child:   models.ChildActor{ChildID: seeded.Child.ID, FamilyID: seeded.Family.ID},
		ledger:  service.NewLedgerService(uowFactory),
		tasks:   service.NewTaskService(uowFactory, cfg),
		rewards: service.NewRewardService(uowFactory, cfg),
		goals:   service.NewGoalService(uowFactory),
		screen:  service.NewScreenTimeService(uowFactory, cfg),
	}
}

// assertConserved checks the cached balance against the ledger sum
func (e *economy) assertConserved(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	account, err := NewAccountRepository(e.db.DB).Get(ctx, e.seeded.Child.ID)
	require.NoError(t, err)
	sum, err := NewLedgerRepository(e.db.DB).SumByChild(ctx, e.seeded.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, sum, account.Balance, "balance must equal the ledger sum")
	assert.GreaterOrEqual(t, account.Balance, int64(0))
	return account.Balance
}

func TestEconomy_ConcurrentPurchasesNeverOverdraw(t *testing.T) {
	e := newEconomy(t, 100)
	ctx := context.Background()

	reward, err := e.rewards.CreateReward(ctx, e.parent, testutil.CreateTestReward(0, 30))
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.rewards.Purchase(ctx, e.child, e.seeded.Child.ID, reward.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected purchase error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, insufficient)
	assert.Equal(t, int64(10), e.assertConserved(t))
}

func TestEconomy_ConcurrentApprovalCreditsOnce(t *testing.T) {
	e := newEconomy(t, 0)
	ctx := context.Background()

	task, err := e.tasks.CreateTask(ctx, e.parent, testutil.CreateTestTask(0, 25))
	require.NoError(t, err)
	submitted, err := e.tasks.Submit(ctx, e.child, task.ID, e.seeded.Child.ID, models.CompletionEvidence{})
	require.NoError(t, err)
	assert.Nil(t, submitted.NewBalance)

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.tasks.Approve(ctx, e.parent, submitted.Completion.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, service.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(25), e.assertConserved(t))
}

func TestEconomy_CancelRefundsExactly(t *testing.T) {
	e := newEconomy(t, 50)
	ctx := context.Background()

	stock := 1
	reward := testutil.CreateTestReward(0, 20)
	reward.Stock = &stock
	reward, err := e.rewards.CreateReward(ctx, e.parent, reward)
	require.NoError(t, err)

	purchase, err := e.rewards.Purchase(ctx, e.child, e.seeded.Child.ID, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), purchase.NewBalance)

	_, err = e.rewards.Purchase(ctx, e.child, e.seeded.Child.ID, reward.ID)
	assert.ErrorIs(t, err, service.ErrQuotaExceeded, "stock is exhausted")

	cancelled, err := e.rewards.Cancel(ctx, e.child, purchase.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), cancelled.NewBalance)
	assert.Equal(t, models.PurchaseStatusCancelled, cancelled.Purchase.Status)

	_, err = e.rewards.Cancel(ctx, e.child, purchase.Purchase.ID)
	assert.ErrorIs(t, err, service.ErrConflict)

	restocked, err := NewRewardRepository(e.db.DB).GetByID(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *restocked.Stock)

	assert.Equal(t, int64(50), e.assertConserved(t))
}

func TestEconomy_MilestonesPayOnce(t *testing.T) {
	e := newEconomy(t, 200)
	ctx := context.Background()

	goal, err := e.goals.CreateGoal(ctx, e.child, testutil.CreateTestGoal(e.seeded.Child.ID, e.seeded.Family.ID, 100))
	require.NoError(t, err)

	first, err := e.goals.Deposit(ctx, e.child, goal.ID, 30)
	require.NoError(t, err)
	require.Len(t, first.Milestones, 1)
	assert.Equal(t, 25, first.Milestones[0].Threshold)
	assert.Equal(t, int64(200-30+10), first.NewBalance)

	_, err = e.goals.Withdraw(ctx, e.child, goal.ID, 30)
	require.NoError(t, err)

	again, err := e.goals.Deposit(ctx, e.child, goal.ID, 30)
	require.NoError(t, err)
	assert.Empty(t, again.Milestones, "the 25 percent milestone was already consumed")

	rest, err := e.goals.Deposit(ctx, e.child, goal.ID, 70)
	require.NoError(t, err)
	assert.Len(t, rest.Milestones, 2)
	assert.True(t, rest.Goal.IsCompleted)
	assert.ElementsMatch(t, []int{25, 50, 75}, rest.Goal.MilestonesCompleted)

	_, err = e.goals.Deposit(ctx, e.child, goal.ID, 1)
	assert.ErrorIs(t, err, service.ErrConflict)

	// 200 - 30 + 10 + 30 - 30 - 70 + 20 + 30
	assert.Equal(t, int64(160), e.assertConserved(t))
}

func TestEconomy_ScreenTimeOveruseIsClamped(t *testing.T) {
	e := newEconomy(t, 0)
	ctx := context.Background()

	_, err := e.screen.SetAllowance(ctx, e.parent, e.seeded.Child.ID, 60, 30)
	require.NoError(t, err)

	session, err := e.screen.StartSession(ctx, e.child, e.seeded.Child.ID)
	require.NoError(t, err)

	_, err = e.screen.StartSession(ctx, e.child, e.seeded.Child.ID)
	assert.ErrorIs(t, err, service.ErrConflict)

	minutes := 45
	result, err := e.screen.EndSession(ctx, e.child, session.ID, &minutes)
	require.NoError(t, err)
	assert.Equal(t, 45, result.RequestedMinutes)
	assert.Equal(t, 30, result.RecordedMinutes)
	assert.Equal(t, 30, result.Budget.UsedMinutes)

	status, err := e.screen.GetStatus(ctx, e.child, e.seeded.Child.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Available)

	_, err = e.screen.StartSession(ctx, e.child, e.seeded.Child.ID)
	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
}

func TestEconomy_ConcurrentDepositsNeverOverdraw(t *testing.T) {
	e := newEconomy(t, 100)
	ctx := context.Background()

	// No milestone threshold is reached, so deposits are the only movement
	goal, err := e.goals.CreateGoal(ctx, e.child, testutil.CreateTestGoal(e.seeded.Child.ID, e.seeded.Family.ID, 1000))
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.goals.Deposit(ctx, e.child, goal.ID, 30)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, service.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected deposit error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, insufficient)
	assert.Equal(t, int64(10), e.assertConserved(t))

	saved, err := NewGoalRepository(e.db.DB).GetByID(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), saved.CurrentPoints)
	assert.Empty(t, saved.MilestonesCompleted)
}

func TestEconomy_ConcurrentSessionStartsOpenOne(t *testing.T) {
	e := newEconomy(t, 0)
	ctx := context.Background()

	const attempts = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	started, rejected := 0, 0
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.screen.StartSession(ctx, e.child, e.seeded.Child.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, attempts-1, rejected)

	status, err := e.screen.GetStatus(ctx, e.child, e.seeded.Child.ID)
	require.NoError(t, err)
	assert.NotNil(t, status.OpenSession)
}

func TestEconomy_BonusMinutesStayInTheirWeek(t *testing.T) {
	e := newEconomy(t, 0)
	ctx := context.Background()
	childID := e.seeded.Child.ID

	boosted, err := e.screen.AddBonusMinutes(ctx, e.parent, childID, 15, "homework")
	require.NoError(t, err)
	assert.Equal(t, 15, boosted.BonusMinutes)

	thisWeek := service.WeekStart(time.Now(), time.Monday)
	assert.True(t, boosted.WeekStartDate.Equal(thisWeek))

	nextWeek := thisWeek.AddDate(0, 0, 7)
	fresh, err := e.screen.GetOrCreateWeeklyBudget(ctx, childID, nextWeek.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.NotEqual(t, boosted.ID, fresh.ID)
	assert.Equal(t, 0, fresh.BonusMinutes)
	assert.True(t, fresh.WeekStartDate.Equal(nextWeek))

	sameWeek, err := e.screen.GetOrCreateWeeklyBudget(ctx, childID, nextWeek.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, sameWeek.ID)

	current, err := e.screen.GetOrCreateWeeklyBudget(ctx, childID, thisWeek.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, boosted.ID, current.ID)
	assert.Equal(t, 15, current.BonusMinutes)
}
