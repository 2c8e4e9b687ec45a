package service

import (
	"testing"
	"time"

	"familypoints/events"
	"familypoints/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestScreenTimeService(f *testFixture) *screenTimeService {
	svc := NewScreenTimeService(f.factory, f.cfg).(*screenTimeService)
	svc.now = fixedClock(testNow)
	return svc
}

func openSession(startedAgo time.Duration) *models.ScreenTimeSession {
	return &models.ScreenTimeSession{
		ID:        12,
		ChildID:   testChildID,
		StartedAt: testNow.Add(-startedAgo),
	}
}

func expectSessionEnd(f *testFixture, session *models.ScreenTimeSession) {
	f.uow.ScreenTime.On("GetSession", f.ctx, session.ID).Return(session, nil)
	f.uow.ScreenTime.On("GetSessionForUpdate", f.ctx, session.ID).Return(session, nil)
	f.uow.ScreenTime.On("UpdateSession", f.ctx, session).Return(nil)
	f.uow.ScreenTime.On("InsertUsage", f.ctx, mock.AnythingOfType("*models.ScreenTimeUsage")).Return(nil)
	f.uow.ScreenTime.On("UpdateBudget", f.ctx, mock.AnythingOfType("*models.ScreenTimeBudget")).Return(nil)
}

func TestScreenTimeService_GetStatus(t *testing.T) {
	f := newTestFixture(t, 0)
	f.expectBudget(testBudget(420, 30, 400, 120), 100)
	f.uow.ScreenTime.On("GetOpenSession", f.ctx, testChildID).Return(nil, nil)
	svc := newTestScreenTimeService(f)

	status, err := svc.GetStatus(f.ctx, f.child, testChildID)
	require.NoError(t, err)
	assert.Equal(t, 50, status.WeeklyRemaining)
	assert.Equal(t, 20, status.DailyRemaining)
	assert.Equal(t, 20, status.Available)
	assert.Equal(t, 100, status.UsedToday)
}

func TestScreenTimeService_StartSession(t *testing.T) {
	t.Run("starts when minutes are left", func(t *testing.T) {
		f := newTestFixture(t, 0)
		f.expectBudget(testBudget(420, 0, 0, 120), 0)
		f.uow.ScreenTime.On("GetOpenSession", f.ctx, testChildID).Return(nil, nil)
		f.uow.ScreenTime.On("CreateSession", f.ctx, mock.AnythingOfType("*models.ScreenTimeSession")).Return(nil)
		svc := newTestScreenTimeService(f)

		session, err := svc.StartSession(f.ctx, f.child, testChildID)
		require.NoError(t, err)
		assert.Equal(t, testNow, session.StartedAt)
		assert.Nil(t, session.PurchaseID)
	})

	t.Run("daily cap reached", func(t *testing.T) {
		f := newTestFixture(t, 0)
		f.expectBudget(testBudget(420, 0, 120, 120), 120)
		f.uow.ScreenTime.On("GetOpenSession", f.ctx, testChildID).Return(nil, nil)
		svc := newTestScreenTimeService(f)

		_, err := svc.StartSession(f.ctx, f.child, testChildID)
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("one open session per child", func(t *testing.T) {
		f := newTestFixture(t, 0)
		f.expectBudget(testBudget(420, 0, 0, 120), 0)
		f.uow.ScreenTime.On("GetOpenSession", f.ctx, testChildID).Return(openSession(time.Minute), nil)
		svc := newTestScreenTimeService(f)

		_, err := svc.StartSession(f.ctx, f.child, testChildID)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestScreenTimeService_EndSession(t *testing.T) {
	t.Run("records elapsed minutes rounded up", func(t *testing.T) {
		f := newTestFixture(t, 0)
		budget := testBudget(420, 0, 10, 120)
		f.expectBudget(budget, 10)
		session := openSession(20*time.Minute + 10*time.Second)
		expectSessionEnd(f, session)
		svc := newTestScreenTimeService(f)

		result, err := svc.EndSession(f.ctx, f.child, session.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 21, result.RequestedMinutes)
		assert.Equal(t, 21, result.RecordedMinutes)
		assert.Equal(t, 31, budget.UsedMinutes)
		assert.Equal(t, testNow, *result.Session.EndedAt)
		assert.Len(t, f.uow.Events.OfType(events.EventTypeScreenTimeSessionChanged), 1)
	})

	t.Run("overuse is clamped to the daily cap", func(t *testing.T) {
		f := newTestFixture(t, 0)
		budget := testBudget(420, 0, 100, 120)
		f.expectBudget(budget, 100)
		session := openSession(time.Hour)
		expectSessionEnd(f, session)
		svc := newTestScreenTimeService(f)

		result, err := svc.EndSession(f.ctx, f.child, session.ID, intPtr(45))
		require.NoError(t, err)
		assert.Equal(t, 45, result.RequestedMinutes)
		assert.Equal(t, 20, result.RecordedMinutes)
		assert.Equal(t, 120, budget.UsedMinutes)
		assert.LessOrEqual(t, budget.UsedMinutes, budget.BaseMinutes+budget.BonusMinutes)
	})

	t.Run("ticket session is capped at the ticket minutes", func(t *testing.T) {
		f := newTestFixture(t, 0)
		f.expectBudget(testBudget(420, 0, 0, 120), 0)
		session := openSession(time.Hour)
		session.PurchaseID = int64Ptr(40)
		expectSessionEnd(f, session)
		f.uow.Purchases.On("GetByID", f.ctx, int64(40)).Return(testPurchase(models.PurchaseStatusUsed), nil)
		reward := testReward()
		reward.RewardType = models.RewardTypeScreenTime
		reward.ScreenMinutes = 30
		f.uow.Rewards.On("GetByID", f.ctx, int64(3)).Return(reward, nil)
		svc := newTestScreenTimeService(f)

		result, err := svc.EndSession(f.ctx, f.child, session.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 60, result.RequestedMinutes)
		assert.Equal(t, 30, result.RecordedMinutes)
	})

	t.Run("already ended", func(t *testing.T) {
		f := newTestFixture(t, 0)
		f.expectBudget(testBudget(420, 0, 0, 120), 0)
		session := openSession(time.Hour)
		ended := testNow.Add(-time.Minute)
		session.EndedAt = &ended
		f.uow.ScreenTime.On("GetSession", f.ctx, session.ID).Return(session, nil)
		f.uow.ScreenTime.On("GetSessionForUpdate", f.ctx, session.ID).Return(session, nil)
		svc := newTestScreenTimeService(f)

		_, err := svc.EndSession(f.ctx, f.child, session.ID, nil)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("negative minutes", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestScreenTimeService(f)

		_, err := svc.EndSession(f.ctx, f.child, 12, intPtr(-1))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestScreenTimeService_PauseResume(t *testing.T) {
	f := newTestFixture(t, 0)
	session := openSession(30 * time.Minute)
	session.PurchaseID = int64Ptr(40)
	f.uow.ScreenTime.On("GetSessionForUpdate", f.ctx, session.ID).Return(session, nil)
	f.uow.ScreenTime.On("UpdateSession", f.ctx, session).Return(nil)
	svc := newTestScreenTimeService(f)

	paused, err := svc.PauseSession(f.ctx, f.child, session.ID)
	require.NoError(t, err)
	assert.True(t, paused.IsPaused())

	_, err = svc.PauseSession(f.ctx, f.child, session.ID)
	assert.ErrorIs(t, err, ErrConflict)

	svc.now = fixedClock(testNow.Add(10 * time.Minute))
	resumed, err := svc.ResumeSession(f.ctx, f.child, session.ID)
	require.NoError(t, err)
	assert.False(t, resumed.IsPaused())
	assert.Equal(t, 600, resumed.PausedSeconds)
	assert.Equal(t, 30*60, resumed.ElapsedSeconds(testNow.Add(10*time.Minute)))
}

func TestScreenTimeService_PauseRequiresTicket(t *testing.T) {
	f := newTestFixture(t, 0)
	session := openSession(time.Minute)
	f.uow.ScreenTime.On("GetSessionForUpdate", f.ctx, session.ID).Return(session, nil)
	svc := newTestScreenTimeService(f)

	_, err := svc.PauseSession(f.ctx, f.child, session.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScreenTimeService_AddBonusMinutes(t *testing.T) {
	f := newTestFixture(t, 0)
	budget := testBudget(420, 0, 0, 120)
	f.expectBudget(budget, 0)
	f.uow.ScreenTime.On("UpdateBudget", f.ctx, budget).Return(nil)
	f.uow.ScreenTime.On("RecordBonus", f.ctx, testChildID, budget.WeekStartDate, 15, "homework").Return(nil)
	svc := newTestScreenTimeService(f)

	updated, err := svc.AddBonusMinutes(f.ctx, f.parent, testChildID, 15, " homework ")
	require.NoError(t, err)
	assert.Equal(t, 15, updated.BonusMinutes)
	assert.Equal(t, 435, updated.WeeklyRemaining())

	_, err = svc.AddBonusMinutes(f.ctx, f.child, testChildID, 15, "")
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = svc.AddBonusMinutes(f.ctx, f.parent, testChildID, 0, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScreenTimeService_BonusMinutesStayInTheirWeek(t *testing.T) {
	f := newTestFixture(t, 0)
	thisWeek := testBudget(420, 0, 0, 120)
	nextWeekStart := thisWeek.WeekStartDate.AddDate(0, 0, 7)
	nextWeek := &models.ScreenTimeBudget{
		ID:                2,
		ChildID:           testChildID,
		WeekStartDate:     nextWeekStart,
		BaseMinutes:       420,
		DailyLimitMinutes: 120,
	}
	weekOf := func(start time.Time) any {
		return mock.MatchedBy(func(key time.Time) bool { return key.Equal(start) })
	}

	f.uow.ScreenTime.On("GetSettings", f.ctx, testChildID).Return(nil, nil)
	f.uow.ScreenTime.On("GetOrCreateBudgetForUpdate", f.ctx, testChildID, weekOf(thisWeek.WeekStartDate), mock.Anything, mock.Anything).
		Return(thisWeek, nil)
	f.uow.ScreenTime.On("GetOrCreateBudgetForUpdate", f.ctx, testChildID, weekOf(nextWeekStart), mock.Anything, mock.Anything).
		Return(nextWeek, nil)
	f.uow.ScreenTime.On("UsedOnDate", f.ctx, testChildID, mock.AnythingOfType("time.Time")).Return(0, nil)
	f.uow.ScreenTime.On("GetOpenSession", f.ctx, testChildID).Return(nil, nil)
	f.uow.ScreenTime.On("UpdateBudget", f.ctx, thisWeek).Return(nil)
	f.uow.ScreenTime.On("RecordBonus", f.ctx, testChildID, thisWeek.WeekStartDate, 30, "chores").Return(nil)
	svc := newTestScreenTimeService(f)

	_, err := svc.AddBonusMinutes(f.ctx, f.parent, testChildID, 30, "chores")
	require.NoError(t, err)
	assert.Equal(t, 30, thisWeek.BonusMinutes)

	svc.now = fixedClock(testNow.AddDate(0, 0, 7))
	status, err := svc.GetStatus(f.ctx, f.child, testChildID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Budget.ID)
	assert.Equal(t, 0, status.Budget.BonusMinutes)
	assert.True(t, status.Budget.WeekStartDate.Equal(nextWeekStart))
	assert.Equal(t, 420, status.WeeklyRemaining)

	t.Run("any day of a week maps to the same budget", func(t *testing.T) {
		for _, day := range []time.Time{
			thisWeek.WeekStartDate,
			testNow.AddDate(0, 0, 2),
			thisWeek.WeekStartDate.AddDate(0, 0, 6).Add(23 * time.Hour),
		} {
			budget, err := svc.GetOrCreateWeeklyBudget(f.ctx, testChildID, day)
			require.NoError(t, err)
			assert.Equal(t, int64(1), budget.ID, day.String())
			assert.Equal(t, 30, budget.BonusMinutes)
		}

		budget, err := svc.GetOrCreateWeeklyBudget(f.ctx, testChildID, nextWeekStart.AddDate(0, 0, 3))
		require.NoError(t, err)
		assert.Equal(t, int64(2), budget.ID)
	})

	f.assertExpectations(t)
}

func TestScreenTimeService_SetAllowanceKeepsUsedMinutesCovered(t *testing.T) {
	f := newTestFixture(t, 0)
	budget := testBudget(420, 10, 300, 120)
	f.expectBudget(budget, 0)
	f.uow.ScreenTime.On("UpsertSettings", f.ctx, mock.AnythingOfType("*models.ScreenTimeSettings")).Return(nil)
	f.uow.ScreenTime.On("UpdateBudget", f.ctx, budget).Return(nil)
	svc := newTestScreenTimeService(f)

	settings, err := svc.SetAllowance(f.ctx, f.parent, testChildID, 200, 60)
	require.NoError(t, err)
	assert.Equal(t, 200, settings.WeeklyMinutes)
	assert.Equal(t, 290, budget.BaseMinutes)
	assert.Equal(t, 60, budget.DailyLimitMinutes)
	assert.Equal(t, 0, budget.WeeklyRemaining())
}
