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

func newTestTaskService(f *testFixture) *taskService {
	svc := NewTaskService(f.factory, f.cfg).(*taskService)
	svc.now = fixedClock(testNow)
	return svc
}

func testTask(approval models.ApprovalType) *models.Task {
	return &models.Task{
		ID:           5,
		FamilyID:     testFamilyID,
		Title:        "Dishes",
		Points:       20,
		ApprovalType: approval,
		IsActive:     true,
	}
}

func pendingCompletion() *models.TaskCompletion {
	return &models.TaskCompletion{
		ID:          77,
		TaskID:      5,
		ChildID:     testChildID,
		FamilyID:    testFamilyID,
		Status:      models.CompletionStatusPending,
		RequestedAt: testNow.Add(-time.Hour),
	}
}

func TestTaskService_CreateTask(t *testing.T) {
	t.Run("parent creates task", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)
		f.uow.Tasks.On("Create", f.ctx, mock.AnythingOfType("*models.Task")).Return(nil)

		task, err := svc.CreateTask(f.ctx, f.parent, &models.Task{Title: " Dishes ", Points: 20, ApprovalType: models.ApprovalTypeParent})
		require.NoError(t, err)
		assert.Equal(t, "Dishes", task.Title)
		assert.Equal(t, testFamilyID, task.FamilyID)
		assert.True(t, task.IsActive)
	})

	t.Run("child cannot create task", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)

		_, err := svc.CreateTask(f.ctx, f.child, &models.Task{Title: "Dishes", Points: 20, ApprovalType: models.ApprovalTypeParent})
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	t.Run("invalid definitions", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)

		for _, task := range []*models.Task{
			{Title: "", Points: 1, ApprovalType: models.ApprovalTypeParent},
			{Title: "x", Points: -1, ApprovalType: models.ApprovalTypeParent},
			{Title: "x", Points: 1, ApprovalType: "magic"},
			{Title: "x", Points: 1, ApprovalType: models.ApprovalTypeTimer},
			{Title: "x", Points: 1, ApprovalType: models.ApprovalTypeChecklist},
		} {
			_, err := svc.CreateTask(f.ctx, f.parent, task)
			assert.ErrorIs(t, err, ErrValidation)
		}
	})
}

func TestTaskService_Submit_ParentApproval(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := newTestTaskService(f)

	f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
	f.uow.TaskCompletions.On("GetOpen", f.ctx, int64(5), testChildID).Return(nil, nil)
	f.uow.TaskCompletions.On("Create", f.ctx, mock.MatchedBy(func(c *models.TaskCompletion) bool {
		return c.Status == models.CompletionStatusPending && c.RequestedAt.Equal(testNow)
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.TaskCompletion).ID = 77
	})

	result, err := svc.Submit(f.ctx, f.child, 5, testChildID, models.CompletionEvidence{})
	require.NoError(t, err)
	assert.Equal(t, models.CompletionStatusPending, result.Completion.Status)
	assert.Nil(t, result.NewBalance)
	assert.Len(t, f.uow.Events.OfType(events.EventTypeTaskCompletionChanged), 1)
	f.assertExpectations(t)
}

func TestTaskService_Submit_AutoApprovalCreditsImmediately(t *testing.T) {
	f := newTestFixture(t, 5)
	f.expectLedger()
	svc := newTestTaskService(f)

	f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeAuto), nil)
	f.uow.TaskCompletions.On("GetOpen", f.ctx, int64(5), testChildID).Return(nil, nil)
	f.uow.TaskCompletions.On("Create", f.ctx, mock.AnythingOfType("*models.TaskCompletion")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.TaskCompletion).ID = 78
	})

	result, err := svc.Submit(f.ctx, f.child, 5, testChildID, models.CompletionEvidence{})
	require.NoError(t, err)
	assert.Equal(t, models.CompletionStatusApproved, result.Completion.Status)
	require.NotNil(t, result.NewBalance)
	assert.Equal(t, int64(25), *result.NewBalance)

	require.Len(t, f.entries, 1)
	assert.Equal(t, models.ReferenceTypeTaskCompletion, f.entries[0].ReferenceType)
	assert.Equal(t, "78", f.entries[0].ReferenceID)
}

func TestTaskService_Submit_Evidence(t *testing.T) {
	timer := testTask(models.ApprovalTypeTimer)
	timer.TimerMinutes = 10
	checklist := testTask(models.ApprovalTypeChecklist)
	checklist.Checklist = []string{"plates", "cups"}

	tests := []struct {
		name     string
		task     *models.Task
		evidence models.CompletionEvidence
		wantErr  bool
	}{
		{"timer too short", timer, models.CompletionEvidence{TimerSeconds: 599}, true},
		{"timer long enough", timer, models.CompletionEvidence{TimerSeconds: 600}, false},
		{"checklist incomplete", checklist, models.CompletionEvidence{ChecklistItems: []string{"plates"}}, true},
		{"checklist complete", checklist, models.CompletionEvidence{ChecklistItems: []string{"cups", "plates"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkEvidence(tt.task, tt.evidence)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTaskService_Submit_Rejections(t *testing.T) {
	t.Run("already open", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)
		f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
		f.uow.TaskCompletions.On("GetOpen", f.ctx, int64(5), testChildID).Return(pendingCompletion(), nil)

		_, err := svc.Submit(f.ctx, f.child, 5, testChildID, models.CompletionEvidence{})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("task of another family", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)
		task := testTask(models.ApprovalTypeParent)
		task.FamilyID = 99
		f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(task, nil)

		_, err := svc.Submit(f.ctx, f.child, 5, testChildID, models.CompletionEvidence{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("assigned to sibling", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)
		task := testTask(models.ApprovalTypeParent)
		task.AssignedChildID = int64Ptr(101)
		f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(task, nil)

		_, err := svc.Submit(f.ctx, f.child, 5, testChildID, models.CompletionEvidence{})
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	t.Run("child submits for sibling", func(t *testing.T) {
		f := newTestFixture(t, 0)
		svc := newTestTaskService(f)
		sibling := models.ChildActor{ChildID: 101, FamilyID: testFamilyID}

		_, err := svc.Submit(f.ctx, sibling, 5, testChildID, models.CompletionEvidence{})
		assert.ErrorIs(t, err, ErrAuthorization)
	})
}

func TestTaskService_Approve(t *testing.T) {
	t.Run("credits points with the transition", func(t *testing.T) {
		f := newTestFixture(t, 10)
		f.expectLedger()
		svc := newTestTaskService(f)

		f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil)
		f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
		f.uow.TaskCompletions.On("MarkApproved", f.ctx, int64(77),
			[]models.CompletionStatus{models.CompletionStatusPending, models.CompletionStatusFixRequested},
			models.CompletionStatusApproved, int64Ptr(testParentID), int64(20), testNow,
		).Return(true, nil)

		result, err := svc.Approve(f.ctx, f.parent, 77)
		require.NoError(t, err)
		assert.Equal(t, models.CompletionStatusApproved, result.Completion.Status)
		assert.Equal(t, int64(30), *result.NewBalance)
		assert.Equal(t, f.account.Balance, int64(10)+f.ledgerSum())
		f.uow.AssertCalled(t, "Commit")
	})

	t.Run("second approval is a conflict", func(t *testing.T) {
		f := newTestFixture(t, 10)
		svc := newTestTaskService(f)
		approved := pendingCompletion()
		approved.Status = models.CompletionStatusApproved
		f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(approved, nil)

		_, err := svc.Approve(f.ctx, f.parent, 77)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("lost race is a conflict and credits nothing", func(t *testing.T) {
		f := newTestFixture(t, 10)
		f.expectLedger()
		svc := newTestTaskService(f)
		f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil)
		f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
		f.uow.TaskCompletions.On("MarkApproved", f.ctx, int64(77), mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(false, nil)

		_, err := svc.Approve(f.ctx, f.parent, 77)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Empty(t, f.entries)
		f.uow.AssertNotCalled(t, "Commit")
	})

	t.Run("child cannot approve", func(t *testing.T) {
		f := newTestFixture(t, 10)
		svc := newTestTaskService(f)
		f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil)

		_, err := svc.Approve(f.ctx, f.child, 77)
		assert.ErrorIs(t, err, ErrAuthorization)
	})

	t.Run("other family sees not found", func(t *testing.T) {
		f := newTestFixture(t, 10)
		svc := newTestTaskService(f)
		f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil)

		_, err := svc.Approve(f.ctx, models.ParentActor{UserID: 2, FamilyID: 99}, 77)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTaskService_BatchApprove(t *testing.T) {
	f := newTestFixture(t, 0)
	f.expectLedger()
	svc := newTestTaskService(f)

	approved := pendingCompletion()
	approved.ID = 78
	approved.Status = models.CompletionStatusApproved

	f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil)
	f.uow.TaskCompletions.On("GetByID", f.ctx, int64(78)).Return(approved, nil)
	f.uow.TaskCompletions.On("GetByID", f.ctx, int64(79)).Return(nil, nil)
	f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
	f.uow.TaskCompletions.On("MarkApproved", f.ctx, int64(77), mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil)

	result, err := svc.BatchApprove(f.ctx, f.parent, []int64{77, 78, 79, 77})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors, int64(79))
	assert.Equal(t, int64(20), f.account.Balance)

	_, err = svc.BatchApprove(f.ctx, f.child, []int64{77})
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestTaskService_RequestFixAndResubmit(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := newTestTaskService(f)

	fix := models.FixRequest{Items: []string{"cups"}, Message: "cups are still dirty"}
	f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(pendingCompletion(), nil).Once()
	f.uow.TaskCompletions.On("RequestFix", f.ctx, int64(77), fix).Return(true, nil)

	completion, err := svc.RequestFix(f.ctx, f.parent, 77, fix)
	require.NoError(t, err)
	assert.Equal(t, models.CompletionStatusFixRequested, completion.Status)
	assert.Equal(t, 1, completion.FixRequestCount)

	_, err = svc.RequestFix(f.ctx, f.parent, 77, models.FixRequest{Message: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	fixRequested := pendingCompletion()
	fixRequested.Status = models.CompletionStatusFixRequested
	f.uow.TaskCompletions.On("GetByID", f.ctx, int64(77)).Return(fixRequested, nil)
	f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
	f.uow.TaskCompletions.On("Resubmit", f.ctx, int64(77), models.CompletionEvidence{}, testNow).Return(true, nil)

	resubmitted, err := svc.Resubmit(f.ctx, f.child, 77, models.CompletionEvidence{})
	require.NoError(t, err)
	assert.Equal(t, models.CompletionStatusPending, resubmitted.Status)
	assert.Len(t, f.uow.Events.OfType(events.EventTypeTaskCompletionChanged), 2)
}

func TestTaskService_AutoApproveSweep(t *testing.T) {
	f := newTestFixture(t, 0)
	f.expectLedger()
	svc := newTestTaskService(f)

	first := pendingCompletion()
	raced := pendingCompletion()
	raced.ID = 78
	broken := pendingCompletion()
	broken.ID = 79
	broken.TaskID = 6

	f.uow.TaskCompletions.On("ListAutoApproveDue", f.ctx, testNow, 48).
		Return([]*models.TaskCompletion{first, raced, broken}, nil)
	f.uow.Tasks.On("GetByID", f.ctx, int64(5)).Return(testTask(models.ApprovalTypeParent), nil)
	f.uow.Tasks.On("GetByID", f.ctx, int64(6)).Return(nil, nil)
	pendingOnly := []models.CompletionStatus{models.CompletionStatusPending}
	f.uow.TaskCompletions.On("MarkApproved", f.ctx, int64(77), pendingOnly, models.CompletionStatusAutoApproved, (*int64)(nil), int64(20), testNow).
		Return(true, nil)
	f.uow.TaskCompletions.On("MarkApproved", f.ctx, int64(78), pendingOnly, models.CompletionStatusAutoApproved, (*int64)(nil), int64(20), testNow).
		Return(false, nil)

	summary, err := svc.AutoApproveSweep(f.ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, &models.SweepSummary{Processed: 3, Succeeded: 1, Failed: 1, Skipped: 1}, summary)
	assert.Equal(t, int64(20), f.account.Balance)
}
