package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"familypoints/config"
	"familypoints/events"
	"familypoints/models"

	log "github.com/sirupsen/logrus"
)

type taskService struct {
	uowFactory UnitOfWorkFactory
	config     *config.Config
	now        func() time.Time
}

// NewTaskService creates a new task completion service
func NewTaskService(uowFactory UnitOfWorkFactory, cfg *config.Config) TaskService {
	return &taskService{
		uowFactory: uowFactory,
		config:     cfg,
		now:        time.Now,
	}
}

// CreateTask defines a new task for the parent's family
func (s *taskService) CreateTask(ctx context.Context, actor models.Actor, task *models.Task) (*models.Task, error) {
	if task == nil {
		return nil, NewValidationError("task is required")
	}
	if actor == nil {
		return nil, NewAuthorizationError("no actor")
	}
	task.FamilyID = actor.Family()
	if err := requireParent(actor, task.FamilyID); err != nil {
		return nil, err
	}

	task.Title = strings.TrimSpace(task.Title)
	switch {
	case task.Title == "":
		return nil, NewValidationError("task title is required")
	case task.Points < 0:
		return nil, NewValidationError("task points cannot be negative")
	case !task.ApprovalType.IsValid():
		return nil, NewValidationError("unknown approval type %q", task.ApprovalType)
	case task.ApprovalType == models.ApprovalTypeTimer && task.TimerMinutes <= 0:
		return nil, NewValidationError("timer tasks need a positive timer duration")
	case task.ApprovalType == models.ApprovalTypeChecklist && len(task.Checklist) == 0:
		return nil, NewValidationError("checklist tasks need at least one item")
	case task.AutoApproveHours != nil && *task.AutoApproveHours < 0:
		return nil, NewValidationError("auto approve hours cannot be negative")
	}
	task.IsActive = true

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if task.AssignedChildID != nil {
		if _, err := loadChild(ctx, uow, actor, *task.AssignedChildID); err != nil {
			return nil, err
		}
	}

	if err := uow.TaskRepository().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return task, nil
}

// checkEvidence verifies the evidence an evidence-gated approval type requires
func checkEvidence(task *models.Task, evidence models.CompletionEvidence) error {
	switch task.ApprovalType {
	case models.ApprovalTypeTimer:
		required := task.TimerMinutes * 60
		if evidence.TimerSeconds < required {
			return NewValidationError("timer ran %d seconds, task needs %d", evidence.TimerSeconds, required)
		}
	case models.ApprovalTypeChecklist:
		ticked := make(map[string]bool, len(evidence.ChecklistItems))
		for _, item := range evidence.ChecklistItems {
			ticked[item] = true
		}
		var missing []string
		for _, item := range task.Checklist {
			if !ticked[item] {
				missing = append(missing, item)
			}
		}
		if len(missing) > 0 {
			return NewValidationError("checklist incomplete: %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// Submit records a child's completion of a task
func (s *taskService) Submit(ctx context.Context, actor models.Actor, taskID, childID int64, evidence models.CompletionEvidence) (*models.CompletionResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	child, err := loadChild(ctx, uow, actor, childID)
	if err != nil {
		return nil, err
	}

	task, err := uow.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil || task.FamilyID != child.FamilyID {
		return nil, NewNotFoundError("task %d not found", taskID)
	}
	if !task.IsActive {
		return nil, NewConflictError("task %q is no longer active", task.Title)
	}
	if task.AssignedChildID != nil && *task.AssignedChildID != childID {
		return nil, NewAuthorizationError("task %q is assigned to another child", task.Title)
	}
	if err := checkEvidence(task, evidence); err != nil {
		return nil, err
	}

	open, err := uow.TaskCompletionRepository().GetOpen(ctx, taskID, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open completion: %w", err)
	}
	if open != nil {
		return nil, NewConflictError("task %q is already submitted and awaiting review", task.Title)
	}

	now := s.now()
	completion := &models.TaskCompletion{
		TaskID:      taskID,
		ChildID:     childID,
		FamilyID:    child.FamilyID,
		Status:      models.CompletionStatusPending,
		Evidence:    evidence,
		RequestedAt: now,
	}
	autoApprove := task.ApprovalType == models.ApprovalTypeAuto
	if autoApprove {
		completion.Status = models.CompletionStatusApproved
		completion.PointsAwarded = task.Points
		completion.ApprovedAt = &now
	}

	// The partial unique index rejects a concurrent second submit
	if err := uow.TaskCompletionRepository().Create(ctx, completion); err != nil {
		return nil, err
	}

	result := &models.CompletionResult{Completion: completion}
	if autoApprove && task.Points > 0 {
		credit, err := s.credit(ctx, uow, completion, task)
		if err != nil {
			return nil, err
		}
		result.NewBalance = &credit.NewBalance
	}

	uow.EventBus().Publish(events.TaskCompletionChangedEvent{
		CompletionID: completion.ID,
		TaskID:       completion.TaskID,
		ChildID:      completion.ChildID,
		FamilyID:     completion.FamilyID,
		NewStatus:    completion.Status,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// credit pays the task's points for a completion
func (s *taskService) credit(ctx context.Context, uow UnitOfWork, completion *models.TaskCompletion, task *models.Task) (*models.LedgerResult, error) {
	return ApplyLedgerTransaction(ctx, uow, models.LedgerTransaction{
		ChildID:       completion.ChildID,
		Amount:        task.Points,
		Type:          models.TransactionTypeTaskReward,
		ReferenceType: models.ReferenceTypeTaskCompletion,
		ReferenceID:   strconv.FormatInt(completion.ID, 10),
		Description:   fmt.Sprintf("Task completed: %s", task.Title),
	})
}

// approveInTx transitions a completion to an approved state and credits the
// points inside the caller's unit of work. The state change and the credit
// commit or roll back together.
func (s *taskService) approveInTx(ctx context.Context, uow UnitOfWork, completion *models.TaskCompletion, from []models.CompletionStatus, to models.CompletionStatus, approvedBy *int64) (*models.CompletionResult, error) {
	task, err := uow.TaskRepository().GetByID(ctx, completion.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, NewNotFoundError("task %d not found", completion.TaskID)
	}

	now := s.now()
	updated, err := uow.TaskCompletionRepository().MarkApproved(ctx, completion.ID, from, to, approvedBy, task.Points, now)
	if err != nil {
		return nil, fmt.Errorf("failed to approve completion: %w", err)
	}
	if !updated {
		return nil, NewConflictError("completion %d is already decided", completion.ID)
	}

	oldStatus := completion.Status
	completion.Status = to
	completion.PointsAwarded = task.Points
	completion.ApprovedBy = approvedBy
	completion.ApprovedAt = &now

	result := &models.CompletionResult{Completion: completion}
	if task.Points > 0 {
		credit, err := s.credit(ctx, uow, completion, task)
		if err != nil {
			return nil, err
		}
		result.NewBalance = &credit.NewBalance
	}

	uow.EventBus().Publish(events.TaskCompletionChangedEvent{
		CompletionID: completion.ID,
		TaskID:       completion.TaskID,
		ChildID:      completion.ChildID,
		FamilyID:     completion.FamilyID,
		OldStatus:    oldStatus,
		NewStatus:    to,
	})
	return result, nil
}

// Approve approves a pending or fix_requested completion and credits the points
func (s *taskService) Approve(ctx context.Context, actor models.Actor, completionID int64) (*models.CompletionResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	completion, err := s.loadCompletion(ctx, uow, actor, completionID)
	if err != nil {
		return nil, err
	}
	if err := requireParent(actor, completion.FamilyID); err != nil {
		return nil, err
	}
	if !completion.Status.IsOpen() {
		return nil, NewConflictError("completion %d is already %s", completionID, completion.Status)
	}

	result, err := s.approveInTx(ctx, uow, completion,
		[]models.CompletionStatus{models.CompletionStatusPending, models.CompletionStatusFixRequested},
		models.CompletionStatusApproved, approverID(actor))
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"completionID": completionID,
		"childID":      completion.ChildID,
		"points":       completion.PointsAwarded,
	}).Info("Approved task completion")
	return result, nil
}

// BatchApprove approves each completion independently
func (s *taskService) BatchApprove(ctx context.Context, actor models.Actor, completionIDs []int64) (*models.BatchApproveResult, error) {
	if len(completionIDs) == 0 {
		return nil, NewValidationError("no completions given")
	}
	if _, ok := actor.(models.ParentActor); !ok {
		return nil, NewAuthorizationError("only a parent can approve tasks")
	}

	result := &models.BatchApproveResult{Errors: make(map[int64]string)}
	seen := make(map[int64]bool, len(completionIDs))
	for _, id := range completionIDs {
		if seen[id] {
			result.Skipped++
			continue
		}
		seen[id] = true

		_, err := s.Approve(ctx, actor, id)
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, ErrConflict):
			result.Skipped++
		default:
			result.Failed++
			result.Errors[id] = err.Error()
		}
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	return result, nil
}

// RequestFix sends a pending completion back to the child with feedback
func (s *taskService) RequestFix(ctx context.Context, actor models.Actor, completionID int64, fix models.FixRequest) (*models.TaskCompletion, error) {
	fix.Message = strings.TrimSpace(fix.Message)
	if fix.Message == "" && len(fix.Items) == 0 {
		return nil, NewValidationError("a fix request needs a message or at least one item")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	completion, err := s.loadCompletion(ctx, uow, actor, completionID)
	if err != nil {
		return nil, err
	}
	if err := requireParent(actor, completion.FamilyID); err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusPending {
		return nil, NewConflictError("only pending completions can be sent back, this one is %s", completion.Status)
	}

	updated, err := uow.TaskCompletionRepository().RequestFix(ctx, completionID, fix)
	if err != nil {
		return nil, fmt.Errorf("failed to request fix: %w", err)
	}
	if !updated {
		return nil, NewConflictError("completion %d is no longer pending", completionID)
	}

	completion.Status = models.CompletionStatusFixRequested
	completion.FixRequest = &fix
	completion.FixRequestCount++

	uow.EventBus().Publish(events.TaskCompletionChangedEvent{
		CompletionID: completion.ID,
		TaskID:       completion.TaskID,
		ChildID:      completion.ChildID,
		FamilyID:     completion.FamilyID,
		OldStatus:    models.CompletionStatusPending,
		NewStatus:    models.CompletionStatusFixRequested,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return completion, nil
}

// Resubmit returns a fix_requested completion to pending
func (s *taskService) Resubmit(ctx context.Context, actor models.Actor, completionID int64, evidence models.CompletionEvidence) (*models.TaskCompletion, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	completion, err := s.loadCompletion(ctx, uow, actor, completionID)
	if err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusFixRequested {
		return nil, NewConflictError("only completions sent back for a fix can be resubmitted, this one is %s", completion.Status)
	}

	task, err := uow.TaskRepository().GetByID(ctx, completion.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, NewNotFoundError("task %d not found", completion.TaskID)
	}
	if err := checkEvidence(task, evidence); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := uow.TaskCompletionRepository().Resubmit(ctx, completionID, evidence, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resubmit completion: %w", err)
	}
	if !updated {
		return nil, NewConflictError("completion %d is no longer awaiting a fix", completionID)
	}

	completion.Status = models.CompletionStatusPending
	completion.Evidence = evidence
	completion.RequestedAt = now

	uow.EventBus().Publish(events.TaskCompletionChangedEvent{
		CompletionID: completion.ID,
		TaskID:       completion.TaskID,
		ChildID:      completion.ChildID,
		FamilyID:     completion.FamilyID,
		OldStatus:    models.CompletionStatusFixRequested,
		NewStatus:    models.CompletionStatusPending,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return completion, nil
}

// ListPending returns the completions of the parent's family awaiting review
func (s *taskService) ListPending(ctx context.Context, actor models.Actor) ([]*models.TaskCompletion, error) {
	if actor == nil {
		return nil, NewAuthorizationError("no actor")
	}
	if err := requireParent(actor, actor.Family()); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	completions, err := uow.TaskCompletionRepository().ListPendingByFamily(ctx, actor.Family())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending completions: %w", err)
	}
	return completions, nil
}

// AutoApproveSweep approves pending completions whose deadline has passed.
// Each completion is handled in its own transaction and only moves out of
// pending, so a concurrent manual approval wins without double-crediting.
func (s *taskService) AutoApproveSweep(ctx context.Context, now time.Time) (*models.SweepSummary, error) {
	listUow := s.uowFactory.Create()
	if err := listUow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	due, err := listUow.TaskCompletionRepository().ListAutoApproveDue(ctx, now, s.config.AutoApproveHours)
	listUow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to list due completions: %w", err)
	}

	summary := &models.SweepSummary{Processed: len(due)}
	for _, completion := range due {
		err := s.autoApproveOne(ctx, completion)
		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, ErrConflict):
			summary.Skipped++
		default:
			summary.Failed++
			log.WithFields(log.Fields{
				"completionID": completion.ID,
				"error":        err,
			}).Error("Failed to auto-approve task completion")
		}
	}

	log.WithFields(log.Fields{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}).Info("Auto-approve sweep finished")
	return summary, nil
}

func (s *taskService) autoApproveOne(ctx context.Context, completion *models.TaskCompletion) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if _, err := s.approveInTx(ctx, uow, completion,
		[]models.CompletionStatus{models.CompletionStatusPending},
		models.CompletionStatusAutoApproved, nil); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// loadCompletion fetches a completion visible to the actor's family
func (s *taskService) loadCompletion(ctx context.Context, uow UnitOfWork, actor models.Actor, completionID int64) (*models.TaskCompletion, error) {
	completion, err := uow.TaskCompletionRepository().GetByID(ctx, completionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	if completion == nil {
		return nil, NewNotFoundError("completion %d not found", completionID)
	}
	if err := requireChildAccess(actor, completion.FamilyID, completion.ChildID); err != nil {
		return nil, err
	}
	return completion, nil
}
