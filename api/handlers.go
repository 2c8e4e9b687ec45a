package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"familypoints/models"
	"familypoints/service"

	"github.com/go-chi/chi/v5"
)

type createFamilyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type addChildRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	InitialBalance int64  `json:"initial_balance" validate:"gte=0"`
}

type adjustRequest struct {
	Amount      int64  `json:"amount" validate:"ne=0"`
	Description string `json:"description" validate:"required,max=500"`
}

type createTaskRequest struct {
	Title            string   `json:"title" validate:"required,max=200"`
	Points           int64    `json:"points" validate:"gt=0"`
	ApprovalType     string   `json:"approval_type" validate:"required,oneof=auto parent timer checklist"`
	AutoApproveHours *int     `json:"auto_approve_hours" validate:"omitempty,gte=0"`
	TimerMinutes     int      `json:"timer_minutes" validate:"gte=0"`
	Checklist        []string `json:"checklist" validate:"omitempty,dive,required,max=200"`
	AssignedChildID  *int64   `json:"assigned_child_id" validate:"omitempty,gt=0"`
}

type evidenceRequest struct {
	TimerSeconds   int      `json:"timer_seconds" validate:"gte=0"`
	ChecklistItems []string `json:"checklist_items"`
}

func (e evidenceRequest) evidence() models.CompletionEvidence {
	return models.CompletionEvidence{TimerSeconds: e.TimerSeconds, ChecklistItems: e.ChecklistItems}
}

type submitRequest struct {
	evidenceRequest
	ChildID int64 `json:"child_id" validate:"gte=0"`
}

type batchApproveRequest struct {
	CompletionIDs []int64 `json:"completion_ids" validate:"required,min=1,max=100,dive,gt=0"`
}

type fixRequest struct {
	Items   []string `json:"items"`
	Message string   `json:"message" validate:"max=1000"`
}

type createRewardRequest struct {
	Title             string `json:"title" validate:"required,max=200"`
	PointsCost        int64  `json:"points_cost" validate:"gt=0"`
	RewardType        string `json:"reward_type" validate:"omitempty,oneof=standard screen_time"`
	ScreenMinutes     int    `json:"screen_minutes" validate:"gte=0"`
	Stock             *int   `json:"stock" validate:"omitempty,gte=0"`
	WeeklyLimit       *int   `json:"weekly_limit" validate:"omitempty,gt=0"`
	RestrictedChildID *int64 `json:"restricted_child_id" validate:"omitempty,gt=0"`
}

type childRequest struct {
	ChildID int64 `json:"child_id" validate:"gte=0"`
}

type createGoalRequest struct {
	ChildID          int64         `json:"child_id" validate:"gte=0"`
	Title            string        `json:"title" validate:"required,max=200"`
	TargetPoints     int64         `json:"target_points" validate:"gt=0"`
	MilestoneBonuses map[int]int64 `json:"milestone_bonuses"`
}

type amountRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

type allowanceRequest struct {
	WeeklyMinutes     int `json:"weekly_minutes" validate:"gte=0"`
	DailyLimitMinutes int `json:"daily_limit_minutes" validate:"gte=0"`
}

type bonusRequest struct {
	Minutes int    `json:"minutes" validate:"gt=0"`
	Source  string `json:"source" validate:"required,max=100"`
}

type endSessionRequest struct {
	MinutesUsed *int `json:"minutes_used"`
}

// childOrSelf fills in the child from a child actor when the body names none
func childOrSelf(actor models.Actor, childID int64) int64 {
	if childID == 0 {
		if child, ok := actor.(models.ChildActor); ok {
			return child.ChildID
		}
	}
	return childID
}

func (s *Server) handleLookupFamily(w http.ResponseWriter, r *http.Request) {
	lookup, err := s.deps.Families.LookupFamily(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var req createFamilyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	family, err := s.deps.Families.CreateFamily(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, family)
}

func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeps == nil {
		writeError(w, http.StatusServiceUnavailable, "internal", "sweeps are not configured")
		return
	}
	summary, err := s.deps.Sweeps.RunNamed(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAddChild(w http.ResponseWriter, r *http.Request) {
	var req addChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	child, err := s.deps.Families.AddChild(r.Context(), requestActor(r), req.Name, req.InitialBalance)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	account, err := s.deps.Ledger.GetBalance(r.Context(), requestActor(r), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(service.KindValidation), "limit must be a number")
			return
		}
		limit = parsed
	}
	entries, err := s.deps.Ledger.ListEntries(r.Context(), requestActor(r), childID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	result, err := s.deps.Ledger.Adjust(r.Context(), requestActor(r), childID, req.Amount, req.Description, key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := s.deps.Tasks.CreateTask(r.Context(), requestActor(r), &models.Task{
		Title:            req.Title,
		Points:           req.Points,
		ApprovalType:     models.ApprovalType(req.ApprovalType),
		AutoApproveHours: req.AutoApproveHours,
		TimerMinutes:     req.TimerMinutes,
		Checklist:        req.Checklist,
		AssignedChildID:  req.AssignedChildID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	taskID, ok := idParam(w, r, "taskID")
	if !ok {
		return
	}
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := requestActor(r)
	result, err := s.deps.Tasks.Submit(r.Context(), actor, taskID, childOrSelf(actor, req.ChildID), req.evidence())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	completions, err := s.deps.Tasks.ListPending(r.Context(), requestActor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completions": completions})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "completionID")
	if !ok {
		return
	}
	result, err := s.deps.Tasks.Approve(r.Context(), requestActor(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatchApprove(w http.ResponseWriter, r *http.Request) {
	var req batchApproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := s.deps.Tasks.BatchApprove(r.Context(), requestActor(r), req.CompletionIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRequestFix(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "completionID")
	if !ok {
		return
	}
	var req fixRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	completion, err := s.deps.Tasks.RequestFix(r.Context(), requestActor(r), id, models.FixRequest{Items: req.Items, Message: req.Message})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "completionID")
	if !ok {
		return
	}
	var req evidenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	completion, err := s.deps.Tasks.Resubmit(r.Context(), requestActor(r), id, req.evidence())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rewardType := models.RewardType(req.RewardType)
	if rewardType == "" {
		rewardType = models.RewardTypeStandard
	}
	reward, err := s.deps.Rewards.CreateReward(r.Context(), requestActor(r), &models.Reward{
		Title:             req.Title,
		PointsCost:        req.PointsCost,
		RewardType:        rewardType,
		ScreenMinutes:     req.ScreenMinutes,
		Stock:             req.Stock,
		WeeklyLimit:       req.WeeklyLimit,
		RestrictedChildID: req.RestrictedChildID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	rewardID, ok := idParam(w, r, "rewardID")
	if !ok {
		return
	}
	var req childRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	actor := requestActor(r)
	result, err := s.deps.Rewards.Purchase(r.Context(), actor, childOrSelf(actor, req.ChildID), rewardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	purchases, err := s.deps.Rewards.ListPurchases(r.Context(), requestActor(r), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purchases": purchases})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := requestActor(r)
	goal, err := s.deps.Goals.CreateGoal(r.Context(), actor, &models.Goal{
		ChildID:          childOrSelf(actor, req.ChildID),
		Title:            req.Title,
		TargetPoints:     req.TargetPoints,
		MilestoneBonuses: req.MilestoneBonuses,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goalID, ok := idParam(w, r, "goalID")
	if !ok {
		return
	}
	goal, err := s.deps.Goals.GetGoal(r.Context(), requestActor(r), goalID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleScreenTimeStatus(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	status, err := s.deps.ScreenTime.GetStatus(r.Context(), requestActor(r), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSetAllowance(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	var req allowanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	settings, err := s.deps.ScreenTime.SetAllowance(r.Context(), requestActor(r), childID, req.WeeklyMinutes, req.DailyLimitMinutes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleAddBonus(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	var req bonusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	budget, err := s.deps.ScreenTime.AddBonusMinutes(r.Context(), requestActor(r), childID, req.Minutes, req.Source)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	childID, ok := idParam(w, r, "childID")
	if !ok {
		return
	}
	session, err := s.deps.ScreenTime.StartSession(r.Context(), requestActor(r), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := idParam(w, r, "sessionID")
	if !ok {
		return
	}
	var req endSessionRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	result, err := s.deps.ScreenTime.EndSession(r.Context(), requestActor(r), sessionID, req.MinutesUsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// idAction adapts an operation that takes only a path id
func idAction[T any](param string, fn func(context.Context, models.Actor, int64) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, param)
		if !ok {
			return
		}
		result, err := fn(r.Context(), requestActor(r), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// goalTransfer adapts goal deposits and withdrawals
func goalTransfer(fn func(context.Context, models.Actor, int64, int64) (*models.DepositResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		goalID, ok := idParam(w, r, "goalID")
		if !ok {
			return
		}
		var req amountRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := fn(r.Context(), requestActor(r), goalID, req.Amount)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decodeJSON(w, r, dst)
}
