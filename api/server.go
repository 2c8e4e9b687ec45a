// Package api exposes the points economy over a JSON HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"familypoints/models"
	"familypoints/ratelimit"
	"familypoints/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 30 * time.Second

// SweepRunner runs a named background sweep on demand
type SweepRunner interface {
	RunNamed(ctx context.Context, name string) (*models.SweepSummary, error)
}

// Deps are the collaborators the API routes to
type Deps struct {
	Families   service.FamilyService
	Ledger     service.LedgerService
	Tasks      service.TaskService
	Rewards    service.RewardService
	Goals      service.GoalService
	ScreenTime service.ScreenTimeService
	Sweeps     SweepRunner
	Limiter    ratelimit.Limiter
}

// Options configures authentication and the public lookup limit
type Options struct {
	JWTSecret            string
	AdminToken           string
	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration
}

// Server routes HTTP requests to the services
type Server struct {
	deps        Deps
	jwtSecret   []byte
	adminToken  string
	maxAttempts int
	window      time.Duration
}

// NewServer creates a new API server
func NewServer(deps Deps, opts Options) *Server {
	return &Server{
		deps:        deps,
		jwtSecret:   []byte(opts.JWTSecret),
		adminToken:  opts.AdminToken,
		maxAttempts: opts.RateLimitMaxAttempts,
		window:      opts.RateLimitWindow,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimitByIP("family_lookup")).Get("/public/families/{code}", s.handleLookupFamily)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/families", s.handleCreateFamily)
			r.Post("/sweeps/{name}", s.handleRunSweep)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/children", s.handleAddChild)
			r.Get("/children/{childID}/balance", s.handleGetBalance)
			r.Get("/children/{childID}/ledger", s.handleListEntries)
			r.Post("/children/{childID}/adjustments", s.handleAdjust)
			r.Get("/children/{childID}/purchases", s.handleListPurchases)
			r.Get("/children/{childID}/screen-time", s.handleScreenTimeStatus)
			r.Put("/children/{childID}/screen-time/allowance", s.handleSetAllowance)
			r.Post("/children/{childID}/screen-time/bonus", s.handleAddBonus)
			r.Post("/children/{childID}/screen-time/sessions", s.handleStartSession)

			r.Post("/tasks", s.handleCreateTask)
			r.Post("/tasks/{taskID}/completions", s.handleSubmit)
			r.Get("/completions/pending", s.handleListPending)
			r.Post("/completions/approve", s.handleBatchApprove)
			r.Post("/completions/{completionID}/approve", s.handleApprove)
			r.Post("/completions/{completionID}/fix", s.handleRequestFix)
			r.Post("/completions/{completionID}/resubmit", s.handleResubmit)

			r.Post("/rewards", s.handleCreateReward)
			r.Post("/rewards/{rewardID}/purchases", s.handlePurchase)
			r.Post("/purchases/{purchaseID}/cancel", idAction("purchaseID", s.deps.Rewards.Cancel))
			r.Post("/purchases/{purchaseID}/request-use", idAction("purchaseID", s.deps.Rewards.RequestUse))
			r.Post("/purchases/{purchaseID}/approve-use", idAction("purchaseID", s.deps.Rewards.ApproveUse))
			r.Post("/purchases/{purchaseID}/deny-use", idAction("purchaseID", s.deps.Rewards.DenyUse))
			r.Post("/purchases/{purchaseID}/fulfill", idAction("purchaseID", s.deps.Rewards.Fulfill))

			r.Post("/goals", s.handleCreateGoal)
			r.Get("/goals/{goalID}", s.handleGetGoal)
			r.Post("/goals/{goalID}/deposit", goalTransfer(s.deps.Goals.Deposit))
			r.Post("/goals/{goalID}/withdraw", goalTransfer(s.deps.Goals.Withdraw))

			r.Post("/screen-time/sessions/{sessionID}/end", s.handleEndSession)
			r.Post("/screen-time/sessions/{sessionID}/pause", idAction("sessionID", s.deps.ScreenTime.PauseSession))
			r.Post("/screen-time/sessions/{sessionID}/resume", idAction("sessionID", s.deps.ScreenTime.ResumeSession))
		})
	})

	return r
}
