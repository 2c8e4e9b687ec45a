package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"familypoints/api"
	"familypoints/bot"
	"familypoints/config"
	"familypoints/database"
	"familypoints/events"
	"familypoints/observability"
	"familypoints/ratelimit"
	"familypoints/repository"
	"familypoints/service"
	"familypoints/worker"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout     = 10 * time.Second
	limiterCleanupEvery = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the sweep worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// services bundles everything built on top of the unit of work factory
type services struct {
	families   service.FamilyService
	ledger     service.LedgerService
	tasks      service.TaskService
	rewards    service.RewardService
	goals      service.GoalService
	screenTime service.ScreenTimeService
}

func newServices(uowFactory service.UnitOfWorkFactory, cfg *config.Config) *services {
	return &services{
		families:   service.NewFamilyService(uowFactory),
		ledger:     service.NewLedgerService(uowFactory),
		tasks:      service.NewTaskService(uowFactory, cfg),
		rewards:    service.NewRewardService(uowFactory, cfg),
		goals:      service.NewGoalService(uowFactory),
		screenTime: service.NewScreenTimeService(uowFactory, cfg),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()
	log.WithField("environment", cfg.Environment).Info("Starting familypoints...")

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.WithField("database", database.RedactURL(cfg.GetDatabaseURL())).Info("Database connection established")

	eventBus := events.NewBus()
	observability.Attach(eventBus)

	if cfg.NATSServers != "" {
		forwarder := events.NewNATSForwarder(cfg.NATSServers)
		if err := forwarder.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer forwarder.Close()
		forwarder.Attach(eventBus)
	}

	if cfg.DiscordToken != "" {
		notifier, err := bot.New(bot.Config{Token: cfg.DiscordToken, ChannelID: cfg.DiscordChannelID})
		if err != nil {
			return fmt.Errorf("failed to initialize Discord notifier: %w", err)
		}
		defer func() {
			if err := notifier.Close(); err != nil {
				log.WithError(err).Warn("Error closing Discord notifier")
			}
		}()
		notifier.Attach(eventBus)
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	svc := newServices(uowFactory, cfg)

	sweeps := worker.NewSweepWorker(svc.tasks, svc.rewards, cfg.SweepInterval)
	stopSweeps := sweeps.Start(ctx)
	defer stopSweeps()

	server := api.NewServer(api.Deps{
		Families:   svc.families,
		Ledger:     svc.ledger,
		Tasks:      svc.tasks,
		Rewards:    svc.rewards,
		Goals:      svc.goals,
		ScreenTime: svc.screenTime,
		Sweeps:     sweeps,
		Limiter:    limiter,
	}, api.Options{
		JWTSecret:            cfg.JWTSecret,
		AdminToken:           cfg.AdminToken,
		RateLimitMaxAttempts: cfg.RateLimitMaxAttempts,
		RateLimitWindow:      cfg.RateLimitWindow,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown timed out")
	}
	log.Info("Shutdown completed")
	return nil
}

// newLimiter picks Redis when configured and the in-process limiter otherwise
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("Using Redis rate limiter")
		return limiter, func() {
			if err := limiter.Close(); err != nil {
				log.WithError(err).Warn("Error closing Redis client")
			}
		}, nil
	}

	limiter := ratelimit.NewMemoryLimiter()
	limiter.StartCleanup(ctx, limiterCleanupEvery)
	log.Info("Using in-process rate limiter")
	return limiter, func() {}, nil
}
