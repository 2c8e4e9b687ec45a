package worker

import (
	"context"
	"fmt"
	"time"

	"familypoints/models"
	"familypoints/observability"
	"familypoints/service"

	log "github.com/sirupsen/logrus"
)

const (
	SweepAutoApprove = "auto-approve"
	SweepAutoRefund  = "auto-refund"
)

// SweepFunc runs one sweep as of now
type SweepFunc func(ctx context.Context, now time.Time) (*models.SweepSummary, error)

// Sweep is a named periodic job
type Sweep struct {
	Name string
	Run  SweepFunc
}

// SweepWorker runs the auto-approve and auto-refund sweeps on an interval
type SweepWorker struct {
	sweeps   []Sweep
	interval time.Duration
	now      func() time.Time
}

// NewSweepWorker creates a worker running the task and reward sweeps
func NewSweepWorker(taskService service.TaskService, rewardService service.RewardService, interval time.Duration) *SweepWorker {
	return newSweepWorker(interval,
		Sweep{Name: SweepAutoApprove, Run: taskService.AutoApproveSweep},
		Sweep{Name: SweepAutoRefund, Run: rewardService.AutoRefundSweep},
	)
}

func newSweepWorker(interval time.Duration, sweeps ...Sweep) *SweepWorker {
	return &SweepWorker{
		sweeps:   sweeps,
		interval: interval,
		now:      time.Now,
	}
}

// Names lists the sweeps the worker knows
func (w *SweepWorker) Names() []string {
	names := make([]string, 0, len(w.sweeps))
	for _, s := range w.sweeps {
		names = append(names, s.Name)
	}
	return names
}

// RunNamed runs a single sweep immediately
func (w *SweepWorker) RunNamed(ctx context.Context, name string) (*models.SweepSummary, error) {
	for _, s := range w.sweeps {
		if s.Name == name {
			return w.run(ctx, s)
		}
	}
	return nil, service.NewNotFoundError("unknown sweep %q", name)
}

// RunAll runs every sweep once, continuing past failures
func (w *SweepWorker) RunAll(ctx context.Context) map[string]*models.SweepSummary {
	results := make(map[string]*models.SweepSummary, len(w.sweeps))
	for _, s := range w.sweeps {
		summary, err := w.run(ctx, s)
		if err != nil {
			log.WithFields(log.Fields{
				"sweep": s.Name,
				"error": err,
			}).Error("Sweep failed")
			continue
		}
		results[s.Name] = summary
	}
	return results
}

func (w *SweepWorker) run(ctx context.Context, s Sweep) (*models.SweepSummary, error) {
	started := time.Now()
	summary, err := s.Run(ctx, w.now().UTC())
	observability.RecordSweep(s.Name, summary, time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", s.Name, err)
	}

	log.WithFields(log.Fields{
		"sweep":     s.Name,
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"duration":  time.Since(started),
	}).Info("Completed sweep")
	return summary, nil
}

// Start runs all sweeps now and then every interval. The returned function stops the worker.
func (w *SweepWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Sweep worker started")

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Sweep worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Sweep worker shutting down (stop requested)...")
				return
			case <-timer.C:
				w.RunAll(ctx)
				timer.Reset(w.interval)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}
