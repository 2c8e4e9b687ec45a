// Package observability exposes the Prometheus metrics of the points economy.
package observability

import (
	"context"
	"strconv"
	"time"

	"familypoints/events"
	"familypoints/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "familypoints"

// LedgerEntries counts committed ledger entries by transaction type
var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Total ledger entries committed, by transaction type.",
}, []string{"type"})

// LedgerPoints sums committed point movements by direction
var LedgerPoints = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "points_total",
	Help:      "Total points moved by committed ledger entries, by direction.",
}, []string{"direction"})

// DomainEvents counts every event flushed to the bus
var DomainEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "emitted_total",
	Help:      "Total domain events emitted after commit, by event type.",
}, []string{"event_type"})

// SweepItems counts items handled by the periodic sweeps
var SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweep",
	Name:      "items_total",
	Help:      "Total items handled by sweeps, by sweep and outcome.",
}, []string{"sweep", "outcome"})

// SweepDuration observes how long each sweep run takes
var SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "sweep",
	Name:      "duration_seconds",
	Help:      "Sweep run duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"sweep"})

// RateLimitRejections counts requests rejected by the rate limiter
var RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ratelimit",
	Name:      "rejections_total",
	Help:      "Total requests rejected by the rate limiter, by scope.",
}, []string{"scope"})

// HTTPRequestDuration observes API latency
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"method", "route", "status"})

// RecordSweep adds one sweep run to the sweep metrics
func RecordSweep(name string, summary *models.SweepSummary, elapsed time.Duration) {
	SweepDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if summary == nil {
		return
	}
	SweepItems.WithLabelValues(name, "succeeded").Add(float64(summary.Succeeded))
	SweepItems.WithLabelValues(name, "failed").Add(float64(summary.Failed))
	SweepItems.WithLabelValues(name, "skipped").Add(float64(summary.Skipped))
}

// RecordHTTPRequest observes one finished request
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Attach subscribes the event metrics to the bus
func Attach(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		DomainEvents.WithLabelValues(string(event.Type())).Inc()
	})
	bus.Subscribe(events.EventTypeLedgerEntryCreated, func(ctx context.Context, event events.Event) {
		entry, ok := event.(events.LedgerEntryCreatedEvent)
		if !ok {
			return
		}
		LedgerEntries.WithLabelValues(string(entry.TransactionType)).Inc()
		if entry.Amount >= 0 {
			LedgerPoints.WithLabelValues("credit").Add(float64(entry.Amount))
		} else {
			LedgerPoints.WithLabelValues("debit").Add(float64(-entry.Amount))
		}
	})
}
