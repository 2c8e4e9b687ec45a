package events

import (
	"context"
	"sync"
	"time"

	"familypoints/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeLedgerEntryCreated       EventType = "ledger_entry_created"
	EventTypeTaskCompletionChanged    EventType = "task_completion_changed"
	EventTypeRewardPurchaseChanged    EventType = "reward_purchase_changed"
	EventTypeGoalMilestoneReached     EventType = "goal_milestone_reached"
	EventTypeGoalCompleted            EventType = "goal_completed"
	EventTypeScreenTimeSessionChanged EventType = "screen_time_session_changed"
)

// AllEventTypes lists every event the core emits
var AllEventTypes = []EventType{
	EventTypeLedgerEntryCreated,
	EventTypeTaskCompletionChanged,
	EventTypeRewardPurchaseChanged,
	EventTypeGoalMilestoneReached,
	EventTypeGoalCompleted,
	EventTypeScreenTimeSessionChanged,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// LedgerEntryCreatedEvent is emitted for every new ledger entry
type LedgerEntryCreatedEvent struct {
	EntryID         int64                  `json:"entry_id"`
	ChildID         int64                  `json:"child_id"`
	FamilyID        int64                  `json:"family_id"`
	TransactionType models.TransactionType `json:"transaction_type"`
	Amount          int64                  `json:"amount"`
	BalanceAfter    int64                  `json:"balance_after"`
	ReferenceType   models.ReferenceType   `json:"reference_type"`
	ReferenceID     string                 `json:"reference_id"`
}

func (e LedgerEntryCreatedEvent) Type() EventType {
	return EventTypeLedgerEntryCreated
}

// TaskCompletionChangedEvent represents a task completion state transition
type TaskCompletionChangedEvent struct {
	CompletionID int64                   `json:"completion_id"`
	TaskID       int64                   `json:"task_id"`
	ChildID      int64                   `json:"child_id"`
	FamilyID     int64                   `json:"family_id"`
	OldStatus    models.CompletionStatus `json:"old_status,omitempty"`
	NewStatus    models.CompletionStatus `json:"new_status"`
}

func (e TaskCompletionChangedEvent) Type() EventType {
	return EventTypeTaskCompletionChanged
}

// RewardPurchaseChangedEvent represents a ticket lifecycle transition
type RewardPurchaseChangedEvent struct {
	PurchaseID  int64                 `json:"purchase_id"`
	RewardID    int64                 `json:"reward_id"`
	ChildID     int64                 `json:"child_id"`
	FamilyID    int64                 `json:"family_id"`
	OldStatus   models.PurchaseStatus `json:"old_status,omitempty"`
	NewStatus   models.PurchaseStatus `json:"new_status"`
	RequestedAt *time.Time            `json:"requested_at,omitempty"`
}

func (e RewardPurchaseChangedEvent) Type() EventType {
	return EventTypeRewardPurchaseChanged
}

// GoalMilestoneReachedEvent is emitted once per goal and threshold
type GoalMilestoneReachedEvent struct {
	GoalID    int64 `json:"goal_id"`
	ChildID   int64 `json:"child_id"`
	FamilyID  int64 `json:"family_id"`
	Threshold int   `json:"threshold"`
	Bonus     int64 `json:"bonus"`
}

func (e GoalMilestoneReachedEvent) Type() EventType {
	return EventTypeGoalMilestoneReached
}

// GoalCompletedEvent is emitted when a goal reaches its target
type GoalCompletedEvent struct {
	GoalID   int64  `json:"goal_id"`
	ChildID  int64  `json:"child_id"`
	FamilyID int64  `json:"family_id"`
	Title    string `json:"title"`
}

func (e GoalCompletedEvent) Type() EventType {
	return EventTypeGoalCompleted
}

// ScreenTimeSessionChangedEvent represents a session start, pause, resume or end
type ScreenTimeSessionChangedEvent struct {
	SessionID   int64  `json:"session_id"`
	ChildID     int64  `json:"child_id"`
	Action      string `json:"action"` // "started", "paused", "resumed" or "ended"
	MinutesUsed int    `json:"minutes_used,omitempty"`
}

func (e ScreenTimeSessionChangedEvent) Type() EventType {
	return EventTypeScreenTimeSessionChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type the core emits
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events published inside a unit of work until it commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus creates a transactional bus flushing into real
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stashes an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the number of events waiting for commit
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// Flush emits the pending events. Called after a successful commit.
func (b *TransactionalBus) Flush(ctx context.Context) {
	if b.real == nil {
		b.pending = nil
		return
	}

	// Handlers outlive the request that committed the transaction
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}

	log.WithField("eventCount", len(b.pending)).Debug("Flushed pending events")
	b.pending = nil
}

// Discard drops the pending events. Called after a rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
