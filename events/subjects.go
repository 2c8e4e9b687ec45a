package events

import (
	"fmt"
)

// StreamName is the JetStream stream all family events are published to
const StreamName = "family_events"

var subjects = map[EventType]string{
	EventTypeLedgerEntryCreated:       "points.ledger.created",
	EventTypeTaskCompletionChanged:    "points.tasks.completion_changed",
	EventTypeRewardPurchaseChanged:    "points.rewards.purchase_changed",
	EventTypeGoalMilestoneReached:     "points.goals.milestone_reached",
	EventTypeGoalCompleted:            "points.goals.completed",
	EventTypeScreenTimeSessionChanged: "points.screen_time.session_changed",
}

// SubjectFor maps an event to its NATS subject
func SubjectFor(eventType EventType) string {
	if subject, ok := subjects[eventType]; ok {
		return subject
	}
	return fmt.Sprintf("points.unknown.%s", eventType)
}

// AllSubjects returns every subject this service publishes to
func AllSubjects() []string {
	out := make([]string, 0, len(AllEventTypes))
	for _, eventType := range AllEventTypes {
		out = append(out, SubjectFor(eventType))
	}
	return out
}
