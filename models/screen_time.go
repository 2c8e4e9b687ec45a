package models

import (
	"time"
)

// ScreenTimeSettings overrides the configured default allowance for one child
type ScreenTimeSettings struct {
	ChildID           int64     `db:"child_id" json:"child_id"`
	WeeklyMinutes     int       `db:"weekly_minutes" json:"weekly_minutes"`
	DailyLimitMinutes int       `db:"daily_limit_minutes" json:"daily_limit_minutes"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ScreenTimeBudget is the weekly minute allowance for a child
type ScreenTimeBudget struct {
	ID                int64     `db:"id" json:"id"`
	ChildID           int64     `db:"child_id" json:"child_id"`
	WeekStartDate     time.Time `db:"week_start_date" json:"week_start_date"`
	BaseMinutes       int       `db:"base_minutes" json:"base_minutes"`
	BonusMinutes      int       `db:"bonus_minutes" json:"bonus_minutes"`
	UsedMinutes       int       `db:"used_minutes" json:"used_minutes"`
	DailyLimitMinutes int       `db:"daily_limit_minutes" json:"daily_limit_minutes"`
}

// WeeklyRemaining returns the minutes left this week
func (b *ScreenTimeBudget) WeeklyRemaining() int {
	remaining := b.BaseMinutes + b.BonusMinutes - b.UsedMinutes
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DailyRemaining returns the minutes left today given what was already used today
func (b *ScreenTimeBudget) DailyRemaining(usedToday int) int {
	remaining := b.DailyLimitMinutes - usedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ScreenTimeSession is one usage window
type ScreenTimeSession struct {
	ID            int64      `db:"id" json:"id"`
	ChildID       int64      `db:"child_id" json:"child_id"`
	PurchaseID    *int64     `db:"purchase_id" json:"purchase_id,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	EndedAt       *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	PausedAt      *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	PausedSeconds int        `db:"paused_seconds" json:"paused_seconds"`
	MinutesUsed   int        `db:"minutes_used" json:"minutes_used"`
}

// IsOpen reports whether the session has not been ended
func (s *ScreenTimeSession) IsOpen() bool {
	return s.EndedAt == nil
}

// IsPaused reports whether accrual is currently frozen
func (s *ScreenTimeSession) IsPaused() bool {
	return s.PausedAt != nil
}

// ElapsedSeconds returns active seconds up to now, excluding paused time
func (s *ScreenTimeSession) ElapsedSeconds(now time.Time) int {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if s.PausedAt != nil && s.PausedAt.Before(end) {
		end = *s.PausedAt
	}
	elapsed := int(end.Sub(s.StartedAt).Seconds()) - s.PausedSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ScreenTimeUsage is one usage-log row
type ScreenTimeUsage struct {
	ID        int64     `db:"id" json:"id"`
	ChildID   int64     `db:"child_id" json:"child_id"`
	SessionID *int64    `db:"session_id" json:"session_id,omitempty"`
	UsageDate time.Time `db:"usage_date" json:"usage_date"`
	Minutes   int       `db:"minutes" json:"minutes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ScreenTimeStatus summarises a child's remaining allowance
type ScreenTimeStatus struct {
	Budget          *ScreenTimeBudget  `json:"budget"`
	UsedToday       int                `json:"used_today"`
	WeeklyRemaining int                `json:"weekly_remaining"`
	DailyRemaining  int                `json:"daily_remaining"`
	Available       int                `json:"available"`
	OpenSession     *ScreenTimeSession `json:"open_session,omitempty"`
}

// EndSessionResult reports what was actually recorded when a session ended
type EndSessionResult struct {
	Session          *ScreenTimeSession `json:"session"`
	RequestedMinutes int                `json:"requested_minutes"`
	RecordedMinutes  int                `json:"recorded_minutes"`
	Budget           *ScreenTimeBudget  `json:"budget"`
}
