package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		startDay time.Weekday
		want     time.Time
	}{
		{"wednesday, monday weeks", testNow, time.Monday, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"monday itself", time.Date(2024, 3, 11, 23, 59, 0, 0, time.UTC), time.Monday, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"sunday, monday weeks", time.Date(2024, 3, 17, 8, 0, 0, 0, time.UTC), time.Monday, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{"wednesday, sunday weeks", testNow, time.Sunday, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"across a month", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.Monday, time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)},
		{"non-utc input", time.Date(2024, 3, 11, 1, 0, 0, 0, time.FixedZone("CET", 3600)), time.Monday, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(WeekStart(tt.at, tt.startDay)), "got %v", WeekStart(tt.at, tt.startDay))
		})
	}
}

func TestCeilMinutes(t *testing.T) {
	assert.Equal(t, 0, CeilMinutes(0))
	assert.Equal(t, 0, CeilMinutes(-10))
	assert.Equal(t, 1, CeilMinutes(1))
	assert.Equal(t, 1, CeilMinutes(60))
	assert.Equal(t, 2, CeilMinutes(61))
}
