package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"familypoints/events"
	"familypoints/models"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	embeds []*discordgo.MessageEmbed
	err    error
}

func (s *recordingSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeds = append(s.embeds, embed)
	return &discordgo.Message{ChannelID: channelID}, s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.embeds)
}

func TestBuildEmbed(t *testing.T) {
	tests := []struct {
		name      string
		event     events.Event
		wantTitle string
	}{
		{
			name:      "completion awaiting approval",
			event:     events.TaskCompletionChangedEvent{CompletionID: 1, NewStatus: models.CompletionStatusPending},
			wantTitle: "📝 **Task waiting for approval**",
		},
		{
			name: "resubmission",
			event: events.TaskCompletionChangedEvent{
				OldStatus: models.CompletionStatusFixRequested,
				NewStatus: models.CompletionStatusPending,
			},
			wantTitle: "🔁 **Task resubmitted**",
		},
		{
			name: "auto-approved by the sweep",
			event: events.TaskCompletionChangedEvent{
				OldStatus: models.CompletionStatusPending,
				NewStatus: models.CompletionStatusAutoApproved,
			},
			wantTitle: "⏰ **Task auto-approved**",
		},
		{
			name:      "use requested",
			event:     events.RewardPurchaseChangedEvent{NewStatus: models.PurchaseStatusUseRequested},
			wantTitle: "🎟️ **Reward use requested**",
		},
		{
			name:      "refunded",
			event:     events.RewardPurchaseChangedEvent{NewStatus: models.PurchaseStatusExpired},
			wantTitle: "↩️ **Reward refunded**",
		},
		{
			name:      "milestone",
			event:     events.GoalMilestoneReachedEvent{Threshold: 50, Bonus: 10},
			wantTitle: "🏁 **Goal milestone reached**",
		},
		{
			name:      "goal completed",
			event:     events.GoalCompletedEvent{Title: "Bike"},
			wantTitle: "🎉 **Goal completed**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embed := buildEmbed(tt.event)
			require.NotNil(t, embed)
			assert.Equal(t, tt.wantTitle, embed.Title)
		})
	}
}

func TestBuildEmbedIgnoresRoutineEvents(t *testing.T) {
	assert.Nil(t, buildEmbed(events.TaskCompletionChangedEvent{NewStatus: models.CompletionStatusApproved}))
	assert.Nil(t, buildEmbed(events.RewardPurchaseChangedEvent{NewStatus: models.PurchaseStatusActive}))
	assert.Nil(t, buildEmbed(events.LedgerEntryCreatedEvent{Amount: 5}))
}

func TestBuildMilestoneEmbedWithoutBonus(t *testing.T) {
	embed := buildEmbed(events.GoalMilestoneReachedEvent{Threshold: 75})
	require.NotNil(t, embed)
	assert.Len(t, embed.Fields, 1)
}

func TestNotifierPostsAttachedEvents(t *testing.T) {
	sender := &recordingSender{}
	notifier := newWithSender(Config{ChannelID: "123"}, sender)
	bus := events.NewBus()
	notifier.Attach(bus)

	ctx := context.Background()
	bus.Emit(ctx, events.GoalCompletedEvent{GoalID: 1, Title: "Bike"})
	bus.Emit(ctx, events.LedgerEntryCreatedEvent{Amount: 5})
	bus.Emit(ctx, events.RewardPurchaseChangedEvent{NewStatus: models.PurchaseStatusActive})

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, notifier.Close())
}

func TestNotifierSurvivesSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("discord unavailable")}
	notifier := newWithSender(Config{ChannelID: "123"}, sender)

	notifier.handle(context.Background(), events.GoalCompletedEvent{Title: "Bike"})
	assert.Equal(t, 1, sender.count())
}

func TestBuildRefundEmbedShowsRequestTime(t *testing.T) {
	requestedAt := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	embed := buildEmbed(events.RewardPurchaseChangedEvent{
		PurchaseID:  7,
		OldStatus:   models.PurchaseStatusUseRequested,
		NewStatus:   models.PurchaseStatusExpired,
		RequestedAt: &requestedAt,
	})
	require.NotNil(t, embed)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "Requested", embed.Fields[0].Name)
	assert.Equal(t, "<t:1710342000:R>", embed.Fields[0].Value)

	embed = buildEmbed(events.RewardPurchaseChangedEvent{NewStatus: models.PurchaseStatusExpired})
	require.NotNil(t, embed)
	assert.Empty(t, embed.Fields)
}

func TestBuildEmbedAutoApproval(t *testing.T) {
	embed := buildEmbed(events.TaskCompletionChangedEvent{
		CompletionID: 77,
		ChildID:      100,
		NewStatus:    models.CompletionStatusAutoApproved,
	})
	require.NotNil(t, embed)
	assert.Contains(t, embed.Description, "Completion #77")
}

func TestFormatDiscordTimestamp(t *testing.T) {
	at := time.Unix(1710342000, 0)
	assert.Equal(t, "<t:1710342000:R>", FormatDiscordTimestamp(at, "R"))
	assert.Equal(t, "<t:1710342000:f>", FormatDiscordTimestamp(at, "f"))
}

func TestFormatPoints(t *testing.T) {
	assert.Equal(t, "0", FormatPoints(0))
	assert.Equal(t, "999", FormatPoints(999))
	assert.Equal(t, "1,000", FormatPoints(1000))
	assert.Equal(t, "1,234,567", FormatPoints(1234567))
	assert.Equal(t, "-12,500", FormatPoints(-12500))
}
