package bot

import (
	"fmt"

	"familypoints/events"
	"familypoints/models"

	"github.com/bwmarrin/discordgo"
)

// Discord color constants
const (
	ColorPrimary = 0x5865F2 // Discord blurple
	ColorSuccess = 0x57F287 // Green
	ColorDanger  = 0xED4245 // Red
	ColorWarning = 0xFEE75C // Yellow
)

// buildEmbed returns the notification for an event, or nil when the event
// needs no parent attention
func buildEmbed(event events.Event) *discordgo.MessageEmbed {
	switch e := event.(type) {
	case events.TaskCompletionChangedEvent:
		return buildCompletionEmbed(e)
	case events.RewardPurchaseChangedEvent:
		return buildPurchaseEmbed(e)
	case events.GoalMilestoneReachedEvent:
		return buildMilestoneEmbed(e)
	case events.GoalCompletedEvent:
		return buildGoalCompletedEmbed(e)
	}
	return nil
}

func buildCompletionEmbed(e events.TaskCompletionChangedEvent) *discordgo.MessageEmbed {
	switch e.NewStatus {
	case models.CompletionStatusPending:
		title := "📝 **Task waiting for approval**"
		if e.OldStatus == models.CompletionStatusFixRequested {
			title = "🔁 **Task resubmitted**"
		}
		return &discordgo.MessageEmbed{
			Title:       title,
			Description: fmt.Sprintf("Child #%d finished task #%d.", e.ChildID, e.TaskID),
			Color:       ColorPrimary,
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Completion #%d", e.CompletionID),
			},
		}
	case models.CompletionStatusAutoApproved:
		return &discordgo.MessageEmbed{
			Title:       "⏰ **Task auto-approved**",
			Description: fmt.Sprintf("Completion #%d of child #%d was approved after the review window closed.", e.CompletionID, e.ChildID),
			Color:       ColorWarning,
		}
	}
	return nil
}

func buildPurchaseEmbed(e events.RewardPurchaseChangedEvent) *discordgo.MessageEmbed {
	switch e.NewStatus {
	case models.PurchaseStatusUseRequested:
		return &discordgo.MessageEmbed{
			Title:       "🎟️ **Reward use requested**",
			Description: fmt.Sprintf("Child #%d wants to use reward #%d.", e.ChildID, e.RewardID),
			Color:       ColorPrimary,
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Ticket #%d", e.PurchaseID),
			},
		}
	case models.PurchaseStatusExpired:
		embed := &discordgo.MessageEmbed{
			Title:       "↩️ **Reward refunded**",
			Description: fmt.Sprintf("Ticket #%d of child #%d was not answered in time and the points were returned.", e.PurchaseID, e.ChildID),
			Color:       ColorDanger,
		}
		if e.RequestedAt != nil {
			embed.Fields = []*discordgo.MessageEmbedField{
				{Name: "Requested", Value: FormatDiscordTimestamp(*e.RequestedAt, "R"), Inline: true},
			}
		}
		return embed
	}
	return nil
}

func buildMilestoneEmbed(e events.GoalMilestoneReachedEvent) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Progress", Value: fmt.Sprintf("%d%%", e.Threshold), Inline: true},
	}
	if e.Bonus > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Bonus",
			Value:  fmt.Sprintf("**%s points**", FormatPoints(e.Bonus)),
			Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:       "🏁 **Goal milestone reached**",
		Description: fmt.Sprintf("Child #%d is %d%% of the way to goal #%d.", e.ChildID, e.Threshold, e.GoalID),
		Color:       ColorSuccess,
		Fields:      fields,
	}
}

func buildGoalCompletedEmbed(e events.GoalCompletedEvent) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎉 **Goal completed**",
		Description: fmt.Sprintf("Child #%d saved up for **%s**.", e.ChildID, e.Title),
		Color:       ColorSuccess,
	}
}
