package bot

import (
	"context"
	"fmt"

	"familypoints/events"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token     string
	ChannelID string
}

// messageSender is the part of the Discord session the notifier posts through
type messageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts parent-facing notifications to a Discord channel
type Notifier struct {
	config  Config
	session *discordgo.Session
	sender  messageSender
}

// New opens a Discord session for the notifier
func New(config Config) (*Notifier, error) {
	if config.ChannelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}

	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	return &Notifier{
		config:  config,
		session: dg,
		sender:  dg,
	}, nil
}

// newWithSender builds a notifier around any sender
func newWithSender(config Config, sender messageSender) *Notifier {
	return &Notifier{config: config, sender: sender}
}

// Close closes the Discord session
func (n *Notifier) Close() error {
	if n.session == nil {
		return nil
	}
	return n.session.Close()
}

// Attach subscribes the notifier to the events parents care about
func (n *Notifier) Attach(bus *events.Bus) {
	for _, eventType := range []events.EventType{
		events.EventTypeTaskCompletionChanged,
		events.EventTypeRewardPurchaseChanged,
		events.EventTypeGoalMilestoneReached,
		events.EventTypeGoalCompleted,
	} {
		bus.Subscribe(eventType, n.handle)
	}
	log.WithField("channelID", n.config.ChannelID).Info("Discord notifications enabled")
}

func (n *Notifier) handle(ctx context.Context, event events.Event) {
	embed := buildEmbed(event)
	if embed == nil {
		return
	}
	if _, err := n.sender.ChannelMessageSendEmbed(n.config.ChannelID, embed); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"channelID": n.config.ChannelID,
			"error":     err,
		}).Error("Failed to post Discord notification")
	}
}
