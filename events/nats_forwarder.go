package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Envelope wraps every event published to NATS
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event into an envelope with a fresh id
func NewEnvelope(event Event, now time.Time) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &Envelope{
		EventID:       uuid.New().String(),
		EventType:     event.Type(),
		Timestamp:     now.UTC(),
		SourceService: "familypoints",
		Payload:       payload,
	}, nil
}

// jetStreamPublisher is the slice of nats.JetStreamContext the forwarder uses
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSForwarder republishes committed bus events to a JetStream stream
type NATSForwarder struct {
	servers string
	nc      *nats.Conn
	js      jetStreamPublisher
}

// NewNATSForwarder creates a forwarder for the given comma separated server list
func NewNATSForwarder(servers string) *NATSForwarder {
	return &NATSForwarder{servers: servers}
}

// Connect establishes the NATS connection and makes sure the stream exists
func (f *NATSForwarder) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("familypoints"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(f.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:        StreamName,
			Subjects:    AllSubjects(),
			Retention:   nats.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     nats.FileStorage,
			Replicas:    1,
			Description: "Family points economy events",
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
		}
		log.WithField("stream", StreamName).Info("Created JetStream stream")
	}

	f.nc = nc
	f.js = js
	log.WithField("servers", f.servers).Info("Connected to NATS with JetStream")
	return nil
}

// Attach subscribes the forwarder to every event on the bus
func (f *NATSForwarder) Attach(bus *Bus) {
	bus.SubscribeAll(func(ctx context.Context, event Event) {
		if err := f.Forward(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to forward event to NATS")
		}
	})
}

// Forward publishes one event to its subject
func (f *NATSForwarder) Forward(event Event) error {
	if f.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	envelope, err := NewEnvelope(event, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := SubjectFor(event.Type())
	if _, err := f.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Published event to NATS")
	return nil
}

// Close drains the connection
func (f *NATSForwarder) Close() {
	if f.nc != nil {
		if err := f.nc.Drain(); err != nil {
			log.WithError(err).Warn("Failed to drain NATS connection")
		}
		f.nc = nil
	}
}
