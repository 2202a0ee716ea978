// Package ingress adapts external notification transports onto the local
// bus: a watermill bridge for the agent's Kafka stream and an HTTP server
// for direct webhook delivery.
package ingress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// Bridge consumes the admin agent's notification stream and republishes each
// envelope onto the local bus.
type Bridge struct {
	subscriber message.Subscriber
	bus        eventbus.Bus
	topic      string
	logger     *slog.Logger
}

func NewBridge(subscriber message.Subscriber, bus eventbus.Bus, topic string, logger *slog.Logger) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		bus:        bus,
		topic:      topic,
		logger:     logger.With("module", "ingress_bridge", "topic", topic),
	}
}

// Start consumes until ctx is cancelled. Bus handler errors Nack the message
// so the broker redelivers it; malformed envelopes are acked and dropped,
// since redelivery cannot repair them.
func (b *Bridge) Start(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			if b.handle(ctx, msg) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		}
	}()

	return nil
}

func (b *Bridge) handle(ctx context.Context, msg *message.Message) bool {
	err := validateEnvelope(msg.Payload)
	if err != nil {
		b.logger.WarnContext(ctx, "Dropping malformed notification",
			"message_id", msg.UUID, "error", err)

		return true
	}

	var env envelope

	err = json.Unmarshal(msg.Payload, &env)
	if err != nil {
		b.logger.WarnContext(ctx, "Dropping undecodable notification",
			"message_id", msg.UUID, "error", err)

		return true
	}

	payload := env.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	if env.State != "" {
		payload["state"] = env.State
	}

	topic := models.Topic(env.Topic)
	if !topic.External() {
		// Internal topics arriving from the outside are forgeries, not
		// transient faults: drop them.
		b.logger.WarnContext(ctx, "Dropping notification for non-protocol topic",
			"message_id", msg.UUID, "topic", env.Topic, "tenant_id", env.TenantID)

		return true
	}

	err = b.bus.Publish(ctx, topic, tenant.Context{TenantID: env.TenantID}, payload)
	if err != nil {
		b.logger.ErrorContext(ctx, "Notification handling failed, requeueing",
			"message_id", msg.UUID, "topic", env.Topic, "tenant_id", env.TenantID, "error", err)

		return false
	}

	return true
}
