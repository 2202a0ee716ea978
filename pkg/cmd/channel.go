package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tessera-id/ariadne/pkg/channels/gochannel"
	"github.com/tessera-id/ariadne/pkg/channels/kafka"
)

// NewSubscriber builds the ingress channel subscriber for the given
// provider. The gochannel provider only makes sense alongside the HTTP
// ingress server, since nothing else publishes into it.
func NewSubscriber(provider, brokers, serviceName string, logger *slog.Logger) (message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		_, subscriber, err := kafka.CreateChannel(wmLogger, serviceName, brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka channel: %w", err)
		}

		return subscriber, nil
	case "gochannel":
		_, subscriber, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel channel: %w", err)
		}

		return subscriber, nil
	default:
		return nil, fmt.Errorf("unsupported channel provider %q", provider)
	}
}
