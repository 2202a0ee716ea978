// Package eventbus provides in-process event dispatch for the orchestration core.
package eventbus

import (
	"context"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// Handler runs under the tenant context named in the publish call. The topic
// is passed through so broad pattern subscribers can tell deliveries apart.
type Handler func(ctx context.Context, tn tenant.Context, topic models.Topic, payload map[string]any) error

// Bus is the pattern-matched publish/subscribe fabric. Delivery is
// in-process: a Publish call awaits every matching subscriber before
// returning, though publishes for different tenants may run concurrently.
// The bus performs no retries; handler errors are returned to the publisher.
type Bus interface {
	// Subscribe registers a handler for every topic matching pattern.
	// Patterns are regular expressions anchored at the start of the topic,
	// so a plain string subscribes to a topic prefix. Subscribers matching
	// one topic are invoked in registration order.
	Subscribe(pattern string, handler Handler) error

	// Publish delivers payload to all subscribers matching topic and
	// returns the joined handler errors, if any.
	Publish(ctx context.Context, topic models.Topic, tn tenant.Context, payload map[string]any) error

	GenerateID() string
}
