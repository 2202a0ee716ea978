package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

type subscription struct {
	pattern *regexp.Regexp
	handler Handler
}

// LocalBus is the in-process Bus implementation. It is an explicit object
// passed by reference, never a process singleton, so tests construct
// isolated buses.
type LocalBus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        *slog.Logger
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{
		logger: logger.With("module", "eventbus"),
	}
}

func (b *LocalBus) GenerateID() string {
	return watermill.NewULID()
}

func (b *LocalBus) Subscribe(pattern string, handler Handler) error {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return fmt.Errorf("invalid topic pattern %q: %w", pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscriptions = append(b.subscriptions, subscription{pattern: re, handler: handler})

	return nil
}

func (b *LocalBus) Publish(ctx context.Context, topic models.Topic, tn tenant.Context, payload map[string]any) error {
	b.mu.RLock()

	matched := make([]Handler, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.pattern.MatchString(string(topic)) {
			matched = append(matched, sub.handler)
		}
	}

	b.mu.RUnlock()

	if len(matched) == 0 {
		b.logger.DebugContext(ctx, "No subscribers for topic", "topic", topic, "tenant_id", tn.TenantID)

		return nil
	}

	var errs []error

	for _, handler := range matched {
		err := handler(ctx, tn, topic, payload)
		if err != nil {
			b.logger.ErrorContext(ctx, "Subscriber failed",
				"topic", topic,
				"tenant_id", tn.TenantID,
				"error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
