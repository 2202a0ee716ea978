// Package tasks provides fire-and-forget background actions dispatched over
// the event bus, with automatic failure capture onto the target record.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// TopicPrefix namespaces task dispatch topics on the bus.
const TopicPrefix = "task."

// DefaultTargetIDField is the payload field naming the record that receives
// the error status when the action fails.
const DefaultTargetIDField = models.FieldExchangeID

// Action is the side-effecting work a task performs. It runs with the
// tenant's resolved credential. Returning an error marks the target record;
// any follow-up on success is the action's own responsibility, typically
// publishing a further event.
type Action func(ctx context.Context, tn tenant.Context, payload map[string]any) error

// Definition declares a named task.
type Definition struct {
	Name          string
	TargetIDField string // defaults to DefaultTargetIDField
	Action        Action
}

// Manager registers task handlers on the bus and assigns work to them.
// Exceptions never propagate past the task boundary: execution is
// at-most-once with no automatic retry, and failures are recorded as
// {status: error, errorDetail} on the target record. Recovery requires an
// explicit corrective trigger.
type Manager struct {
	bus       eventbus.Bus
	tokens    tenant.TokenProvider
	exchanges persistence.ExchangeRepository
	logger    *slog.Logger
}

func NewManager(bus eventbus.Bus, tokens tenant.TokenProvider, exchanges persistence.ExchangeRepository, logger *slog.Logger) *Manager {
	return &Manager{
		bus:       bus,
		tokens:    tokens,
		exchanges: exchanges,
		logger:    logger.With("module", "tasks"),
	}
}

// Register subscribes the task's handler on its dispatch topic.
func (m *Manager) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("task definition requires a name")
	}

	if def.Action == nil {
		return fmt.Errorf("task %q requires an action", def.Name)
	}

	targetField := def.TargetIDField
	if targetField == "" {
		targetField = DefaultTargetIDField
	}

	pattern := regexp.QuoteMeta(TopicPrefix+def.Name) + "$"

	return m.bus.Subscribe(pattern, m.wrap(def.Name, targetField, def.Action))
}

// Assign schedules a task for a tenant and returns without waiting for the
// action. The tenant's credential is resolved at delivery time, not here.
func (m *Manager) Assign(ctx context.Context, name, tenantID string, payload map[string]any) {
	topic := models.Topic(TopicPrefix + name)

	go func() {
		// Detached from the caller's cancellation: the caller must not be
		// able to abort a task it already handed off.
		err := m.bus.Publish(context.WithoutCancel(ctx), topic, tenant.Context{TenantID: tenantID}, payload)
		if err != nil {
			m.logger.Error("Task dispatch failed", "task", name, "tenant_id", tenantID, "error", err)
		}
	}()
}

func (m *Manager) wrap(name, targetField string, action Action) eventbus.Handler {
	return func(ctx context.Context, tn tenant.Context, _ models.Topic, payload map[string]any) error {
		logger := m.logger.With("task", name, "tenant_id", tn.TenantID)

		resolved, err := tenant.Resolve(ctx, m.tokens, tn.TenantID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resolve tenant credential", "error", err)
			m.recordFailure(ctx, logger, targetField, payload, err)

			return nil
		}

		err = action(ctx, resolved, payload)
		if err != nil {
			logger.ErrorContext(ctx, "Task action failed", "error", err)
			m.evictRejectedToken(ctx, logger, tn.TenantID, err)
			m.recordFailure(ctx, logger, targetField, payload, err)

			return nil
		}

		logger.DebugContext(ctx, "Task completed")

		return nil
	}
}

// evictRejectedToken drops the tenant's cached credential when the agent
// rejected it, so the next task resolves a fresh token through the source
// instead of replaying the stale one until the cache TTL expires.
func (m *Manager) evictRejectedToken(ctx context.Context, logger *slog.Logger, tenantID string, cause error) {
	if !errors.Is(cause, agent.ErrUnauthorized) {
		return
	}

	invalidator, ok := m.tokens.(tenant.TokenInvalidator)
	if !ok {
		return
	}

	err := invalidator.Invalidate(ctx, tenantID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to invalidate rejected credential", "error", err)
	}
}

// recordFailure writes the error onto the target record so the failure is
// durable rather than silently dropped. A payload without a target id can
// only be logged.
func (m *Manager) recordFailure(ctx context.Context, logger *slog.Logger, targetField string, payload map[string]any, cause error) {
	targetID, ok := payload[targetField].(string)
	if !ok || targetID == "" {
		logger.ErrorContext(ctx, "Task failed with no target record to mark", "target_field", targetField)

		return
	}

	err := m.exchanges.SetError(ctx, targetID, cause.Error())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record task failure", "target_id", targetID, "error", err)
	}
}
