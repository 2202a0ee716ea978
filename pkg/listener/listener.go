// Package listener provides the protocol listener framework: role-gated
// handlers that dispatch inbound notifications to per-state hooks with
// shared before/after phases.
package listener

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/otelhelper"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// HookFunc handles one notification phase. Returned errors propagate to the
// bus caller for redelivery, so hooks must be idempotent.
type HookFunc func(ctx context.Context, tn tenant.Context, notification *models.Notification) error

// Hooks wires a listener's dispatch phases. All fields are optional except
// States; a nil phase is skipped.
//
// Dispatch order for an accepted notification:
//
//	BeforeAll -> ApproveForProcessing -> BeforeAny -> state hook -> AfterAny -> AfterAll
//
// BeforeAll and AfterAll run even when ApproveForProcessing declines, which
// lets a listener observe traffic it chooses not to act on. Exactly one state
// hook runs per approved notification: the entry in States for the reported
// state, or UnknownState when the state is missing or unmapped.
type Hooks struct {
	// ApproveForProcessing decides whether the middle phases run. A nil
	// gate approves everything.
	ApproveForProcessing func(ctx context.Context, tn tenant.Context, notification *models.Notification) (bool, error)

	BeforeAll HookFunc
	BeforeAny HookFunc
	States    map[models.State]HookFunc
	// UnknownState receives notifications with no state field or a state
	// outside the States map.
	UnknownState HookFunc
	AfterAny     HookFunc
	AfterAll     HookFunc
}

// Listener binds hooks to one protocol topic and one exchange role.
type Listener struct {
	name   string
	topic  models.Topic
	role   Role
	hooks  Hooks
	logger *slog.Logger
	tracer trace.Tracer
}

func New(name string, topic models.Topic, role Role, hooks Hooks, logger *slog.Logger, tracer trace.Tracer) *Listener {
	return &Listener{
		name:   name,
		topic:  topic,
		role:   role,
		hooks:  hooks,
		logger: logger.With("module", "listener", "listener", name),
		tracer: tracer,
	}
}

func (l *Listener) Name() string {
	return l.name
}

func (l *Listener) Topic() models.Topic {
	return l.topic
}

// Register subscribes the listener to its topic on the bus.
func (l *Listener) Register(bus eventbus.Bus) error {
	return bus.Subscribe(string(l.topic)+"$", l.Handle)
}

// Handle is the bus handler. Notifications whose declared remote role is not
// the complement of the listener's role are skipped entirely, including the
// unconditional phases: they belong to the listener on the other side of the
// exchange.
func (l *Listener) Handle(ctx context.Context, tn tenant.Context, topic models.Topic, payload map[string]any) error {
	notification := &models.Notification{
		Topic:    topic,
		TenantID: tn.TenantID,
		Payload:  payload,
	}

	if state, ok := payload["state"].(string); ok {
		notification.State = models.State(state)
	}

	if !l.role.Accepts(notification.CounterRole()) {
		l.logger.DebugContext(ctx, "Skipping notification for counter role",
			"their_role", notification.CounterRole(),
			"state", notification.State)

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "listener.handle",
		attribute.String(otelhelper.ListenerNameKey, l.name),
		attribute.String(otelhelper.ListenerStateKey, string(notification.State)),
		attribute.String(otelhelper.TopicKey, string(topic)),
		attribute.String(otelhelper.TenantIDKey, tn.TenantID))
	defer span.End()

	err := l.dispatch(ctx, tn, notification)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (l *Listener) dispatch(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	err := l.run(ctx, tn, notification, l.hooks.BeforeAll)
	if err != nil {
		return err
	}

	approved := true
	if l.hooks.ApproveForProcessing != nil {
		approved, err = l.hooks.ApproveForProcessing(ctx, tn, notification)
		if err != nil {
			return err
		}
	}

	if approved {
		err = l.run(ctx, tn, notification, l.hooks.BeforeAny)
		if err != nil {
			return err
		}

		err = l.run(ctx, tn, notification, l.stateHook(notification))
		if err != nil {
			return err
		}

		err = l.run(ctx, tn, notification, l.hooks.AfterAny)
		if err != nil {
			return err
		}
	} else {
		l.logger.DebugContext(ctx, "Notification not approved for processing",
			"state", notification.State)
	}

	return l.run(ctx, tn, notification, l.hooks.AfterAll)
}

// stateHook selects the single per-state hook for this notification.
func (l *Listener) stateHook(notification *models.Notification) HookFunc {
	if !notification.HasState() {
		return l.hooks.UnknownState
	}

	hook, ok := l.hooks.States[notification.State]
	if !ok {
		return l.hooks.UnknownState
	}

	return hook
}

func (l *Listener) run(ctx context.Context, tn tenant.Context, notification *models.Notification, hook HookFunc) error {
	if hook == nil {
		return nil
	}

	return hook(ctx, tn, notification)
}
