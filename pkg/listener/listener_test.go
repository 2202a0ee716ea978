package listener

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

func TestRole_Complement(t *testing.T) {
	assert.Equal(t, RoleInvitee, RoleInviter.Complement())
	assert.Equal(t, RoleInviter, RoleInvitee.Complement())
	assert.Equal(t, RoleHolder, RoleIssuer.Complement())
	assert.Equal(t, RoleIssuer, RoleHolder.Complement())
	assert.Equal(t, RoleVerifier, RoleProver.Complement())
	assert.Equal(t, RoleResponder, RoleRequester.Complement())
	assert.Empty(t, Role("auditor").Complement())
}

func TestRole_Accepts(t *testing.T) {
	assert.True(t, RoleIssuer.Accepts("holder"))
	assert.False(t, RoleIssuer.Accepts("issuer"))
	assert.True(t, RoleIssuer.Accepts(""), "missing declared role is accepted")
}

type recorder struct {
	calls []string
}

func (r *recorder) hook(name string) HookFunc {
	return func(_ context.Context, _ tenant.Context, _ *models.Notification) error {
		r.calls = append(r.calls, name)

		return nil
	}
}

func newTestListener(role Role, hooks Hooks) *Listener {
	return New("test", models.TopicCredentials, role, hooks, slog.Default(), noop.NewTracerProvider().Tracer("test"))
}

func handle(t *testing.T, l *Listener, payload map[string]any) error {
	t.Helper()

	return l.Handle(context.Background(), tenant.Context{TenantID: "tenant-1"}, models.TopicCredentials, payload)
}

func TestListener_DispatchOrder(t *testing.T) {
	rec := &recorder{}
	l := newTestListener(RoleIssuer, Hooks{
		BeforeAll: rec.hook("before_all"),
		BeforeAny: rec.hook("before_any"),
		States: map[models.State]HookFunc{
			models.CredentialOfferSent: rec.hook("state"),
		},
		UnknownState: rec.hook("unknown"),
		AfterAny:     rec.hook("after_any"),
		AfterAll:     rec.hook("after_all"),
	})

	err := handle(t, l, map[string]any{"state": "offer_sent", models.FieldTheirRole: "holder"})
	require.NoError(t, err)

	assert.Equal(t, []string{"before_all", "before_any", "state", "after_any", "after_all"}, rec.calls)
}

func TestListener_SkipsNonComplementaryCounterRole(t *testing.T) {
	rec := &recorder{}
	l := newTestListener(RoleIssuer, Hooks{
		BeforeAll: rec.hook("before_all"),
		States: map[models.State]HookFunc{
			models.CredentialOfferSent: rec.hook("state"),
		},
		AfterAll: rec.hook("after_all"),
	})

	// The remote party reports itself as issuer too, so this notification
	// belongs to the holder-side listener.
	err := handle(t, l, map[string]any{"state": "offer_sent", models.FieldTheirRole: "issuer"})
	require.NoError(t, err)

	assert.Empty(t, rec.calls)
}

func TestListener_UnknownStateFallback(t *testing.T) {
	rec := &recorder{}
	hooks := Hooks{
		States: map[models.State]HookFunc{
			models.CredentialOfferSent: rec.hook("state"),
		},
		UnknownState: rec.hook("unknown"),
	}

	l := newTestListener(RoleIssuer, hooks)

	// Unmapped state.
	require.NoError(t, handle(t, l, map[string]any{"state": "something_new", models.FieldTheirRole: "holder"}))
	// Missing state entirely.
	require.NoError(t, handle(t, l, map[string]any{models.FieldTheirRole: "holder"}))

	assert.Equal(t, []string{"unknown", "unknown"}, rec.calls)
}

func TestListener_ApprovalGateSkipsMiddlePhases(t *testing.T) {
	rec := &recorder{}
	l := newTestListener(RoleIssuer, Hooks{
		ApproveForProcessing: func(_ context.Context, _ tenant.Context, _ *models.Notification) (bool, error) {
			return false, nil
		},
		BeforeAll: rec.hook("before_all"),
		BeforeAny: rec.hook("before_any"),
		States: map[models.State]HookFunc{
			models.CredentialOfferSent: rec.hook("state"),
		},
		AfterAny: rec.hook("after_any"),
		AfterAll: rec.hook("after_all"),
	})

	err := handle(t, l, map[string]any{"state": "offer_sent", models.FieldTheirRole: "holder"})
	require.NoError(t, err)

	// The unconditional phases still observe the traffic.
	assert.Equal(t, []string{"before_all", "after_all"}, rec.calls)
}

func TestListener_HookErrorPropagatesAndStopsDispatch(t *testing.T) {
	rec := &recorder{}
	hookErr := errors.New("store unavailable")

	l := newTestListener(RoleIssuer, Hooks{
		BeforeAny: func(_ context.Context, _ tenant.Context, _ *models.Notification) error {
			return hookErr
		},
		States: map[models.State]HookFunc{
			models.CredentialOfferSent: rec.hook("state"),
		},
		AfterAll: rec.hook("after_all"),
	})

	err := handle(t, l, map[string]any{"state": "offer_sent", models.FieldTheirRole: "holder"})
	assert.ErrorIs(t, err, hookErr)
	assert.Empty(t, rec.calls)
}

func TestListener_RegisterSubscribesToItsTopic(t *testing.T) {
	rec := &recorder{}
	bus := eventbus.NewLocalBus(slog.Default())

	l := newTestListener(RoleIssuer, Hooks{
		States:       map[models.State]HookFunc{},
		UnknownState: rec.hook("unknown"),
	})

	require.NoError(t, l.Register(bus))

	err := bus.Publish(context.Background(), models.TopicCredentials, tenant.Context{TenantID: "tenant-1"},
		map[string]any{models.FieldTheirRole: "holder"})
	require.NoError(t, err)

	err = bus.Publish(context.Background(), models.TopicProofs, tenant.Context{TenantID: "tenant-1"},
		map[string]any{models.FieldTheirRole: "holder"})
	require.NoError(t, err)

	assert.Equal(t, []string{"unknown"}, rec.calls)
}
