package credentials

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-id/ariadne/pkg/listener"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence/memory"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

func handle(t *testing.T, l *listener.Listener, payload map[string]any) error {
	t.Helper()

	return l.Handle(context.Background(), tenant.Context{TenantID: "tenant-1"}, models.TopicCredentials, payload)
}

func TestHolderListener_AdoptsUnseenOffer(t *testing.T) {
	store := memory.NewPersistence()
	l := NewHolder(store.Exchanges(), slog.Default(), noop.NewTracerProvider().Tracer("test"))

	err := handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "issuer",
		"state":                "offer_received",
	})
	require.NoError(t, err)

	record, err := store.Exchanges().GetByCorrelation(context.Background(), "tenant-1", models.ExchangeKindCredential, "cred-ex-1")
	require.NoError(t, err)
	assert.Equal(t, models.CredentialOfferReceived, record.State)
	assert.Equal(t, models.ExchangeStatusActive, record.Status)
}

func TestHolderListener_IgnoresUnseenNonOfferStates(t *testing.T) {
	store := memory.NewPersistence()
	l := NewHolder(store.Exchanges(), slog.Default(), noop.NewTracerProvider().Tracer("test"))

	err := handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "issuer",
		"state":                "credential_issued",
	})
	require.NoError(t, err)

	_, err = store.Exchanges().GetByCorrelation(context.Background(), "tenant-1", models.ExchangeKindCredential, "cred-ex-1")
	assert.Error(t, err)
}

func TestIssuerListener_ProcessesOnlyKnownExchanges(t *testing.T) {
	store := memory.NewPersistence()
	l := NewIssuer(store.Exchanges(), slog.Default(), noop.NewTracerProvider().Tracer("test"))

	// Unknown exchange: declined, nothing created.
	err := handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "holder",
		"state":                "request_received",
	})
	require.NoError(t, err)

	_, err = store.Exchanges().GetByCorrelation(context.Background(), "tenant-1", models.ExchangeKindCredential, "cred-ex-1")
	require.Error(t, err)

	// Known exchange: the state column follows the notification.
	record := &models.ExchangeRecord{
		TenantID:      "tenant-1",
		Kind:          models.ExchangeKindCredential,
		CorrelationID: "cred-ex-1",
		State:         models.CredentialOfferSent,
	}
	require.NoError(t, store.Exchanges().Create(context.Background(), record))

	err = handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "holder",
		"state":                "request_received",
	})
	require.NoError(t, err)

	updated, err := store.Exchanges().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialRequestReceived, updated.State)
}

func TestIssuerListener_SkipsHolderSideNotifications(t *testing.T) {
	store := memory.NewPersistence()
	l := NewIssuer(store.Exchanges(), slog.Default(), noop.NewTracerProvider().Tracer("test"))

	record := &models.ExchangeRecord{
		TenantID:      "tenant-1",
		Kind:          models.ExchangeKindCredential,
		CorrelationID: "cred-ex-1",
		State:         models.CredentialOfferSent,
	}
	require.NoError(t, store.Exchanges().Create(context.Background(), record))

	// The remote party is an issuer, so this tenant is the holder here; the
	// issuer-side listener must not touch the record.
	err := handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "issuer",
		"state":                "offer_received",
	})
	require.NoError(t, err)

	stored, err := store.Exchanges().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialOfferSent, stored.State)
}

func TestListener_AbandonedMarksExchangeError(t *testing.T) {
	store := memory.NewPersistence()
	l := NewIssuer(store.Exchanges(), slog.Default(), noop.NewTracerProvider().Tracer("test"))

	record := &models.ExchangeRecord{
		TenantID:      "tenant-1",
		Kind:          models.ExchangeKindCredential,
		CorrelationID: "cred-ex-1",
		State:         models.CredentialOfferSent,
	}
	require.NoError(t, store.Exchanges().Create(context.Background(), record))

	err := handle(t, l, map[string]any{
		models.FieldExchangeID: "cred-ex-1",
		models.FieldTheirRole:  "holder",
		"state":                "abandoned",
		"error_msg":            "holder declined the offer",
	})
	require.NoError(t, err)

	stored, err := store.Exchanges().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeStatusError, stored.Status)
	assert.Equal(t, "holder declined the offer", stored.ErrorDetail)
}
