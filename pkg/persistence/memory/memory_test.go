package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
)

func newSaga(t *testing.T, store *Persistence) *models.SagaRecord {
	t.Helper()

	record := &models.SagaRecord{
		Type:     models.SagaTypeConnection,
		State:    models.SagaStatePending,
		TenantID: "tenant-1",
		Token:    "token-1",
	}
	require.NoError(t, store.Sagas().Create(context.Background(), record))

	return record
}

func TestSagaRepository_CreateAssignsIDAndVersion(t *testing.T) {
	store := NewPersistence()
	record := newSaga(t, store)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, 1, record.Version)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestSagaRepository_SingleActiveInstancePerTenantAndType(t *testing.T) {
	store := NewPersistence()
	first := newSaga(t, store)

	err := store.Sagas().Create(context.Background(), &models.SagaRecord{
		Type:     models.SagaTypeConnection,
		State:    models.SagaStatePending,
		TenantID: "tenant-1",
	})
	assert.ErrorIs(t, err, persistence.ErrDuplicateSaga)

	// A different type or tenant is fine.
	err = store.Sagas().Create(context.Background(), &models.SagaRecord{
		Type:     models.SagaTypeOnboarding,
		State:    models.SagaStatePending,
		TenantID: "tenant-1",
	})
	require.NoError(t, err)

	// Once the first instance is terminal, a new one may start.
	first.State = models.SagaStateInProgress
	require.NoError(t, store.Sagas().Update(context.Background(), first))
	first.State = models.SagaStateCompleted
	require.NoError(t, store.Sagas().Update(context.Background(), first))

	err = store.Sagas().Create(context.Background(), &models.SagaRecord{
		Type:     models.SagaTypeConnection,
		State:    models.SagaStatePending,
		TenantID: "tenant-1",
	})
	assert.NoError(t, err)
}

func TestSagaRepository_UpdateDetectsStaleVersion(t *testing.T) {
	store := NewPersistence()
	record := newSaga(t, store)

	// Two workers load the same version.
	first, err := store.Sagas().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	second, err := store.Sagas().GetByID(context.Background(), record.ID)
	require.NoError(t, err)

	first.State = models.SagaStateInProgress
	require.NoError(t, store.Sagas().Update(context.Background(), first))

	second.State = models.SagaStateInProgress
	err = store.Sagas().Update(context.Background(), second)
	assert.True(t, persistence.IsStaleSagaRecord(err))
}

func TestSagaRepository_UpdateRejectsNonMonotonicTransition(t *testing.T) {
	store := NewPersistence()
	record := newSaga(t, store)

	record.State = models.SagaStateInProgress
	require.NoError(t, store.Sagas().Update(context.Background(), record))
	record.State = models.SagaStateCompleted
	require.NoError(t, store.Sagas().Update(context.Background(), record))

	record.State = models.SagaStatePending
	err := store.Sagas().Update(context.Background(), record)
	assert.ErrorIs(t, err, persistence.ErrInvalidTransition)
}

func TestSagaRepository_Correlations(t *testing.T) {
	store := NewPersistence()
	record := newSaga(t, store)

	require.NoError(t, store.Sagas().SaveCorrelation(context.Background(), "conn-1", record.ID))

	sagaID, err := store.Sagas().SagaIDByCorrelation(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, sagaID)

	_, err = store.Sagas().SagaIDByCorrelation(context.Background(), "conn-unknown")
	assert.True(t, persistence.IsSagaNotFound(err))
}

func TestSagaRepository_GetByIDReturnsCopy(t *testing.T) {
	store := NewPersistence()
	record := newSaga(t, store)

	loaded, err := store.Sagas().GetByID(context.Background(), record.ID)
	require.NoError(t, err)

	loaded.SetData("scratch", "value")

	fresh, err := store.Sagas().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.DataString("scratch"), "mutating a loaded record must not leak into the store")
}

func TestExchangeRepository_SetError(t *testing.T) {
	store := NewPersistence()

	record := &models.ExchangeRecord{
		TenantID:      "tenant-1",
		Kind:          models.ExchangeKindProof,
		CorrelationID: "pres-ex-1",
		State:         models.ProofRequestSent,
	}
	require.NoError(t, store.Exchanges().Create(context.Background(), record))
	assert.Equal(t, models.ExchangeStatusActive, record.Status)

	require.NoError(t, store.Exchanges().SetError(context.Background(), record.ID, "verifier unavailable"))

	stored, err := store.Exchanges().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeStatusError, stored.Status)
	assert.Equal(t, "verifier unavailable", stored.ErrorDetail)
	// The protocol state column is untouched by a status change.
	assert.Equal(t, models.ProofRequestSent, stored.State)
}

func TestExchangeRepository_GetByCorrelationScopesTenantAndKind(t *testing.T) {
	store := NewPersistence()

	record := &models.ExchangeRecord{
		TenantID:      "tenant-1",
		Kind:          models.ExchangeKindCredential,
		CorrelationID: "ex-1",
	}
	require.NoError(t, store.Exchanges().Create(context.Background(), record))

	_, err := store.Exchanges().GetByCorrelation(context.Background(), "tenant-2", models.ExchangeKindCredential, "ex-1")
	assert.True(t, persistence.IsExchangeNotFound(err))

	_, err = store.Exchanges().GetByCorrelation(context.Background(), "tenant-1", models.ExchangeKindProof, "ex-1")
	assert.True(t, persistence.IsExchangeNotFound(err))

	found, err := store.Exchanges().GetByCorrelation(context.Background(), "tenant-1", models.ExchangeKindCredential, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
}

func TestDeliveryLogRepository_ResolveRemovesRow(t *testing.T) {
	store := NewPersistence()

	entry := &models.DeliveryLogEntry{
		TenantID: "tenant-1",
		Topic:    models.TopicConnections,
		URL:      "https://example.test/hook",
		State:    models.DeliveryStateProcessing,
		Attempts: 1,
	}
	require.NoError(t, store.DeliveryLog().Create(context.Background(), entry))

	require.NoError(t, store.DeliveryLog().Resolve(context.Background(), entry.ID))
	assert.ErrorIs(t, store.DeliveryLog().Resolve(context.Background(), entry.ID), persistence.ErrDeliveryNotFound)
}

func TestWebhookConfigRepository_SaveUpsertsByURL(t *testing.T) {
	store := NewPersistence()

	config := &models.WebhookConfig{
		TenantID: "tenant-1",
		URL:      "https://example.test/hook",
		Secret:   "super-secret-value-1",
		Enabled:  true,
	}
	require.NoError(t, store.WebhookConfigs().Save(context.Background(), config))

	updated := &models.WebhookConfig{
		TenantID: "tenant-1",
		URL:      "https://example.test/hook",
		Secret:   "rotated-secret-value",
		Enabled:  true,
	}
	require.NoError(t, store.WebhookConfigs().Save(context.Background(), updated))

	configs, err := store.WebhookConfigs().ByTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "rotated-secret-value", configs[0].Secret)
}
