package endorsement

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/mocks"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence/memory"
	"github.com/tessera-id/ariadne/pkg/saga"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

type fixture struct {
	store  *memory.Persistence
	bus    *eventbus.LocalBus
	client *mocks.MockAgentClient
	engine *saga.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	bus := eventbus.NewLocalBus(slog.Default())
	client := &mocks.MockAgentClient{}
	tokens := tenant.NewStaticTokenProvider(map[string]string{"tenant-1": "token-1"})

	engine, err := saga.NewEngine(store.Sagas(), tokens, slog.Default(),
		noop.NewTracerProvider().Tracer("test"),
		NewSaga(store.Sagas(), bus, client, slog.Default()))
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe("endorsements$", engine.HandleNotification))

	return &fixture{store: store, bus: bus, client: client, engine: engine}
}

func TestEndorsementSaga_SubmitsTransactionAndWaits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.On("SubmitTransaction", mock.Anything, mock.Anything, map[string]any{"operation": "nym"}).
		Return(&agent.TransactionResult{TransactionID: "txn-1"}, nil)

	record, err := f.engine.Begin(ctx, "tenant-1", models.SagaTypeEndorsement, map[string]any{
		"transaction": map[string]any{"operation": "nym"},
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.NextStep(ctx, record.ID, nil))

	stored, err := f.store.Sagas().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateInProgress, stored.State)
	assert.Equal(t, "txn-1", stored.DataString("transaction_id"))

	sagaID, err := f.store.Sagas().SagaIDByCorrelation(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, sagaID)

	f.client.AssertExpectations(t)
}

func TestEndorsementSaga_CompletesOnAckedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.On("SubmitTransaction", mock.Anything, mock.Anything, mock.Anything).
		Return(&agent.TransactionResult{TransactionID: "txn-1"}, nil)

	record, err := f.engine.Begin(ctx, "tenant-1", models.SagaTypeEndorsement, map[string]any{
		"transaction": map[string]any{"operation": "nym"},
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.NextStep(ctx, record.ID, nil))

	err = f.bus.Publish(ctx, models.TopicEndorsements, tenant.Context{TenantID: "tenant-1"}, map[string]any{
		models.FieldTransactionID: "txn-1",
		"state":                   "transaction_acked",
	})
	require.NoError(t, err)

	stored, err := f.store.Sagas().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateCompleted, stored.State)
}

func TestEndorsementSaga_RefusedTransactionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.On("SubmitTransaction", mock.Anything, mock.Anything, mock.Anything).
		Return(&agent.TransactionResult{TransactionID: "txn-1"}, nil)

	record, err := f.engine.Begin(ctx, "tenant-1", models.SagaTypeEndorsement, map[string]any{
		"transaction": map[string]any{"operation": "nym"},
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.NextStep(ctx, record.ID, nil))

	err = f.bus.Publish(ctx, models.TopicEndorsements, tenant.Context{TenantID: "tenant-1"}, map[string]any{
		models.FieldTransactionID: "txn-1",
		"state":                   "transaction_refused",
	})
	require.NoError(t, err)

	stored, err := f.store.Sagas().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateError, stored.State)
	assert.Equal(t, "transaction refused by endorser", stored.DataString("error_detail"))
}

func TestEndorsementSaga_MissingTransactionPayloadFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.engine.Begin(ctx, "tenant-1", models.SagaTypeEndorsement, nil)
	require.NoError(t, err)
	require.NoError(t, f.engine.NextStep(ctx, record.ID, nil))

	stored, err := f.store.Sagas().GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateError, stored.State)
	assert.Equal(t, "endorsement saga requested without a transaction payload", stored.DataString("error_detail"))

	f.client.AssertNotCalled(t, "SubmitTransaction", mock.Anything, mock.Anything, mock.Anything)
}
