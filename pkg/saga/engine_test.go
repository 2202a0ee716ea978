package saga

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/persistence/memory"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

type stubHandler struct {
	sagaType models.SagaType
	runs     int
	lastTn   tenant.Context
	err      error
}

func (h *stubHandler) Type() models.SagaType { return h.sagaType }

func (h *stubHandler) RunStep(_ context.Context, tn tenant.Context, _ *models.SagaRecord, _ *models.Notification) error {
	h.runs++
	h.lastTn = tn

	return h.err
}

func newTestEngine(t *testing.T, store *memory.Persistence, handlers ...StepHandler) *Engine {
	t.Helper()

	tokens := tenant.NewStaticTokenProvider(map[string]string{"tenant-1": "token-1"})

	engine, err := NewEngine(store.Sagas(), tokens, slog.Default(), noop.NewTracerProvider().Tracer("test"), handlers...)
	require.NoError(t, err)

	return engine
}

func TestNewEngine_RejectsDuplicateHandlers(t *testing.T) {
	store := memory.NewPersistence()

	_, err := NewEngine(
		store.Sagas(),
		tenant.NewStaticTokenProvider(nil),
		slog.Default(),
		noop.NewTracerProvider().Tracer("test"),
		&stubHandler{sagaType: models.SagaTypeConnection},
		&stubHandler{sagaType: models.SagaTypeConnection},
	)
	assert.Error(t, err)
}

func TestEngine_BeginCreatesPendingRecordWithToken(t *testing.T) {
	store := memory.NewPersistence()
	engine := newTestEngine(t, store, &stubHandler{sagaType: models.SagaTypeConnection})

	record, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, map[string]any{"alias": "acme"})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.SagaStatePending, record.State)
	assert.Equal(t, "token-1", record.Token)

	stored, err := store.Sagas().GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", stored.DataString("alias"))
}

func TestEngine_BeginRejectsSecondActiveInstance(t *testing.T) {
	store := memory.NewPersistence()
	engine := newTestEngine(t, store, &stubHandler{sagaType: models.SagaTypeConnection})

	_, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	require.NoError(t, err)

	_, err = engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	assert.ErrorIs(t, err, persistence.ErrDuplicateSaga)
}

func TestEngine_BeginFailsForUnknownTenant(t *testing.T) {
	store := memory.NewPersistence()
	engine := newTestEngine(t, store, &stubHandler{sagaType: models.SagaTypeConnection})

	_, err := engine.Begin(context.Background(), "tenant-unknown", models.SagaTypeConnection, nil)
	assert.Error(t, err)
}

func TestEngine_NextStepRunsHandlerAsOwningTenant(t *testing.T) {
	store := memory.NewPersistence()
	handler := &stubHandler{sagaType: models.SagaTypeConnection}
	engine := newTestEngine(t, store, handler)

	record, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	require.NoError(t, err)

	// The caller's context names a different tenant; the step must still run
	// as the saga's owner.
	err = engine.NextStep(context.Background(), record.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, handler.runs)
	assert.Equal(t, "tenant-1", handler.lastTn.TenantID)
	assert.Equal(t, "token-1", handler.lastTn.Token)
}

func TestEngine_NextStepIgnoresTerminalRecords(t *testing.T) {
	store := memory.NewPersistence()
	handler := &stubHandler{sagaType: models.SagaTypeConnection}
	engine := newTestEngine(t, store, handler)

	record, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	require.NoError(t, err)

	record.State = models.SagaStateInProgress
	require.NoError(t, store.Sagas().Update(context.Background(), record))
	record.State = models.SagaStateCompleted
	require.NoError(t, store.Sagas().Update(context.Background(), record))

	err = engine.NextStep(context.Background(), record.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, handler.runs)
}

func TestEngine_NextStepPropagatesHandlerErrors(t *testing.T) {
	store := memory.NewPersistence()
	stepErr := errors.New("agent unavailable")
	handler := &stubHandler{sagaType: models.SagaTypeConnection, err: stepErr}
	engine := newTestEngine(t, store, handler)

	record, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	require.NoError(t, err)

	err = engine.NextStep(context.Background(), record.ID, nil)
	assert.ErrorIs(t, err, stepErr)
}

func TestEngine_NextStepUnknownSagaFails(t *testing.T) {
	store := memory.NewPersistence()
	engine := newTestEngine(t, store, &stubHandler{sagaType: models.SagaTypeConnection})

	err := engine.NextStep(context.Background(), "missing", nil)
	assert.True(t, persistence.IsSagaNotFound(err))
}

func TestEngine_FindSagaID(t *testing.T) {
	store := memory.NewPersistence()
	engine := newTestEngine(t, store, &stubHandler{sagaType: models.SagaTypeConnection})

	record, err := engine.Begin(context.Background(), "tenant-1", models.SagaTypeConnection, nil)
	require.NoError(t, err)

	require.NoError(t, store.Sagas().SaveCorrelation(context.Background(), "conn-1", record.ID))

	sagaID, err := engine.FindSagaID(context.Background(), &models.Notification{
		Topic:   models.TopicConnections,
		Payload: map[string]any{models.FieldConnectionID: "conn-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, record.ID, sagaID)

	// Unmatched correlations and missing keys are not errors.
	sagaID, err = engine.FindSagaID(context.Background(), &models.Notification{
		Topic:   models.TopicConnections,
		Payload: map[string]any{models.FieldConnectionID: "conn-other"},
	})
	require.NoError(t, err)
	assert.Empty(t, sagaID)

	sagaID, err = engine.FindSagaID(context.Background(), &models.Notification{
		Topic:   models.TopicConnections,
		Payload: map[string]any{},
	})
	require.NoError(t, err)
	assert.Empty(t, sagaID)
}
