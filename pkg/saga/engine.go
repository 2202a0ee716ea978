// Package saga drives persisted multi-step processes whose steps are
// separated by waits on external asynchronous completion. A saga record is
// advanced by correlated notifications; the engine holds no in-memory state
// across suspension points and re-loads authoritative state from the store on
// every resumption.
package saga

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/otelhelper"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// StepHandler implements the step logic for one saga type. RunStep must be
// idempotent: the same notification may be delivered more than once, so every
// state-changing action is gated on the currently persisted state, never on
// notification identity. A stale or out-of-order notification becomes a no-op.
type StepHandler interface {
	Type() models.SagaType

	// RunStep advances the record. A nil notification means the saga was
	// just requested and should perform its first outbound action.
	RunStep(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error
}

// Engine dispatches saga records to their step handlers through a closed
// type-to-handler table built at startup. No runtime type-name lookup.
type Engine struct {
	sagas    persistence.SagaRepository
	tokens   tenant.TokenProvider
	handlers map[models.SagaType]StepHandler
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewEngine(
	sagas persistence.SagaRepository,
	tokens tenant.TokenProvider,
	logger *slog.Logger,
	tracer trace.Tracer,
	handlers ...StepHandler,
) (*Engine, error) {
	table := make(map[models.SagaType]StepHandler, len(handlers))

	for _, handler := range handlers {
		if _, exists := table[handler.Type()]; exists {
			return nil, fmt.Errorf("duplicate step handler for saga type %q", handler.Type())
		}

		table[handler.Type()] = handler
	}

	return &Engine{
		sagas:    sagas,
		tokens:   tokens,
		handlers: table,
		logger:   logger.With("module", "saga_engine"),
		tracer:   tracer,
	}, nil
}

// Handles reports whether a step handler is registered for the saga type.
func (e *Engine) Handles(sagaType models.SagaType) bool {
	_, ok := e.handlers[sagaType]

	return ok
}

// Begin creates a pending saga record for the tenant, capturing the tenant's
// resumable credential so later steps can run as the owner regardless of the
// inbound context they resume from. At most one non-terminal instance may
// exist per (tenant, saga type); a second request fails with
// persistence.ErrDuplicateSaga.
func (e *Engine) Begin(ctx context.Context, tenantID string, sagaType models.SagaType, data map[string]any) (*models.SagaRecord, error) {
	token, err := e.tokens.Token(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant credential: %w", err)
	}

	record := &models.SagaRecord{
		Type:     sagaType,
		State:    models.SagaStatePending,
		TenantID: tenantID,
		Token:    token,
		Data:     data,
	}

	err = e.sagas.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Saga created",
		"saga_id", record.ID,
		"saga_type", sagaType,
		"tenant_id", tenantID)

	return record, nil
}

// NextStep loads the record and invokes its step handler under the owning
// tenant's context - not the caller's, since steps routinely resume from a
// notification belonging to a different inbound context. Terminal records
// are a no-op. Handler errors are not swallowed: they propagate to the bus
// caller so the upstream sender's retry mechanism re-delivers the
// notification. Partial progress is never lost because handlers persist
// after each completed sub-step.
func (e *Engine) NextStep(ctx context.Context, sagaID string, notification *models.Notification) error {
	record, err := e.sagas.GetByID(ctx, sagaID)
	if err != nil {
		return err
	}

	logger := e.logger.With(
		"saga_id", record.ID,
		"saga_type", record.Type,
		"saga_state", record.State,
		"tenant_id", record.TenantID)

	if record.State.Terminal() {
		logger.DebugContext(ctx, "Saga already terminal, ignoring")

		return nil
	}

	handler, ok := e.handlers[record.Type]
	if !ok {
		return fmt.Errorf("no step handler registered for saga type %q", record.Type)
	}

	owner := tenant.Context{TenantID: record.TenantID, Token: record.Token}
	if owner.Token == "" {
		owner, err = tenant.Resolve(ctx, e.tokens, record.TenantID)
		if err != nil {
			return fmt.Errorf("failed to resolve owning tenant credential: %w", err)
		}
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "saga.run_step",
		attribute.String(otelhelper.SagaIDKey, record.ID),
		attribute.String(otelhelper.SagaTypeKey, string(record.Type)),
		attribute.String(otelhelper.SagaStateKey, string(record.State)),
		attribute.String(otelhelper.TenantIDKey, record.TenantID))
	defer span.End()

	logger.InfoContext(ctx, "Running saga step")

	err = handler.RunStep(ctx, owner, record, notification)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("saga %s step failed: %w", record.ID, err)
	}

	return nil
}

// FindSagaID resolves which in-flight instance, if any, awaits the
// notification via the correlation-key secondary index. Absence of a match
// is not an error: most notifications belong to no saga.
func (e *Engine) FindSagaID(ctx context.Context, notification *models.Notification) (string, error) {
	key, ok := notification.CorrelationKey()
	if !ok {
		return "", nil
	}

	sagaID, err := e.sagas.SagaIDByCorrelation(ctx, key)
	if err != nil {
		if persistence.IsSagaNotFound(err) {
			return "", nil
		}

		return "", err
	}

	return sagaID, nil
}

// HandleNotification is the bus handler wiring notifications into the
// engine. Register it with a pattern covering the external protocol topics.
func (e *Engine) HandleNotification(ctx context.Context, tn tenant.Context, topic models.Topic, payload map[string]any) error {
	notification := &models.Notification{
		Topic:    topic,
		TenantID: tn.TenantID,
		Payload:  payload,
	}

	if state, ok := payload["state"].(string); ok {
		notification.State = models.State(state)
	}

	sagaID, err := e.FindSagaID(ctx, notification)
	if err != nil {
		return err
	}

	if sagaID == "" {
		return nil
	}

	return e.NextStep(ctx, sagaID, notification)
}
