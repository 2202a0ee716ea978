package saga

import (
	"context"
	"fmt"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// Transition persists a monotonic state change. Persisting after each
// completed sub-step, rather than only at the end, is what makes partial
// progress survive a crash between steps.
func Transition(ctx context.Context, sagas persistence.SagaRepository, record *models.SagaRecord, next models.SagaState) error {
	if record.State != next && !record.State.CanTransition(next) {
		return persistence.NewSagaError("Transition", record.ID, persistence.ErrInvalidTransition)
	}

	record.State = next

	err := sagas.Update(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to persist saga transition to %s: %w", next, err)
	}

	return nil
}

// Complete moves the record to its completed terminal state and emits the
// workflow-completed notification for downstream consumers (webhook
// delivery, status queries).
func Complete(ctx context.Context, sagas persistence.SagaRepository, bus eventbus.Bus, tn tenant.Context, record *models.SagaRecord) error {
	err := Transition(ctx, sagas, record, models.SagaStateCompleted)
	if err != nil {
		return err
	}

	return bus.Publish(ctx, models.TopicWorkflowCompleted, tn, map[string]any{
		"saga_id":   record.ID,
		"saga_type": string(record.Type),
		"tenant_id": record.TenantID,
		"data":      record.Data,
	})
}

// Fail moves the record to its error terminal state, recording the cause in
// the progress blob, and emits the workflow-failed notification.
func Fail(ctx context.Context, sagas persistence.SagaRepository, bus eventbus.Bus, tn tenant.Context, record *models.SagaRecord, cause string) error {
	record.SetData("error_detail", cause)

	err := Transition(ctx, sagas, record, models.SagaStateError)
	if err != nil {
		return err
	}

	return bus.Publish(ctx, models.TopicWorkflowFailed, tn, map[string]any{
		"saga_id":   record.ID,
		"saga_type": string(record.Type),
		"tenant_id": record.TenantID,
		"error":     cause,
	})
}
