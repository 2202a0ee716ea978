// Package endorsement implements the ledger-write saga: submit a transaction
// request and wait for the endorser's acknowledgement.
package endorsement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/saga"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// Data keys in the saga progress blob.
const (
	dataTransaction   = "transaction"
	dataTransactionID = "transaction_id"
)

type Saga struct {
	sagas  persistence.SagaRepository
	bus    eventbus.Bus
	client agent.Client
	logger *slog.Logger
}

func NewSaga(sagas persistence.SagaRepository, bus eventbus.Bus, client agent.Client, logger *slog.Logger) *Saga {
	return &Saga{
		sagas:  sagas,
		bus:    bus,
		client: client,
		logger: logger.With("module", "endorsement_saga"),
	}
}

func (s *Saga) Type() models.SagaType {
	return models.SagaTypeEndorsement
}

func (s *Saga) RunStep(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	switch record.State {
	case models.SagaStatePending:
		return s.start(ctx, tn, record)
	case models.SagaStateInProgress:
		return s.advance(ctx, tn, record, notification)
	default:
		return nil
	}
}

func (s *Saga) start(ctx context.Context, tn tenant.Context, record *models.SagaRecord) error {
	payload, _ := record.Data[dataTransaction].(map[string]any)
	if payload == nil {
		return saga.Fail(ctx, s.sagas, s.bus, tn, record, "endorsement saga requested without a transaction payload")
	}

	result, err := s.client.SubmitTransaction(ctx, tn, payload)
	if err != nil {
		return fmt.Errorf("failed to submit transaction: %w", err)
	}

	record.SetData(dataTransactionID, result.TransactionID)

	err = s.sagas.SaveCorrelation(ctx, result.TransactionID, record.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Transaction submitted",
		"saga_id", record.ID,
		"transaction_id", result.TransactionID)

	return saga.Transition(ctx, s.sagas, record, models.SagaStateInProgress)
}

func (s *Saga) advance(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	if notification == nil || notification.Topic != models.TopicEndorsements {
		return nil
	}

	transactionID, _ := notification.Payload[models.FieldTransactionID].(string)
	if transactionID == "" || transactionID != record.DataString(dataTransactionID) {
		return nil
	}

	switch notification.State {
	case models.EndorsementTransactionAck:
		return saga.Complete(ctx, s.sagas, s.bus, tn, record)
	case models.EndorsementRefused:
		return saga.Fail(ctx, s.sagas, s.bus, tn, record, "transaction refused by endorser")
	default:
		return nil
	}
}
