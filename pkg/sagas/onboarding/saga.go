// Package onboarding implements the tenant onboarding saga: provision a
// subwallet, establish the endorser connection, then register the tenant DID
// through an endorsed ledger write.
package onboarding

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

// Data keys in the saga progress blob. The phase marker records which
// awaited sub-step the saga is suspended on; state stays in_progress across
// both waits.
const (
	dataLabel         = "label"
	dataWalletID      = "wallet_id"
	dataConnectionID  = "connection_id"
	dataTransactionID = "transaction_id"
	dataPhase         = "phase"

	phaseAwaitingConnection  = "awaiting_connection"
	phaseAwaitingEndorsement = "awaiting_endorsement"
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
		logger: logger.With("module", "onboarding_saga"),
	}
}

func (s *Saga) Type() models.SagaType {
	return models.SagaTypeOnboarding
}

func (s *Saga) RunStep(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	switch record.State {
	case models.SagaStatePending:
		return s.start(ctx, tn, record)
	case models.SagaStateInProgress:
		switch record.DataString(dataPhase) {
		case phaseAwaitingConnection:
			return s.onConnection(ctx, tn, record, notification)
		case phaseAwaitingEndorsement:
			return s.onEndorsement(ctx, tn, record, notification)
		default:
			return nil
		}
	default:
		return nil
	}
}

func (s *Saga) start(ctx context.Context, tn tenant.Context, record *models.SagaRecord) error {
	wallet, err := s.client.ProvisionWallet(ctx, record.DataString(dataLabel))
	if err != nil {
		return fmt.Errorf("failed to provision wallet: %w", err)
	}

	record.SetData(dataWalletID, wallet.WalletID)

	invitation, err := s.client.CreateInvitation(ctx, tn, "endorser")
	if err != nil {
		return fmt.Errorf("failed to create endorser invitation: %w", err)
	}

	record.SetData(dataConnectionID, invitation.ConnectionID)
	record.SetData(dataPhase, phaseAwaitingConnection)

	err = s.sagas.SaveCorrelation(ctx, invitation.ConnectionID, record.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Tenant wallet provisioned, awaiting endorser connection",
		"saga_id", record.ID,
		"wallet_id", wallet.WalletID,
		"connection_id", invitation.ConnectionID)

	return saga.Transition(ctx, s.sagas, record, models.SagaStateInProgress)
}

func (s *Saga) onConnection(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	if notification == nil || notification.Topic != models.TopicConnections {
		return nil
	}

	connectionID, _ := notification.Payload[models.FieldConnectionID].(string)
	if connectionID == "" || connectionID != record.DataString(dataConnectionID) {
		return nil
	}

	switch notification.State {
	case models.ConnectionActive, models.ConnectionCompleted:
	case models.ConnectionError, models.ConnectionAbandoned:
		return saga.Fail(ctx, s.sagas, s.bus, tn, record, "endorser connection "+string(notification.State))
	default:
		return nil
	}

	transaction, err := s.client.RegisterDID(ctx, tn)
	if err != nil {
		return fmt.Errorf("failed to register DID: %w", err)
	}

	record.SetData(dataTransactionID, transaction.TransactionID)
	record.SetData(dataPhase, phaseAwaitingEndorsement)

	err = s.sagas.SaveCorrelation(ctx, transaction.TransactionID, record.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "DID registration submitted, awaiting endorsement",
		"saga_id", record.ID,
		"transaction_id", transaction.TransactionID)

	// Remains in_progress; only the progress blob changed.
	return saga.Transition(ctx, s.sagas, record, models.SagaStateInProgress)
}

func (s *Saga) onEndorsement(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	if notification == nil || notification.Topic != models.TopicEndorsements {
		return nil
	}

	transactionID, _ := notification.Payload[models.FieldTransactionID].(string)
	if transactionID == "" || transactionID != record.DataString(dataTransactionID) {
		return nil
	}

	switch notification.State {
	case models.EndorsementTransactionAck:
		s.logger.InfoContext(ctx, "Tenant onboarding completed", "saga_id", record.ID)

		return saga.Complete(ctx, s.sagas, s.bus, tn, record)
	case models.EndorsementRefused:
		return saga.Fail(ctx, s.sagas, s.bus, tn, record, "DID registration refused by endorser")
	default:
		return nil
	}
}
