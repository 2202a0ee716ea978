// Package connection implements the peer-connection establishment saga:
// create an invitation through the admin agent, then wait for the connection
// to become active.
package connection

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
	dataAlias         = "alias"
	dataConnectionID  = "connection_id"
	dataInvitationURL = "invitation_url"
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
		logger: logger.With("module", "connection_saga"),
	}
}

func (s *Saga) Type() models.SagaType {
	return models.SagaTypeConnection
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

// start performs the first outbound action and persists the correlation id
// the agent assigned before the state transition, so a crash in between
// still leaves the notification route in place.
func (s *Saga) start(ctx context.Context, tn tenant.Context, record *models.SagaRecord) error {
	result, err := s.client.CreateInvitation(ctx, tn, record.DataString(dataAlias))
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	record.SetData(dataConnectionID, result.ConnectionID)
	record.SetData(dataInvitationURL, result.InvitationURL)

	err = s.sagas.SaveCorrelation(ctx, result.ConnectionID, record.ID)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Invitation created",
		"saga_id", record.ID,
		"connection_id", result.ConnectionID)

	return saga.Transition(ctx, s.sagas, record, models.SagaStateInProgress)
}

func (s *Saga) advance(ctx context.Context, tn tenant.Context, record *models.SagaRecord, notification *models.Notification) error {
	if notification == nil || notification.Topic != models.TopicConnections {
		return nil
	}

	connectionID, _ := notification.Payload[models.FieldConnectionID].(string)
	if connectionID == "" || connectionID != record.DataString(dataConnectionID) {
		return nil
	}

	switch notification.State {
	case models.ConnectionActive, models.ConnectionCompleted:
		s.logger.InfoContext(ctx, "Connection active", "saga_id", record.ID, "connection_id", connectionID)

		return saga.Complete(ctx, s.sagas, s.bus, tn, record)
	case models.ConnectionError, models.ConnectionAbandoned:
		return saga.Fail(ctx, s.sagas, s.bus, tn, record, "connection "+string(notification.State))
	default:
		// Intermediate protocol state, nothing awaited yet.
		return nil
	}
}
