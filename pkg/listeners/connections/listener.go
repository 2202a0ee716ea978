// Package connections keeps peer-connection exchange records current from
// inbound connection notifications.
package connections

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-id/ariadne/pkg/listener"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

type handler struct {
	exchanges persistence.ExchangeRepository
	logger    *slog.Logger
}

// New builds the inviter-side connection listener. The invitation task
// creates the exchange record, so only notifications for a known connection
// are processed here.
func New(exchanges persistence.ExchangeRepository, logger *slog.Logger, tracer trace.Tracer) *listener.Listener {
	h := &handler{
		exchanges: exchanges,
		logger:    logger.With("module", "connections_listener"),
	}

	return listener.New("connections", models.TopicConnections, listener.RoleInviter, listener.Hooks{
		ApproveForProcessing: h.approve,
		BeforeAny:            h.recordState,
		States: map[models.State]listener.HookFunc{
			models.ConnectionRequest:   h.noop,
			models.ConnectionResponse:  h.noop,
			models.ConnectionActive:    h.activated,
			models.ConnectionCompleted: h.activated,
			models.ConnectionError:     h.failed,
			models.ConnectionAbandoned: h.failed,
		},
		UnknownState: h.unknown,
	}, logger, tracer)
}

func (h *handler) load(ctx context.Context, tn tenant.Context, notification *models.Notification) (*models.ExchangeRecord, error) {
	connectionID, _ := notification.Payload[models.FieldConnectionID].(string)
	if connectionID == "" {
		return nil, persistence.ErrExchangeNotFound
	}

	return h.exchanges.GetByCorrelation(ctx, tn.TenantID, models.ExchangeKindConnection, connectionID)
}

func (h *handler) approve(ctx context.Context, tn tenant.Context, notification *models.Notification) (bool, error) {
	_, err := h.load(ctx, tn, notification)
	if err != nil {
		if persistence.IsExchangeNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// recordState keeps the denormalized state column current before any
// state-specific handling runs, so queries see the latest protocol state even
// for states with no dedicated hook.
func (h *handler) recordState(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	if record.State == notification.State {
		return nil
	}

	record.State = notification.State

	return h.exchanges.Update(ctx, record)
}

func (h *handler) activated(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	if label, ok := notification.Payload["their_label"].(string); ok && label != "" {
		if record.Attributes == nil {
			record.Attributes = make(map[string]any)
		}

		record.Attributes["their_label"] = label
	}

	h.logger.InfoContext(ctx, "Connection active",
		"exchange_id", record.ID,
		"connection_id", record.CorrelationID,
		"tenant_id", tn.TenantID)

	return h.exchanges.Update(ctx, record)
}

func (h *handler) failed(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	detail, _ := notification.Payload["error_msg"].(string)
	if detail == "" {
		detail = "connection " + string(notification.State)
	}

	return h.exchanges.SetError(ctx, record.ID, detail)
}

func (h *handler) noop(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	return nil
}

func (h *handler) unknown(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	h.logger.WarnContext(ctx, "Unknown connection state",
		"state", notification.State,
		"tenant_id", tn.TenantID)

	return nil
}
