// Package credentials keeps credential exchange records current from inbound
// credential notifications, for both sides of the exchange.
package credentials

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

// NewIssuer builds the issuer-side credential listener. The offer task
// creates the exchange record, so only known exchanges are processed.
func NewIssuer(exchanges persistence.ExchangeRepository, logger *slog.Logger, tracer trace.Tracer) *listener.Listener {
	h := &handler{
		exchanges: exchanges,
		logger:    logger.With("module", "credentials_listener", "role", listener.RoleIssuer),
	}

	return listener.New("credentials-issuer", models.TopicCredentials, listener.RoleIssuer,
		h.hooks(h.approveKnown), logger, tracer)
}

// NewHolder builds the holder-side credential listener. An offer for an
// exchange never seen before is legitimate here: the remote issuer started
// it, so approval creates the record on first sight.
func NewHolder(exchanges persistence.ExchangeRepository, logger *slog.Logger, tracer trace.Tracer) *listener.Listener {
	h := &handler{
		exchanges: exchanges,
		logger:    logger.With("module", "credentials_listener", "role", listener.RoleHolder),
	}

	return listener.New("credentials-holder", models.TopicCredentials, listener.RoleHolder,
		h.hooks(h.approveOrAdopt), logger, tracer)
}

func (h *handler) hooks(approve func(context.Context, tenant.Context, *models.Notification) (bool, error)) listener.Hooks {
	return listener.Hooks{
		ApproveForProcessing: approve,
		BeforeAny:            h.recordState,
		States: map[models.State]listener.HookFunc{
			models.CredentialOfferSent:       h.noop,
			models.CredentialOfferReceived:   h.noop,
			models.CredentialRequestSent:     h.noop,
			models.CredentialRequestReceived: h.noop,
			models.CredentialIssued:          h.noop,
			models.CredentialAcked:           h.settled,
			models.CredentialDone:            h.settled,
			models.CredentialAbandoned:       h.failed,
		},
		UnknownState: h.unknown,
	}
}

func (h *handler) load(ctx context.Context, tn tenant.Context, notification *models.Notification) (*models.ExchangeRecord, error) {
	key, ok := notification.CorrelationKey()
	if !ok {
		return nil, persistence.ErrExchangeNotFound
	}

	return h.exchanges.GetByCorrelation(ctx, tn.TenantID, models.ExchangeKindCredential, key)
}

func (h *handler) approveKnown(ctx context.Context, tn tenant.Context, notification *models.Notification) (bool, error) {
	_, err := h.load(ctx, tn, notification)
	if err != nil {
		if persistence.IsExchangeNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// approveOrAdopt approves known exchanges, and additionally adopts an unseen
// exchange when the notification is an inbound offer. Repeated delivery of
// the same offer finds the record created the first time and takes the known
// path, so adoption is idempotent.
func (h *handler) approveOrAdopt(ctx context.Context, tn tenant.Context, notification *models.Notification) (bool, error) {
	_, err := h.load(ctx, tn, notification)
	if err == nil {
		return true, nil
	}

	if !persistence.IsExchangeNotFound(err) {
		return false, err
	}

	if notification.State != models.CredentialOfferReceived {
		return false, nil
	}

	key, ok := notification.CorrelationKey()
	if !ok {
		return false, nil
	}

	record := &models.ExchangeRecord{
		TenantID:      tn.TenantID,
		Kind:          models.ExchangeKindCredential,
		CorrelationID: key,
		State:         notification.State,
		Status:        models.ExchangeStatusActive,
	}

	err = h.exchanges.Create(ctx, record)
	if err != nil {
		return false, err
	}

	h.logger.InfoContext(ctx, "Adopted inbound credential offer",
		"exchange_id", record.ID,
		"correlation_id", key,
		"tenant_id", tn.TenantID)

	return true, nil
}

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

func (h *handler) settled(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "Credential exchange settled",
		"exchange_id", record.ID,
		"state", notification.State,
		"tenant_id", tn.TenantID)

	return nil
}

func (h *handler) failed(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	detail, _ := notification.Payload["error_msg"].(string)
	if detail == "" {
		detail = "credential exchange abandoned"
	}

	return h.exchanges.SetError(ctx, record.ID, detail)
}

func (h *handler) noop(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	return nil
}

func (h *handler) unknown(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	h.logger.WarnContext(ctx, "Unknown credential state",
		"state", notification.State,
		"tenant_id", tn.TenantID)

	return nil
}
