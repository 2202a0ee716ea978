// Package proofs keeps presentation exchange records current from inbound
// proof notifications, for both sides of the exchange.
package proofs

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

// NewVerifier builds the verifier-side proof listener. The request task
// creates the exchange record, so only known exchanges are processed.
func NewVerifier(exchanges persistence.ExchangeRepository, logger *slog.Logger, tracer trace.Tracer) *listener.Listener {
	h := &handler{
		exchanges: exchanges,
		logger:    logger.With("module", "proofs_listener", "role", listener.RoleVerifier),
	}

	return listener.New("proofs-verifier", models.TopicProofs, listener.RoleVerifier,
		h.hooks(h.approveKnown), logger, tracer)
}

// NewProver builds the prover-side proof listener. A presentation request for
// an unseen exchange is started by the remote verifier, so approval creates
// the record on first sight.
func NewProver(exchanges persistence.ExchangeRepository, logger *slog.Logger, tracer trace.Tracer) *listener.Listener {
	h := &handler{
		exchanges: exchanges,
		logger:    logger.With("module", "proofs_listener", "role", listener.RoleProver),
	}

	return listener.New("proofs-prover", models.TopicProofs, listener.RoleProver,
		h.hooks(h.approveOrAdopt), logger, tracer)
}

func (h *handler) hooks(approve func(context.Context, tenant.Context, *models.Notification) (bool, error)) listener.Hooks {
	return listener.Hooks{
		ApproveForProcessing: approve,
		BeforeAny:            h.recordState,
		States: map[models.State]listener.HookFunc{
			models.ProofProposalSent:         h.noop,
			models.ProofProposalReceived:     h.noop,
			models.ProofRequestSent:          h.noop,
			models.ProofRequestReceived:      h.noop,
			models.ProofPresentationSent:     h.noop,
			models.ProofPresentationReceived: h.noop,
			models.ProofVerified:             h.verified,
			models.ProofDone:                 h.noop,
			models.ProofAbandoned:            h.failed,
		},
		UnknownState: h.unknown,
	}
}

func (h *handler) load(ctx context.Context, tn tenant.Context, notification *models.Notification) (*models.ExchangeRecord, error) {
	key, ok := notification.CorrelationKey()
	if !ok {
		return nil, persistence.ErrExchangeNotFound
	}

	return h.exchanges.GetByCorrelation(ctx, tn.TenantID, models.ExchangeKindProof, key)
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

func (h *handler) approveOrAdopt(ctx context.Context, tn tenant.Context, notification *models.Notification) (bool, error) {
	_, err := h.load(ctx, tn, notification)
	if err == nil {
		return true, nil
	}

	if !persistence.IsExchangeNotFound(err) {
		return false, err
	}

	if notification.State != models.ProofRequestReceived {
		return false, nil
	}

	key, ok := notification.CorrelationKey()
	if !ok {
		return false, nil
	}

	record := &models.ExchangeRecord{
		TenantID:      tn.TenantID,
		Kind:          models.ExchangeKindProof,
		CorrelationID: key,
		State:         notification.State,
		Status:        models.ExchangeStatusActive,
	}

	err = h.exchanges.Create(ctx, record)
	if err != nil {
		return false, err
	}

	h.logger.InfoContext(ctx, "Adopted inbound presentation request",
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

// verified records the verification outcome the agent reported alongside the
// state, which is what tenants query after the exchange settles.
func (h *handler) verified(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	record, err := h.load(ctx, tn, notification)
	if err != nil {
		return err
	}

	if record.Attributes == nil {
		record.Attributes = make(map[string]any)
	}

	if outcome, ok := notification.Payload["verified"].(string); ok {
		record.Attributes["verified"] = outcome
	}

	h.logger.InfoContext(ctx, "Presentation verified",
		"exchange_id", record.ID,
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
		detail = "presentation exchange abandoned"
	}

	return h.exchanges.SetError(ctx, record.ID, detail)
}

func (h *handler) noop(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	return nil
}

func (h *handler) unknown(ctx context.Context, tn tenant.Context, notification *models.Notification) error {
	h.logger.WarnContext(ctx, "Unknown proof state",
		"state", notification.State,
		"tenant_id", tn.TenantID)

	return nil
}
