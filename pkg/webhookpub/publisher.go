// Package webhookpub forwards domain events to tenant-registered webhook
// endpoints with a durability-first delivery log. The publisher never fails
// the event that triggered it: delivery problems are recorded as log rows,
// not propagated.
package webhookpub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/otelhelper"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// SecretHeader carries the endpoint's shared secret on every delivery.
const SecretHeader = "X-Ariadne-Secret"

const defaultTimeout = 15 * time.Second

type Publisher struct {
	configs persistence.WebhookConfigRepository
	log     persistence.DeliveryLogRepository
	client  *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewPublisher(
	configs persistence.WebhookConfigRepository,
	log persistence.DeliveryLogRepository,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Publisher {
	return &Publisher{
		configs: configs,
		log:     log,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("module", "webhook_publisher"),
		tracer:  tracer,
	}
}

// Topics the publisher forwards: the external protocol streams plus the
// workflow lifecycle events. Task dispatch topics stay internal.
const forwardedTopics = `connections$|credentials$|proofs$|endorsements$|basicmessages$|workflow\..*`

// Register subscribes the publisher on the bus. It is a terminal consumer:
// whatever happens during delivery, the bus caller sees success.
func (p *Publisher) Register(bus eventbus.Bus) error {
	return bus.Subscribe(forwardedTopics, p.Handle)
}

// Handle fans an event out to every enabled endpoint of the tenant. Failures
// are downgraded to log rows; a notification must never be re-driven because
// a tenant's endpoint is down.
func (p *Publisher) Handle(ctx context.Context, tn tenant.Context, topic models.Topic, payload map[string]any) error {
	configs, err := p.configs.ByTenant(ctx, tn.TenantID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to load webhook configs",
			"tenant_id", tn.TenantID, "error", err)

		return nil
	}

	for _, config := range configs {
		if !config.TopicEnabled(topic) {
			continue
		}

		p.deliver(ctx, tn, config, topic, payload)
	}

	return nil
}

// deliver runs one delivery attempt with its full accounting: the log row is
// written in processing state before the POST so a crash mid-flight leaves
// evidence, then resolved on success or moved to error with a queued
// retry-state sibling on failure.
func (p *Publisher) deliver(ctx context.Context, tn tenant.Context, config *models.WebhookConfig, topic models.Topic, payload map[string]any) {
	entry := &models.DeliveryLogEntry{
		TenantID: tn.TenantID,
		Topic:    topic,
		Payload:  payload,
		URL:      config.URL,
		Secret:   config.Secret,
		State:    models.DeliveryStateProcessing,
		Attempts: 1,
	}

	err := p.log.Create(ctx, entry)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to create delivery log entry",
			"tenant_id", tn.TenantID, "url", config.URL, "error", err)

		return
	}

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "webhook.deliver",
		attribute.String(otelhelper.DeliveryIDKey, entry.ID),
		attribute.String(otelhelper.DeliveryURLKey, config.URL),
		attribute.String(otelhelper.TopicKey, string(topic)),
		attribute.String(otelhelper.TenantIDKey, tn.TenantID))
	defer span.End()

	status, err := p.post(ctx, entry)
	entry.HTTPStatus = status

	if err == nil {
		resolveErr := p.log.Resolve(ctx, entry.ID)
		if resolveErr != nil {
			p.logger.ErrorContext(ctx, "Failed to resolve delivery log entry",
				"delivery_id", entry.ID, "error", resolveErr)
		}

		p.logger.InfoContext(ctx, "Webhook delivered",
			"delivery_id", entry.ID, "url", config.URL, "topic", topic)

		return
	}

	otelhelper.SetError(span, err)
	p.logger.WarnContext(ctx, "Webhook delivery failed",
		"delivery_id", entry.ID, "url", config.URL, "topic", topic,
		"http_status", status, "error", err)

	entry.State = models.DeliveryStateError
	entry.Detail = err.Error()

	updateErr := p.log.Update(ctx, entry)
	if updateErr != nil {
		p.logger.ErrorContext(ctx, "Failed to record delivery failure",
			"delivery_id", entry.ID, "error", updateErr)
	}

	// Queue a retry-state sibling for the external sweep to pick up.
	retry := &models.DeliveryLogEntry{
		TenantID: entry.TenantID,
		Topic:    entry.Topic,
		Payload:  entry.Payload,
		URL:      entry.URL,
		Secret:   entry.Secret,
		State:    models.DeliveryStateRetry,
		Attempts: entry.Attempts + 1,
	}

	createErr := p.log.Create(ctx, retry)
	if createErr != nil {
		p.logger.ErrorContext(ctx, "Failed to queue delivery retry",
			"delivery_id", entry.ID, "error", createErr)
	}
}

func (p *Publisher) post(ctx context.Context, entry *models.DeliveryLogEntry) (int, error) {
	body := map[string]any{
		"topic":     string(entry.Topic),
		"tenant_id": entry.TenantID,
		"payload":   entry.Payload,
		"sent_at":   time.Now().UTC().Format(time.RFC3339),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.URL, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, entry.Secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %s", resp.Status)
	}

	return resp.StatusCode, nil
}
