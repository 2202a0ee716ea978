// Package persistence provides the storage abstraction for saga records,
// exchange records, the webhook delivery log and tenant webhook configs.
package persistence

import (
	"context"

	"github.com/tessera-id/ariadne/pkg/models"
)

// SagaRepository stores saga records and the correlation-key secondary index
// the engine uses to route notifications to in-flight instances.
type SagaRepository interface {
	Create(ctx context.Context, record *models.SagaRecord) error

	GetByID(ctx context.Context, id string) (*models.SagaRecord, error)

	// Update persists a record guarded by optimistic versioning: the write
	// succeeds only when the stored version matches record.Version, and
	// bumps the version on success. A mismatch returns ErrStaleSagaRecord.
	Update(ctx context.Context, record *models.SagaRecord) error

	// ActiveByTenantAndType returns the single non-terminal instance for
	// the pair, or ErrSagaNotFound.
	ActiveByTenantAndType(ctx context.Context, tenantID string, sagaType models.SagaType) (*models.SagaRecord, error)

	SaveCorrelation(ctx context.Context, correlationKey, sagaID string) error

	// SagaIDByCorrelation resolves a notification's correlation key to the
	// instance awaiting it. Absence is reported as ErrSagaNotFound; most
	// notifications belong to no saga.
	SagaIDByCorrelation(ctx context.Context, correlationKey string) (string, error)
}

// ExchangeRepository stores task-target records.
type ExchangeRepository interface {
	Create(ctx context.Context, record *models.ExchangeRecord) error
	GetByID(ctx context.Context, id string) (*models.ExchangeRecord, error)
	GetByCorrelation(ctx context.Context, tenantID string, kind models.ExchangeKind, correlationID string) (*models.ExchangeRecord, error)
	Update(ctx context.Context, record *models.ExchangeRecord) error

	// SetError writes the {status: error, errorDetail} pair onto a record
	// in one atomic row update. Used by the task failure boundary.
	SetError(ctx context.Context, id, detail string) error
}

// DeliveryLogRepository stores webhook delivery-log rows.
type DeliveryLogRepository interface {
	Create(ctx context.Context, entry *models.DeliveryLogEntry) error
	Update(ctx context.Context, entry *models.DeliveryLogEntry) error

	// Resolve removes a row after a successful delivery.
	Resolve(ctx context.Context, id string) error

	// PendingRetries lists retry-state rows for a tenant. This core never
	// re-drives them; the sweep is an external collaborator.
	PendingRetries(ctx context.Context, tenantID string) ([]*models.DeliveryLogEntry, error)
}

// WebhookConfigRepository stores tenant-registered delivery endpoints.
type WebhookConfigRepository interface {
	Save(ctx context.Context, config *models.WebhookConfig) error
	ByTenant(ctx context.Context, tenantID string) ([]*models.WebhookConfig, error)
	All(ctx context.Context) ([]*models.WebhookConfig, error)
}

type Persistence interface {
	Sagas() SagaRepository
	Exchanges() ExchangeRepository
	DeliveryLog() DeliveryLogRepository
	WebhookConfigs() WebhookConfigRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
