// Package memory provides an in-memory persistence implementation for tests
// and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
)

// Persistence keeps all records in process memory. Safe for concurrent use.
type Persistence struct {
	sagas       *SagaRepository
	exchanges   *ExchangeRepository
	deliveryLog *DeliveryLogRepository
	configs     *WebhookConfigRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		sagas: &SagaRepository{
			records:      make(map[string]*models.SagaRecord),
			correlations: make(map[string]string),
		},
		exchanges: &ExchangeRepository{
			records: make(map[string]*models.ExchangeRecord),
		},
		deliveryLog: &DeliveryLogRepository{
			entries: make(map[string]*models.DeliveryLogEntry),
		},
		configs: &WebhookConfigRepository{
			configs: make(map[string][]*models.WebhookConfig),
		},
	}
}

func (p *Persistence) Sagas() persistence.SagaRepository { return p.sagas }

func (p *Persistence) Exchanges() persistence.ExchangeRepository { return p.exchanges }

func (p *Persistence) DeliveryLog() persistence.DeliveryLogRepository { return p.deliveryLog }

func (p *Persistence) WebhookConfigs() persistence.WebhookConfigRepository { return p.configs }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// SagaRepository implements persistence.SagaRepository in memory.
type SagaRepository struct {
	mu           sync.RWMutex
	records      map[string]*models.SagaRecord
	correlations map[string]string
}

func (r *SagaRepository) Create(_ context.Context, record *models.SagaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records {
		if existing.TenantID == record.TenantID && existing.Type == record.Type && !existing.State.Terminal() {
			return persistence.NewSagaError("Create", record.ID, persistence.ErrDuplicateSaga)
		}
	}

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate saga ID: %w", err)
		}

		record.ID = id.String()
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1

	r.records[record.ID] = cloneSaga(record)

	return nil
}

func (r *SagaRepository) GetByID(_ context.Context, id string) (*models.SagaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, persistence.NewSagaError("GetByID", id, persistence.ErrSagaNotFound)
	}

	return cloneSaga(record), nil
}

func (r *SagaRepository) Update(_ context.Context, record *models.SagaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[record.ID]
	if !ok {
		return persistence.NewSagaError("Update", record.ID, persistence.ErrSagaNotFound)
	}

	if stored.Version != record.Version {
		return persistence.NewSagaError("Update", record.ID, persistence.ErrStaleSagaRecord)
	}

	if stored.State != record.State && !stored.State.CanTransition(record.State) {
		return persistence.NewSagaError("Update", record.ID, persistence.ErrInvalidTransition)
	}

	record.Version++
	record.UpdatedAt = time.Now().UTC()
	r.records[record.ID] = cloneSaga(record)

	return nil
}

func (r *SagaRepository) ActiveByTenantAndType(_ context.Context, tenantID string, sagaType models.SagaType) (*models.SagaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.TenantID == tenantID && record.Type == sagaType && !record.State.Terminal() {
			return cloneSaga(record), nil
		}
	}

	return nil, persistence.NewSagaError("ActiveByTenantAndType", "", persistence.ErrSagaNotFound)
}

func (r *SagaRepository) SaveCorrelation(_ context.Context, correlationKey, sagaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.correlations[correlationKey] = sagaID

	return nil
}

func (r *SagaRepository) SagaIDByCorrelation(_ context.Context, correlationKey string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sagaID, ok := r.correlations[correlationKey]
	if !ok {
		return "", persistence.NewSagaError("SagaIDByCorrelation", "", persistence.ErrSagaNotFound)
	}

	return sagaID, nil
}

func cloneSaga(record *models.SagaRecord) *models.SagaRecord {
	clone := *record

	if record.Data != nil {
		clone.Data = make(map[string]any, len(record.Data))
		for k, v := range record.Data {
			clone.Data[k] = v
		}
	}

	return &clone
}

// ExchangeRepository implements persistence.ExchangeRepository in memory.
type ExchangeRepository struct {
	mu      sync.RWMutex
	records map[string]*models.ExchangeRecord
}

func (r *ExchangeRepository) Create(_ context.Context, record *models.ExchangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate exchange ID: %w", err)
		}

		record.ID = id.String()
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	if record.Status == "" {
		record.Status = models.ExchangeStatusActive
	}

	r.records[record.ID] = cloneExchange(record)

	return nil
}

func (r *ExchangeRepository) GetByID(_ context.Context, id string) (*models.ExchangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, &persistence.ExchangeError{Op: "GetByID", ExchangeID: id, Err: persistence.ErrExchangeNotFound}
	}

	return cloneExchange(record), nil
}

func (r *ExchangeRepository) GetByCorrelation(_ context.Context, tenantID string, kind models.ExchangeKind, correlationID string) (*models.ExchangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.TenantID == tenantID && record.Kind == kind && record.CorrelationID == correlationID {
			return cloneExchange(record), nil
		}
	}

	return nil, &persistence.ExchangeError{Op: "GetByCorrelation", ExchangeID: correlationID, Err: persistence.ErrExchangeNotFound}
}

func (r *ExchangeRepository) Update(_ context.Context, record *models.ExchangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; !ok {
		return &persistence.ExchangeError{Op: "Update", ExchangeID: record.ID, Err: persistence.ErrExchangeNotFound}
	}

	record.UpdatedAt = time.Now().UTC()
	r.records[record.ID] = cloneExchange(record)

	return nil
}

func (r *ExchangeRepository) SetError(_ context.Context, id, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return &persistence.ExchangeError{Op: "SetError", ExchangeID: id, Err: persistence.ErrExchangeNotFound}
	}

	record.Status = models.ExchangeStatusError
	record.ErrorDetail = detail
	record.UpdatedAt = time.Now().UTC()

	return nil
}

func cloneExchange(record *models.ExchangeRecord) *models.ExchangeRecord {
	clone := *record

	if record.Attributes != nil {
		clone.Attributes = make(map[string]any, len(record.Attributes))
		for k, v := range record.Attributes {
			clone.Attributes[k] = v
		}
	}

	return &clone
}

// DeliveryLogRepository implements persistence.DeliveryLogRepository in memory.
type DeliveryLogRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.DeliveryLogEntry
}

func (r *DeliveryLogRepository) Create(_ context.Context, entry *models.DeliveryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate delivery log ID: %w", err)
		}

		entry.ID = id.String()
	}

	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	r.entries[entry.ID] = cloneEntry(entry)

	return nil
}

func (r *DeliveryLogRepository) Update(_ context.Context, entry *models.DeliveryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.ID]; !ok {
		return persistence.ErrDeliveryNotFound
	}

	entry.UpdatedAt = time.Now().UTC()
	r.entries[entry.ID] = cloneEntry(entry)

	return nil
}

func (r *DeliveryLogRepository) Resolve(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return persistence.ErrDeliveryNotFound
	}

	delete(r.entries, id)

	return nil
}

func (r *DeliveryLogRepository) PendingRetries(_ context.Context, tenantID string) ([]*models.DeliveryLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	retries := make([]*models.DeliveryLogEntry, 0)

	for _, entry := range r.entries {
		if entry.TenantID == tenantID && entry.State == models.DeliveryStateRetry {
			retries = append(retries, cloneEntry(entry))
		}
	}

	return retries, nil
}

// Entries returns every stored row. Test helper.
func (r *DeliveryLogRepository) Entries() []*models.DeliveryLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.DeliveryLogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		all = append(all, cloneEntry(entry))
	}

	return all
}

func cloneEntry(entry *models.DeliveryLogEntry) *models.DeliveryLogEntry {
	clone := *entry

	if entry.Payload != nil {
		clone.Payload = make(map[string]any, len(entry.Payload))
		for k, v := range entry.Payload {
			clone.Payload[k] = v
		}
	}

	return &clone
}

// WebhookConfigRepository implements persistence.WebhookConfigRepository in memory.
type WebhookConfigRepository struct {
	mu      sync.RWMutex
	configs map[string][]*models.WebhookConfig
}

func (r *WebhookConfigRepository) Save(_ context.Context, config *models.WebhookConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.configs[config.TenantID]
	for i, c := range existing {
		if c.URL == config.URL {
			existing[i] = config

			return nil
		}
	}

	r.configs[config.TenantID] = append(existing, config)

	return nil
}

func (r *WebhookConfigRepository) ByTenant(_ context.Context, tenantID string) ([]*models.WebhookConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*models.WebhookConfig(nil), r.configs[tenantID]...), nil
}

func (r *WebhookConfigRepository) All(_ context.Context) ([]*models.WebhookConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.WebhookConfig, 0)
	for _, configs := range r.configs {
		all = append(all, configs...)
	}

	return all, nil
}
