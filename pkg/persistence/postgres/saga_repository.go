package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
)

// SagaRepository handles saga-record database operations.
type SagaRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *SagaRepository) Create(ctx context.Context, record *models.SagaRecord) error {
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

	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal saga data: %w", err)
	}

	query := `
		INSERT INTO sagas (id, saga_type, state, tenant_id, token, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.Type, record.State, record.TenantID,
		record.Token, dataJSON, record.Version, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		// 23505 is unique_violation: the partial index on non-terminal
		// instances rejects a second active saga per (tenant, type).
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewSagaError("Create", record.ID, persistence.ErrDuplicateSaga)
		}

		return fmt.Errorf("failed to insert saga: %w", err)
	}

	return nil
}

func (r *SagaRepository) GetByID(ctx context.Context, id string) (*models.SagaRecord, error) {
	query := `
		SELECT
			id
		  , saga_type
		  , state
		  , tenant_id
		  , token
		  , data
		  , version
		  , created_at
		  , updated_at
		FROM sagas
		WHERE id = $1
	`

	record, err := r.scanSaga(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSagaError("GetByID", id, persistence.ErrSagaNotFound)
		}

		return nil, fmt.Errorf("failed to scan saga: %w", err)
	}

	return record, nil
}

func (r *SagaRepository) Update(ctx context.Context, record *models.SagaRecord) error {
	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal saga data: %w", err)
	}

	record.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sagas
		SET state = $1, token = $2, data = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		record.State, record.Token, dataJSON, record.UpdatedAt, record.ID, record.Version)
	if err != nil {
		return fmt.Errorf("failed to update saga: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		// Either the row is gone or another delivery won the version race.
		_, getErr := r.GetByID(ctx, record.ID)
		if getErr != nil {
			return persistence.NewSagaError("Update", record.ID, persistence.ErrSagaNotFound)
		}

		return persistence.NewSagaError("Update", record.ID, persistence.ErrStaleSagaRecord)
	}

	record.Version++

	return nil
}

func (r *SagaRepository) ActiveByTenantAndType(ctx context.Context, tenantID string, sagaType models.SagaType) (*models.SagaRecord, error) {
	query := `
		SELECT
			id
		  , saga_type
		  , state
		  , tenant_id
		  , token
		  , data
		  , version
		  , created_at
		  , updated_at
		FROM sagas
		WHERE tenant_id = $1 AND saga_type = $2 AND state IN ('pending', 'in_progress')
	`

	record, err := r.scanSaga(r.db.QueryRowContext(ctx, query, tenantID, sagaType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSagaError("ActiveByTenantAndType", "", persistence.ErrSagaNotFound)
		}

		return nil, fmt.Errorf("failed to scan saga: %w", err)
	}

	return record, nil
}

func (r *SagaRepository) SaveCorrelation(ctx context.Context, correlationKey, sagaID string) error {
	query := `
		INSERT INTO saga_correlations (correlation_key, saga_id)
		VALUES ($1, $2)
		ON CONFLICT (correlation_key) DO UPDATE SET saga_id = EXCLUDED.saga_id
	`

	_, err := r.db.ExecContext(ctx, query, correlationKey, sagaID)
	if err != nil {
		return fmt.Errorf("failed to save saga correlation: %w", err)
	}

	return nil
}

func (r *SagaRepository) SagaIDByCorrelation(ctx context.Context, correlationKey string) (string, error) {
	var sagaID string

	err := r.db.QueryRowContext(ctx,
		"SELECT saga_id FROM saga_correlations WHERE correlation_key = $1", correlationKey).Scan(&sagaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", persistence.NewSagaError("SagaIDByCorrelation", "", persistence.ErrSagaNotFound)
		}

		return "", fmt.Errorf("failed to query saga correlation: %w", err)
	}

	return sagaID, nil
}

func (r *SagaRepository) scanSaga(row *sql.Row) (*models.SagaRecord, error) {
	var (
		record   models.SagaRecord
		dataJSON []byte
	)

	err := row.Scan(
		&record.ID, &record.Type, &record.State, &record.TenantID,
		&record.Token, &dataJSON, &record.Version, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		err = json.Unmarshal(dataJSON, &record.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal saga data: %w", err)
		}
	}

	return &record, nil
}
