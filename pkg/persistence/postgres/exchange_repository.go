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

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
)

// ExchangeRepository handles exchange-record database operations.
type ExchangeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const exchangeColumns = `
	id
  , tenant_id
  , kind
  , correlation_id
  , state
  , status
  , error_detail
  , attributes
  , created_at
  , updated_at
`

func (r *ExchangeRepository) Create(ctx context.Context, record *models.ExchangeRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate exchange ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.Status == "" {
		record.Status = models.ExchangeStatusActive
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	attributesJSON, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange attributes: %w", err)
	}

	query := `
		INSERT INTO exchanges (id, tenant_id, kind, correlation_id, state, status, error_detail, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.TenantID, record.Kind, record.CorrelationID,
		record.State, record.Status, record.ErrorDetail, attributesJSON,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return nil
}

func (r *ExchangeRepository) GetByID(ctx context.Context, id string) (*models.ExchangeRecord, error) {
	query := "SELECT " + exchangeColumns + " FROM exchanges WHERE id = $1"

	record, err := r.scanExchange(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExchangeError{Op: "GetByID", ExchangeID: id, Err: persistence.ErrExchangeNotFound}
		}

		return nil, fmt.Errorf("failed to scan exchange: %w", err)
	}

	return record, nil
}

func (r *ExchangeRepository) GetByCorrelation(ctx context.Context, tenantID string, kind models.ExchangeKind, correlationID string) (*models.ExchangeRecord, error) {
	query := "SELECT " + exchangeColumns + ` FROM exchanges
		WHERE tenant_id = $1 AND kind = $2 AND correlation_id = $3`

	record, err := r.scanExchange(r.db.QueryRowContext(ctx, query, tenantID, kind, correlationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExchangeError{Op: "GetByCorrelation", ExchangeID: correlationID, Err: persistence.ErrExchangeNotFound}
		}

		return nil, fmt.Errorf("failed to scan exchange: %w", err)
	}

	return record, nil
}

func (r *ExchangeRepository) Update(ctx context.Context, record *models.ExchangeRecord) error {
	record.UpdatedAt = time.Now().UTC()

	attributesJSON, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange attributes: %w", err)
	}

	query := `
		UPDATE exchanges
		SET state = $1, status = $2, error_detail = $3, attributes = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		record.State, record.Status, record.ErrorDetail, attributesJSON, record.UpdatedAt, record.ID)
	if err != nil {
		return fmt.Errorf("failed to update exchange: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return &persistence.ExchangeError{Op: "Update", ExchangeID: record.ID, Err: persistence.ErrExchangeNotFound}
	}

	return nil
}

func (r *ExchangeRepository) SetError(ctx context.Context, id, detail string) error {
	query := `
		UPDATE exchanges
		SET status = $1, error_detail = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.ExchangeStatusError, detail, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set exchange error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return &persistence.ExchangeError{Op: "SetError", ExchangeID: id, Err: persistence.ErrExchangeNotFound}
	}

	return nil
}

func (r *ExchangeRepository) scanExchange(row *sql.Row) (*models.ExchangeRecord, error) {
	var (
		record         models.ExchangeRecord
		attributesJSON []byte
	)

	err := row.Scan(
		&record.ID, &record.TenantID, &record.Kind, &record.CorrelationID,
		&record.State, &record.Status, &record.ErrorDetail, &attributesJSON,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(attributesJSON) > 0 {
		err = json.Unmarshal(attributesJSON, &record.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal exchange attributes: %w", err)
		}
	}

	return &record, nil
}
