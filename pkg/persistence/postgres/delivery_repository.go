package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
)

// DeliveryLogRepository handles webhook delivery-log database operations.
type DeliveryLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *DeliveryLogRepository) Create(ctx context.Context, entry *models.DeliveryLogEntry) error {
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

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery payload: %w", err)
	}

	query := `
		INSERT INTO delivery_log (id, tenant_id, topic, payload, url, secret, state, attempts, http_status, detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.Topic, payloadJSON, entry.URL, entry.Secret,
		entry.State, entry.Attempts, entry.HTTPStatus, entry.Detail, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert delivery log entry: %w", err)
	}

	return nil
}

func (r *DeliveryLogRepository) Update(ctx context.Context, entry *models.DeliveryLogEntry) error {
	entry.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE delivery_log
		SET state = $1, attempts = $2, http_status = $3, detail = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.State, entry.Attempts, entry.HTTPStatus, entry.Detail, entry.UpdatedAt, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery log entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrDeliveryNotFound
	}

	return nil
}

func (r *DeliveryLogRepository) Resolve(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM delivery_log WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to resolve delivery log entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrDeliveryNotFound
	}

	return nil
}

func (r *DeliveryLogRepository) PendingRetries(ctx context.Context, tenantID string) ([]*models.DeliveryLogEntry, error) {
	query := `
		SELECT
			id
		  , tenant_id
		  , topic
		  , payload
		  , url
		  , secret
		  , state
		  , attempts
		  , http_status
		  , detail
		  , created_at
		  , updated_at
		FROM delivery_log
		WHERE tenant_id = $1 AND state = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, models.DeliveryStateRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery log: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.DeliveryLogEntry, 0)

	for rows.Next() {
		var (
			entry       models.DeliveryLogEntry
			payloadJSON []byte
		)

		err = rows.Scan(
			&entry.ID, &entry.TenantID, &entry.Topic, &payloadJSON, &entry.URL, &entry.Secret,
			&entry.State, &entry.Attempts, &entry.HTTPStatus, &entry.Detail, &entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery log entry: %w", err)
		}

		if len(payloadJSON) > 0 {
			err = json.Unmarshal(payloadJSON, &entry.Payload)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal delivery payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating delivery log: %w", err)
	}

	return entries, nil
}
