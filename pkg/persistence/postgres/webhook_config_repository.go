package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tessera-id/ariadne/pkg/models"
)

// WebhookConfigRepository handles tenant webhook endpoint configuration.
type WebhookConfigRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *WebhookConfigRepository) Save(ctx context.Context, config *models.WebhookConfig) error {
	topicsJSON, err := json.Marshal(config.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook topics: %w", err)
	}

	query := `
		INSERT INTO webhook_configs (tenant_id, url, secret, topics, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, url) DO UPDATE
		SET secret = EXCLUDED.secret, topics = EXCLUDED.topics, enabled = EXCLUDED.enabled
	`

	_, err = r.db.ExecContext(ctx, query,
		config.TenantID, config.URL, config.Secret, topicsJSON, config.Enabled)
	if err != nil {
		return fmt.Errorf("failed to save webhook config: %w", err)
	}

	return nil
}

// ByTenant returns the tenant's endpoints. A tenant with none registered
// gets an empty list, not an error.
func (r *WebhookConfigRepository) ByTenant(ctx context.Context, tenantID string) ([]*models.WebhookConfig, error) {
	return r.query(ctx,
		"SELECT tenant_id, url, secret, topics, enabled FROM webhook_configs WHERE tenant_id = $1", tenantID)
}

func (r *WebhookConfigRepository) All(ctx context.Context) ([]*models.WebhookConfig, error) {
	return r.query(ctx, "SELECT tenant_id, url, secret, topics, enabled FROM webhook_configs")
}

func (r *WebhookConfigRepository) query(ctx context.Context, query string, args ...any) ([]*models.WebhookConfig, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook configs: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	configs := make([]*models.WebhookConfig, 0)

	for rows.Next() {
		var (
			config     models.WebhookConfig
			topicsJSON []byte
		)

		err = rows.Scan(&config.TenantID, &config.URL, &config.Secret, &topicsJSON, &config.Enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %w", err)
		}

		if len(topicsJSON) > 0 {
			err = json.Unmarshal(topicsJSON, &config.Topics)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal webhook topics: %w", err)
			}
		}

		configs = append(configs, &config)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating webhook configs: %w", err)
	}

	return configs, nil
}
