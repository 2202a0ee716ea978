// Package postgres provides the PostgreSQL persistence implementation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres database/sql driver.
	_ "github.com/lib/pq"

	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	sagaRepo     *SagaRepository
	exchangeRepo *ExchangeRepository
	deliveryRepo *DeliveryLogRepository
	configRepo   *WebhookConfigRepository
}

// NewPersistence opens the database, runs migrations and wires repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		sagaRepo:     &SagaRepository{db: database, logger: logger},
		exchangeRepo: &ExchangeRepository{db: database, logger: logger},
		deliveryRepo: &DeliveryLogRepository{db: database, logger: logger},
		configRepo:   &WebhookConfigRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) Sagas() persistence.SagaRepository { return p.sagaRepo }

func (p *Persistence) Exchanges() persistence.ExchangeRepository { return p.exchangeRepo }

func (p *Persistence) DeliveryLog() persistence.DeliveryLogRepository { return p.deliveryRepo }

func (p *Persistence) WebhookConfigs() persistence.WebhookConfigRepository { return p.configRepo }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
