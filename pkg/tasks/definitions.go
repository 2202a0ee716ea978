package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// Task names dispatched on the bus as "task.<name>".
const (
	TaskCreateInvitation = "create_invitation"
	TaskSendMessage      = "send_message"
)

// NewCreateInvitationTask builds the standalone invitation task: ask the
// agent for an invitation and create the exchange record the connections
// listener will keep current. Used for ad-hoc connections outside a saga.
func NewCreateInvitationTask(client agent.Client, exchanges persistence.ExchangeRepository, logger *slog.Logger) Definition {
	log := logger.With("module", "tasks", "task", TaskCreateInvitation)

	return Definition{
		Name: TaskCreateInvitation,
		Action: func(ctx context.Context, tn tenant.Context, payload map[string]any) error {
			alias, _ := payload["alias"].(string)

			result, err := client.CreateInvitation(ctx, tn, alias)
			if err != nil {
				return fmt.Errorf("failed to create invitation: %w", err)
			}

			record := &models.ExchangeRecord{
				TenantID:      tn.TenantID,
				Kind:          models.ExchangeKindConnection,
				CorrelationID: result.ConnectionID,
				State:         models.ConnectionInvitation,
				Status:        models.ExchangeStatusActive,
				Attributes: map[string]any{
					"alias":          alias,
					"invitation_url": result.InvitationURL,
				},
			}

			err = exchanges.Create(ctx, record)
			if err != nil {
				return fmt.Errorf("failed to create exchange record: %w", err)
			}

			log.InfoContext(ctx, "Invitation created",
				"exchange_id", record.ID,
				"connection_id", result.ConnectionID,
				"tenant_id", tn.TenantID)

			return nil
		},
	}
}

// NewSendMessageTask builds the basic-message task: deliver a message over an
// established connection. The exchange record named by the payload receives
// the error status when delivery fails.
func NewSendMessageTask(client agent.Client, exchanges persistence.ExchangeRepository) Definition {
	return Definition{
		Name: TaskSendMessage,
		Action: func(ctx context.Context, tn tenant.Context, payload map[string]any) error {
			exchangeID, _ := payload[models.FieldExchangeID].(string)

			record, err := exchanges.GetByID(ctx, exchangeID)
			if err != nil {
				return fmt.Errorf("failed to load exchange record: %w", err)
			}

			content, _ := payload["content"].(string)
			if content == "" {
				return fmt.Errorf("message content is empty")
			}

			err = client.SendMessage(ctx, tn, record.CorrelationID, content)
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}

			return nil
		},
	}
}
