package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/tessera-id/ariadne/pkg/cmd"
	"github.com/tessera-id/ariadne/pkg/log"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate stored webhook configurations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			validate := validator.New(validator.WithRequiredStructEnabled())
			logger := log.WithModule("ariadne-orchestrator").With("action", "validate")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			configs, err := store.WebhookConfigs().All(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch webhook configs: %w", err)
			}

			logger.InfoContext(ctx, "Validating webhook configs", "count", len(configs))

			invalid := 0

			for _, config := range configs {
				err = validate.Struct(config)
				if err != nil {
					invalid++

					logger.WarnContext(ctx, "Invalid webhook config",
						"tenant_id", config.TenantID,
						"url", config.URL,
						"error", err)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d invalid webhook config(s)", invalid)
			}

			logger.InfoContext(ctx, "All webhook configs valid")

			return nil
		},
	}
}
