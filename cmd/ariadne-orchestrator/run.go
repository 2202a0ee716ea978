package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/tessera-id/ariadne/pkg/log"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the orchestration service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "channel-provider",
				Usage:   "Notification channel provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("CHANNEL_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "notifications-topic",
				Usage:   "Channel topic carrying agent notifications",
				Value:   "agent.notifications",
				Sources: cli.EnvVars("NOTIFICATIONS_TOPIC"),
			},
			&cli.StringFlag{
				Name:    "http-addr",
				Usage:   "Listen address for the HTTP ingress server",
				Value:   ":8090",
				Sources: cli.EnvVars("HTTP_ADDR"),
			},
			&cli.StringFlag{
				Name:     "agent-url",
				Usage:    "Base URL of the admin agent",
				Required: true,
				Sources:  cli.EnvVars("AGENT_URL"),
			},
			&cli.StringFlag{
				Name:    "agent-admin-token",
				Usage:   "Admin token for tenant provisioning calls",
				Sources: cli.EnvVars("AGENT_ADMIN_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the shared tenant token cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "tenant-tokens",
				Usage:   "Seed tenant credentials as comma-separated tenant=token pairs",
				Sources: cli.EnvVars("TENANT_TOKENS"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("ariadne-orchestrator")

			logger.InfoContext(ctx, "Initializing orchestrator")

			orchestrator, err := NewOrchestrator(ctx, Config{
				DatabaseURL:        command.String("database-url"),
				ChannelProvider:    command.String("channel-provider"),
				KafkaBrokers:       command.String("kafka-brokers"),
				NotificationsTopic: command.String("notifications-topic"),
				HTTPAddr:           command.String("http-addr"),
				AgentURL:           command.String("agent-url"),
				AgentAdminToken:    command.String("agent-admin-token"),
				RedisURL:           command.String("redis-url"),
				TenantTokens:       parseTenantTokens(command.String("tenant-tokens")),
			}, logger)
			if err != nil {
				return err
			}

			return orchestrator.Start(ctx)
		},
	}
}
