package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/cmd"
	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/ingress"
	"github.com/tessera-id/ariadne/pkg/listeners/connections"
	"github.com/tessera-id/ariadne/pkg/listeners/credentials"
	"github.com/tessera-id/ariadne/pkg/listeners/proofs"
	"github.com/tessera-id/ariadne/pkg/otelhelper"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/saga"
	"github.com/tessera-id/ariadne/pkg/sagas/connection"
	"github.com/tessera-id/ariadne/pkg/sagas/endorsement"
	"github.com/tessera-id/ariadne/pkg/sagas/onboarding"
	"github.com/tessera-id/ariadne/pkg/tasks"
	"github.com/tessera-id/ariadne/pkg/webhookpub"
)

const serviceName = "ariadne-orchestrator"

// protocolTopics routes every external notification topic that can carry a
// saga correlation into the engine.
const protocolTopics = "connections$|credentials$|proofs$|endorsements$"

// Config carries the run command's resolved flags.
type Config struct {
	DatabaseURL        string
	ChannelProvider    string
	KafkaBrokers       string
	NotificationsTopic string
	HTTPAddr           string
	AgentURL           string
	AgentAdminToken    string
	RedisURL           string
	TenantTokens       map[string]string
}

// Orchestrator owns the wired service graph of one process.
type Orchestrator struct {
	store  persistence.Persistence
	bus    *eventbus.LocalBus
	bridge *ingress.Bridge
	server *ingress.Server
	addr   string
	logger *slog.Logger
}

func NewOrchestrator(ctx context.Context, config Config, logger *slog.Logger) (*Orchestrator, error) {
	store, err := cmd.NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	tokens, err := cmd.NewTokenProvider(config.RedisURL, config.TenantTokens)
	if err != nil {
		return nil, err
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewLocalBus(logger)
	client := agent.NewHTTPClient(config.AgentURL, config.AgentAdminToken, logger)

	engine, err := saga.NewEngine(store.Sagas(), tokens, logger, tracer,
		connection.NewSaga(store.Sagas(), bus, client, logger),
		onboarding.NewSaga(store.Sagas(), bus, client, logger),
		endorsement.NewSaga(store.Sagas(), bus, client, logger),
	)
	if err != nil {
		return nil, err
	}

	err = bus.Subscribe(protocolTopics, engine.HandleNotification)
	if err != nil {
		return nil, err
	}

	listeners := []interface{ Register(eventbus.Bus) error }{
		connections.New(store.Exchanges(), logger, tracer),
		credentials.NewIssuer(store.Exchanges(), logger, tracer),
		credentials.NewHolder(store.Exchanges(), logger, tracer),
		proofs.NewVerifier(store.Exchanges(), logger, tracer),
		proofs.NewProver(store.Exchanges(), logger, tracer),
	}

	for _, l := range listeners {
		err = l.Register(bus)
		if err != nil {
			return nil, err
		}
	}

	publisher := webhookpub.NewPublisher(store.WebhookConfigs(), store.DeliveryLog(), logger, tracer)

	err = publisher.Register(bus)
	if err != nil {
		return nil, err
	}

	taskManager := tasks.NewManager(bus, tokens, store.Exchanges(), logger)

	for _, def := range []tasks.Definition{
		tasks.NewCreateInvitationTask(client, store.Exchanges(), logger),
		tasks.NewSendMessageTask(client, store.Exchanges()),
	} {
		err = taskManager.Register(def)
		if err != nil {
			return nil, err
		}
	}

	subscriber, err := cmd.NewSubscriber(config.ChannelProvider, config.KafkaBrokers, serviceName, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:  store,
		bus:    bus,
		bridge: ingress.NewBridge(subscriber, bus, config.NotificationsTopic, logger),
		server: ingress.NewServer(bus, store.WebhookConfigs(), engine, logger),
		addr:   config.HTTPAddr,
		logger: logger,
	}, nil
}

// Start runs the ingress adapters until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	err := o.bridge.Start(ctx)
	if err != nil {
		return err
	}

	errs := make(chan error, 1)

	go func() {
		errs <- o.server.Start(o.addr)
	}()

	o.logger.InfoContext(ctx, "Orchestrator started", "addr", o.addr)

	select {
	case <-ctx.Done():
	case err = <-errs:
		return err
	}

	shutdownErr := o.server.Shutdown(context.WithoutCancel(ctx))
	if shutdownErr != nil {
		o.logger.Error("Failed to shut down ingress server", "error", shutdownErr)
	}

	return o.store.Close(context.WithoutCancel(ctx))
}

// parseTenantTokens parses "tenant=token" pairs from a comma-separated list.
func parseTenantTokens(raw string) map[string]string {
	tokens := make(map[string]string)

	for _, pair := range strings.Split(raw, ",") {
		tenantID, token, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || tenantID == "" || token == "" {
			continue
		}

		tokens[tenantID] = token
	}

	return tokens
}
