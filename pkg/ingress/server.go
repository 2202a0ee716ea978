package ingress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// SagaStarter is the engine surface the workflow endpoint needs: create the
// record, then drive its first step.
type SagaStarter interface {
	Handles(sagaType models.SagaType) bool
	Begin(ctx context.Context, tenantID string, sagaType models.SagaType, data map[string]any) (*models.SagaRecord, error)
	NextStep(ctx context.Context, sagaID string, notification *models.Notification) error
}

// Server receives webhook POSTs from the admin agent and republishes them on
// the local bus, and exposes the tenant-facing workflow and webhook-config
// endpoints. Handler failures surface as 5xx so the sender redelivers.
type Server struct {
	app       *fiber.App
	bus       eventbus.Bus
	configs   persistence.WebhookConfigRepository
	sagas     SagaStarter
	validator *validator.Validate
	logger    *slog.Logger
}

func NewServer(bus eventbus.Bus, configs persistence.WebhookConfigRepository, sagas SagaStarter, logger *slog.Logger) *Server {
	s := &Server{
		app:       fiber.New(),
		bus:       bus,
		configs:   configs,
		sagas:     sagas,
		validator: validator.New(),
		logger:    logger.With("module", "ingress_server"),
	}

	s.app.Get("/health", s.health)
	s.app.Post("/v1/notifications", s.receiveNotification)
	s.app.Post("/v1/tenants/:tenant_id/workflows", s.startWorkflow)
	s.app.Post("/v1/tenants/:tenant_id/webhooks", s.registerWebhook)
	s.app.Get("/v1/tenants/:tenant_id/webhooks", s.listWebhooks)

	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) receiveNotification(c fiber.Ctx) error {
	body := c.Body()

	err := validateEnvelope(body)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var env envelope

	err = json.Unmarshal(body, &env)
	if err != nil {
		return badRequest(c, "undecodable notification body: "+err.Error())
	}

	payload := env.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	if env.State != "" {
		payload["state"] = env.State
	}

	topic := models.Topic(env.Topic)
	if !topic.External() {
		return badRequest(c, "topic "+env.Topic+" is not an agent protocol stream")
	}

	err = s.bus.Publish(c.Context(), topic, tenant.Context{TenantID: env.TenantID}, payload)
	if err != nil {
		s.logger.ErrorContext(c.Context(), "Notification handling failed",
			"topic", env.Topic, "tenant_id", env.TenantID, "error", err)

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

type startWorkflowRequest struct {
	Type models.SagaType `json:"type"`
	Data map[string]any  `json:"data"`
}

// startWorkflow is where a multi-step process enters the system: it creates
// the saga record and drives the first step with a nil notification. Further
// progress comes from correlated notifications, not from this endpoint.
func (s *Server) startWorkflow(c fiber.Ctx) error {
	var req startWorkflowRequest

	err := json.Unmarshal(c.Body(), &req)
	if err != nil {
		return badRequest(c, "undecodable workflow request: "+err.Error())
	}

	if !s.sagas.Handles(req.Type) {
		return badRequest(c, "unknown workflow type "+string(req.Type))
	}

	tenantID := c.Params("tenant_id")

	record, err := s.sagas.Begin(c.Context(), tenantID, req.Type, req.Data)
	if err != nil {
		if persistence.IsDuplicateSaga(err) {
			return conflict(c, err.Error())
		}

		return internalError(c, err)
	}

	err = s.sagas.NextStep(c.Context(), record.ID, nil)
	if err != nil {
		return internalError(c, err)
	}

	s.logger.InfoContext(c.Context(), "Workflow started",
		"workflow_id", record.ID, "type", req.Type, "tenant_id", tenantID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"workflow_id": record.ID,
		"type":        record.Type,
	})
}

func (s *Server) registerWebhook(c fiber.Ctx) error {
	config := &models.WebhookConfig{Enabled: true}

	err := json.Unmarshal(c.Body(), config)
	if err != nil {
		return badRequest(c, "undecodable webhook config: "+err.Error())
	}

	config.TenantID = c.Params("tenant_id")

	err = s.validator.Struct(config)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = s.configs.Save(c.Context(), config)
	if err != nil {
		return internalError(c, err)
	}

	s.logger.InfoContext(c.Context(), "Webhook endpoint registered",
		"tenant_id", config.TenantID, "url", config.URL)

	return c.Status(fiber.StatusCreated).JSON(config)
}

func (s *Server) listWebhooks(c fiber.Ctx) error {
	configs, err := s.configs.ByTenant(c.Context(), c.Params("tenant_id"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"webhooks": configs})
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}
