package ingress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/eventbus"
	"github.com/tessera-id/ariadne/pkg/mocks"
	"github.com/tessera-id/ariadne/pkg/models"
	"github.com/tessera-id/ariadne/pkg/persistence/memory"
	"github.com/tessera-id/ariadne/pkg/saga"
	"github.com/tessera-id/ariadne/pkg/sagas/connection"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

type serverFixture struct {
	server *Server
	store  *memory.Persistence
	bus    *eventbus.LocalBus
	client *mocks.MockAgentClient
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	store := memory.NewPersistence()
	bus := eventbus.NewLocalBus(slog.Default())
	client := &mocks.MockAgentClient{}
	tokens := tenant.NewStaticTokenProvider(map[string]string{"tenant-1": "token-1"})

	engine, err := saga.NewEngine(store.Sagas(), tokens, slog.Default(),
		noop.NewTracerProvider().Tracer("test"),
		connection.NewSaga(store.Sagas(), bus, client, slog.Default()))
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe("connections$", engine.HandleNotification))

	return &serverFixture{
		server: NewServer(bus, store.WebhookConfigs(), engine, slog.Default()),
		store:  store,
		bus:    bus,
		client: client,
	}
}

func (f *serverFixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))

	resp, err := f.server.App().Test(req)
	require.NoError(t, err)

	t.Cleanup(func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	})

	return resp
}

func TestServer_StartWorkflowRunsFirstStep(t *testing.T) {
	f := newTestServer(t)

	f.client.On("CreateInvitation", mock.Anything, mock.Anything, "acme").
		Return(&agent.InvitationResult{ConnectionID: "conn-1"}, nil)

	resp := f.post(t, "/v1/tenants/tenant-1/workflows", `{"type":"connection","data":{"alias":"acme"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		WorkflowID string `json:"workflow_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.WorkflowID)

	// The first step already ran: the saga left pending and its correlation
	// key routes future notifications back to it.
	stored, err := f.store.Sagas().GetByID(context.Background(), body.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaStateInProgress, stored.State)

	sagaID, err := f.store.Sagas().SagaIDByCorrelation(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, body.WorkflowID, sagaID)

	f.client.AssertExpectations(t)
}

func TestServer_StartWorkflowRejectsUnknownType(t *testing.T) {
	f := newTestServer(t)

	resp := f.post(t, "/v1/tenants/tenant-1/workflows", `{"type":"teleportation"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StartWorkflowConflictsOnActiveDuplicate(t *testing.T) {
	f := newTestServer(t)

	f.client.On("CreateInvitation", mock.Anything, mock.Anything, "").
		Return(&agent.InvitationResult{ConnectionID: "conn-1"}, nil)

	resp := f.post(t, "/v1/tenants/tenant-1/workflows", `{"type":"connection"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.post(t, "/v1/tenants/tenant-1/workflows", `{"type":"connection"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_ReceiveNotificationRejectsInternalTopics(t *testing.T) {
	f := newTestServer(t)

	delivered := 0
	require.NoError(t, f.bus.Subscribe("task\\..*|workflow\\..*",
		func(context.Context, tenant.Context, models.Topic, map[string]any) error {
			delivered++

			return nil
		}))

	resp := f.post(t, "/v1/notifications",
		`{"topic":"task.create_invitation","tenant_id":"tenant-1","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.post(t, "/v1/notifications",
		`{"topic":"workflow.completed","tenant_id":"tenant-1","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Zero(t, delivered, "internal topics must never reach the bus from ingress")
}
