package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tessera-id/ariadne/pkg/tenant"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks to the admin agent over its HTTP admin API.
type HTTPClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, adminToken string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "agent_client"),
	}
}

func (c *HTTPClient) CreateInvitation(ctx context.Context, tn tenant.Context, alias string) (*InvitationResult, error) {
	var result InvitationResult

	err := c.post(ctx, tn.Token, "/connections/create-invitation", map[string]any{"alias": alias}, &result)
	if err != nil {
		return nil, fmt.Errorf("create invitation failed: %w", err)
	}

	return &result, nil
}

func (c *HTTPClient) ReceiveInvitation(ctx context.Context, tn tenant.Context, invitationURL string) (*InvitationResult, error) {
	var result InvitationResult

	err := c.post(ctx, tn.Token, "/connections/receive-invitation", map[string]any{"invitation_url": invitationURL}, &result)
	if err != nil {
		return nil, fmt.Errorf("receive invitation failed: %w", err)
	}

	return &result, nil
}

func (c *HTTPClient) ProvisionWallet(ctx context.Context, label string) (*WalletResult, error) {
	var result WalletResult

	err := c.post(ctx, c.adminToken, "/multitenancy/wallet", map[string]any{"label": label}, &result)
	if err != nil {
		return nil, fmt.Errorf("provision wallet failed: %w", err)
	}

	return &result, nil
}

func (c *HTTPClient) RegisterDID(ctx context.Context, tn tenant.Context) (*TransactionResult, error) {
	var result TransactionResult

	err := c.post(ctx, tn.Token, "/wallet/did/register", map[string]any{}, &result)
	if err != nil {
		return nil, fmt.Errorf("register DID failed: %w", err)
	}

	return &result, nil
}

func (c *HTTPClient) SubmitTransaction(ctx context.Context, tn tenant.Context, payload map[string]any) (*TransactionResult, error) {
	var result TransactionResult

	err := c.post(ctx, tn.Token, "/transactions/create-request", payload, &result)
	if err != nil {
		return nil, fmt.Errorf("submit transaction failed: %w", err)
	}

	return &result, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, tn tenant.Context, connectionID, content string) error {
	err := c.post(ctx, tn.Token, "/connections/"+connectionID+"/send-message", map[string]any{"content": content}, nil)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}

	return nil
}

func (c *HTTPClient) post(ctx context.Context, token, path string, body map[string]any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		err := response.Body.Close()
		if err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))

		return fmt.Errorf("%w: agent returned %d: %s", ErrUnauthorized, response.StatusCode, string(detail))
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))

		return fmt.Errorf("agent returned %d: %s", response.StatusCode, string(detail))
	}

	if result == nil {
		return nil
	}

	err = json.NewDecoder(response.Body).Decode(result)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
