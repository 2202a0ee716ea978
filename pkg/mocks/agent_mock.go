// Package mocks provides testify mocks shared across test packages.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tessera-id/ariadne/pkg/agent"
	"github.com/tessera-id/ariadne/pkg/tenant"
)

// MockAgentClient is a mock implementation of agent.Client.
type MockAgentClient struct {
	mock.Mock
}

func (m *MockAgentClient) CreateInvitation(ctx context.Context, tn tenant.Context, alias string) (*agent.InvitationResult, error) {
	args := m.Called(ctx, tn, alias)

	result, _ := args.Get(0).(*agent.InvitationResult)

	return result, args.Error(1)
}

func (m *MockAgentClient) ReceiveInvitation(ctx context.Context, tn tenant.Context, invitationURL string) (*agent.InvitationResult, error) {
	args := m.Called(ctx, tn, invitationURL)

	result, _ := args.Get(0).(*agent.InvitationResult)

	return result, args.Error(1)
}

func (m *MockAgentClient) ProvisionWallet(ctx context.Context, label string) (*agent.WalletResult, error) {
	args := m.Called(ctx, label)

	result, _ := args.Get(0).(*agent.WalletResult)

	return result, args.Error(1)
}

func (m *MockAgentClient) RegisterDID(ctx context.Context, tn tenant.Context) (*agent.TransactionResult, error) {
	args := m.Called(ctx, tn)

	result, _ := args.Get(0).(*agent.TransactionResult)

	return result, args.Error(1)
}

func (m *MockAgentClient) SubmitTransaction(ctx context.Context, tn tenant.Context, payload map[string]any) (*agent.TransactionResult, error) {
	args := m.Called(ctx, tn, payload)

	result, _ := args.Get(0).(*agent.TransactionResult)

	return result, args.Error(1)
}

func (m *MockAgentClient) SendMessage(ctx context.Context, tn tenant.Context, connectionID, content string) error {
	args := m.Called(ctx, tn, connectionID, content)

	return args.Error(0)
}
