// Package agent wraps the external admin agent's API: the outbound
// collaborator that performs protocol operations on behalf of tenants.
// Calls follow a synchronous-ack contract: the response acknowledges the
// request and carries the identifiers the agent assigned; completion is
// reported later through an inbound notification.
package agent

import (
	"context"
	"errors"

	"github.com/tessera-id/ariadne/pkg/tenant"
)

// ErrUnauthorized indicates the agent rejected the credential the call
// carried. Callers holding a cached token should invalidate it and retry
// through the source.
var ErrUnauthorized = errors.New("agent rejected credential")

// InvitationResult is the acknowledgement of a connection invitation.
type InvitationResult struct {
	ConnectionID  string `json:"connection_id"`
	InvitationURL string `json:"invitation_url"`
}

// WalletResult is the acknowledgement of a wallet provisioning call.
type WalletResult struct {
	WalletID string `json:"wallet_id"`
	Token    string `json:"token"`
}

// TransactionResult is the acknowledgement of a ledger transaction request.
type TransactionResult struct {
	TransactionID string `json:"transaction_id"`
}

// Client is the admin agent API surface the orchestration core uses. All
// tenant-scoped calls carry the tenant's bearer token.
type Client interface {
	// CreateInvitation asks the agent to create a connection invitation.
	CreateInvitation(ctx context.Context, tn tenant.Context, alias string) (*InvitationResult, error)

	// ReceiveInvitation accepts a connection invitation on the tenant's behalf.
	ReceiveInvitation(ctx context.Context, tn tenant.Context, invitationURL string) (*InvitationResult, error)

	// ProvisionWallet creates a subwallet for a new tenant. Privileged call,
	// runs under the base admin credential rather than a tenant token.
	ProvisionWallet(ctx context.Context, label string) (*WalletResult, error)

	// RegisterDID writes the tenant's public DID to the ledger through the
	// endorser. The returned transaction id is the correlation key for the
	// endorsements notification stream.
	RegisterDID(ctx context.Context, tn tenant.Context) (*TransactionResult, error)

	// SubmitTransaction requests an endorsed ledger write.
	SubmitTransaction(ctx context.Context, tn tenant.Context, payload map[string]any) (*TransactionResult, error)

	// SendMessage delivers a basic message over an established connection.
	SendMessage(ctx context.Context, tn tenant.Context, connectionID, content string) error
}
