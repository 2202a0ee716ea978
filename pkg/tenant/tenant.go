// Package tenant carries the per-call tenant identity and credential through
// the orchestration core. There is no ambient "current tenant": every function
// in the chain takes a Context argument explicitly.
package tenant

import (
	"context"
	"errors"
)

// ErrUnknownTenant indicates no credential could be resolved for a tenant id.
var ErrUnknownTenant = errors.New("unknown tenant")

// Context identifies the tenant a handler acts as. Token is the bearer
// credential used for persistence scoping and outbound admin calls.
type Context struct {
	TenantID string
	Token    string
}

// TokenProvider resolves a tenant's persistent credential. Implementations
// must be safe for concurrent use.
type TokenProvider interface {
	Token(ctx context.Context, tenantID string) (string, error)
}

// TokenInvalidator is implemented by providers that cache credentials and can
// evict one, forcing the next resolution through the source. Callers detect it
// with a type assertion when an outbound call is rejected as unauthorized.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Resolve builds a full tenant Context from an id using the given provider.
func Resolve(ctx context.Context, provider TokenProvider, tenantID string) (Context, error) {
	token, err := provider.Token(ctx, tenantID)
	if err != nil {
		return Context{}, err
	}

	return Context{TenantID: tenantID, Token: token}, nil
}
