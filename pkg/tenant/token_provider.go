package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// StaticTokenProvider serves tokens from a fixed map. Used in tests and in
// single-tenant deployments where credentials are provisioned up front.
type StaticTokenProvider struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticTokenProvider(tokens map[string]string) *StaticTokenProvider {
	if tokens == nil {
		tokens = make(map[string]string)
	}

	return &StaticTokenProvider{tokens: tokens}
}

func (p *StaticTokenProvider) Token(_ context.Context, tenantID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	token, ok := p.tokens[tenantID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}

	return token, nil
}

func (p *StaticTokenProvider) SetToken(tenantID, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tokens[tenantID] = token
}

// CachedTokenProvider fronts a slower source (typically the admin agent's
// token endpoint) with a Redis cache. Tokens are tenant credentials with a
// bounded TTL so a rotated credential converges without a restart.
type CachedTokenProvider struct {
	client redis.UniversalClient
	source TokenProvider
	ttl    time.Duration
}

func NewCachedTokenProvider(client redis.UniversalClient, source TokenProvider, ttl time.Duration) *CachedTokenProvider {
	return &CachedTokenProvider{
		client: client,
		source: source,
		ttl:    ttl,
	}
}

func (p *CachedTokenProvider) Token(ctx context.Context, tenantID string) (string, error) {
	key := "ariadne:tenant-token:" + tenantID

	token, err := p.client.Get(ctx, key).Result()
	if err == nil && token != "" {
		return token, nil
	}

	token, err = p.source.Token(ctx, tenantID)
	if err != nil {
		return "", err
	}

	err = p.client.Set(ctx, key, token, p.ttl).Err()
	if err != nil {
		// Cache write failure is not fatal: the source already answered.
		return token, nil
	}

	return token, nil
}

// Invalidate drops a cached token so the next resolution goes through the
// source. The task dispatcher calls this when the agent rejects a credential,
// so a rotated token converges on the next attempt instead of after the TTL.
func (p *CachedTokenProvider) Invalidate(ctx context.Context, tenantID string) error {
	return p.client.Del(ctx, "ariadne:tenant-token:"+tenantID).Err()
}
