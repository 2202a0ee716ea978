package cmd

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-id/ariadne/pkg/tenant"
)

const tokenCacheTTL = 5 * time.Minute

// NewTokenProvider builds the tenant credential resolver. With a Redis URL
// the static provider is wrapped in the shared cache so every orchestrator
// instance resolves tokens consistently; without one the static provider is
// used directly.
func NewTokenProvider(redisURL string, tokens map[string]string) (tenant.TokenProvider, error) {
	static := tenant.NewStaticTokenProvider(tokens)

	if redisURL == "" {
		return static, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return tenant.NewCachedTokenProvider(redis.NewClient(opts), static, tokenCacheTTL), nil
}
