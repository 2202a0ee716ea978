package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenProvider(t *testing.T) {
	provider := NewStaticTokenProvider(map[string]string{"tenant-1": "token-1"})

	token, err := provider.Token(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	_, err = provider.Token(context.Background(), "tenant-2")
	assert.ErrorIs(t, err, ErrUnknownTenant)

	provider.SetToken("tenant-2", "token-2")

	token, err = provider.Token(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestResolve(t *testing.T) {
	provider := NewStaticTokenProvider(map[string]string{"tenant-1": "token-1"})

	tn, err := Resolve(context.Background(), provider, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, Context{TenantID: "tenant-1", Token: "token-1"}, tn)

	_, err = Resolve(context.Background(), provider, "tenant-ghost")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}
