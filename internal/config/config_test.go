package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, "providers.json", cfg.Providers.DescriptorPath)
	assert.Equal(t, "chains.json", cfg.Chains.CatalogPath)
	assert.Equal(t, "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", cfg.NativeTokenSentinel)
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAPIKeysAndBaseURLsFollowProviderNames(t *testing.T) {
	t.Setenv("PROVIDER_NAMES", "0x,1inch")
	t.Setenv("PROVIDER_0X_API_KEY", "key-zerox")
	t.Setenv("PROVIDER_1INCH_BASE_URL", "https://api.1inch.io")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key-zerox", cfg.Providers.APIKeys["0x"])
	assert.Equal(t, "https://api.1inch.io", cfg.Providers.BaseURLs["1inch"])
	_, hasOneInchKey := cfg.Providers.APIKeys["1inch"]
	assert.False(t, hasOneInchKey, "a provider with no matching env var must not appear in the map")
}
