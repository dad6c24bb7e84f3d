package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSettingsDefaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "AUTH_MODE", "CACHE_TTL_SECONDS", "REFERENCE_CACHE_TTL_SECONDS",
		"BROADCAST_INTERVAL_SECONDS", "PROVIDER_TIMEOUT_MS", "PROVIDER_RATE_PER_SECOND", "CACHE_SWEEP_SECONDS",
	} {
		t.Setenv(key, "")
	}

	s := LoadSettings()
	assert.Equal(t, "8080", s.ServerPort)
	assert.Equal(t, "jwt", s.AuthMode)
	assert.Equal(t, 30*time.Second, s.CacheTTL)
	assert.Equal(t, 300*time.Second, s.ReferenceCacheTTL)
	assert.Equal(t, 3*time.Second, s.BroadcastInterval)
	assert.Equal(t, 12*time.Second, s.ProviderTimeout)
	assert.Equal(t, 20.0, s.ProviderRate)
	assert.Equal(t, time.Minute, s.CacheSweep)
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("AUTH_MODE", "Query")
	t.Setenv("CACHE_TTL_SECONDS", "5")
	t.Setenv("PROVIDER_TIMEOUT_MS", "250")
	t.Setenv("BROADCAST_INTERVAL_SECONDS", "abc")

	s := LoadSettings()
	assert.Equal(t, "query", s.AuthMode)
	assert.Equal(t, 5*time.Second, s.CacheTTL)
	assert.Equal(t, 250*time.Millisecond, s.ProviderTimeout)
	assert.Equal(t, 3*time.Second, s.BroadcastInterval)
}
