package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"PORT", "DATABASE_URL", "CACHE_BACKEND_URL", "MODEL_DESCRIPTOR_PATH",
	"ALLOWED_ORIGINS", "BACKEND_API_KEYS", "CACHE_TTL_SECONDS",
	"REQUEST_TIMEOUT_SECONDS", "MAX_CONCURRENT_REQUESTS", "MAX_INFLIGHT_REQUESTS",
	"LOW_CONSENSUS_THRESHOLD", "HIGH_CONSENSUS_THRESHOLD",
}

// withCleanEnv clears every config env var, restoring the original values
// after the test, mirroring llm_providers_test.go's TestLoadLLMConfig.
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(configEnvVars))
	for _, key := range configEnvVars {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, val := range original {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	})
}

func TestLoad_MissingBackendAPIKeys_ReturnsError(t *testing.T) {
	withCleanEnv(t)
	_, err := Load()
	assert.Error(t, err, "BACKEND_API_KEYS must be required and non-empty at startup")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("BACKEND_API_KEYS", "tok-a,tok-b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.BackendAPIKeys)
	assert.Equal(t, "", cfg.CacheBackendURL)
	assert.Equal(t, 3600*time.Second, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10, cfg.MaxConcurrentRequests)
	assert.Equal(t, 256, cfg.MaxInflightRequests)
	assert.InDelta(t, 0.85, cfg.LowConsensusThreshold, 1e-9)
	assert.InDelta(t, 0.90, cfg.HighConsensusThreshold, 1e-9)
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoad_OverridesFromEnvironment(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("BACKEND_API_KEYS", "tok-a")
	os.Setenv("PORT", "9090")
	os.Setenv("CACHE_BACKEND_URL", "redis://localhost:6379/0")
	os.Setenv("CACHE_TTL_SECONDS", "120")
	os.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	os.Setenv("MAX_CONCURRENT_REQUESTS", "3")
	os.Setenv("MAX_INFLIGHT_REQUESTS", "16")
	os.Setenv("LOW_CONSENSUS_THRESHOLD", "0.5")
	os.Setenv("HIGH_CONSENSUS_THRESHOLD", "0.95")
	os.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.CacheBackendURL)
	assert.Equal(t, 120*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxConcurrentRequests)
	assert.Equal(t, 16, cfg.MaxInflightRequests)
	assert.InDelta(t, 0.5, cfg.LowConsensusThreshold, 1e-9)
	assert.InDelta(t, 0.95, cfg.HighConsensusThreshold, 1e-9)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidNumericEnv_FallsBackToDefault(t *testing.T) {
	withCleanEnv(t)
	os.Setenv("BACKEND_API_KEYS", "tok-a")
	os.Setenv("MAX_CONCURRENT_REQUESTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxConcurrentRequests)
}
