// Package config loads the process-wide environment configuration described
// in §9, grounded on orchestrator/run.go's LoadLLMConfig(): plain os.Getenv
// reads with defaults and log.Printf status lines at startup, no
// config-file-watching layer.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full env-var surface a consensusd process reads at startup.
// Per-provider credentials are not duplicated here: each modelconfig
// descriptor names its own credential_ref/secret_key_ref and resolves it
// directly from the environment at load time.
type Config struct {
	Port string

	BackendAPIKeys []string

	DatabaseURL string

	CacheBackendURL string
	CacheTTL        time.Duration

	RequestTimeout        time.Duration
	MaxConcurrentRequests int
	MaxInflightRequests   int

	AllowedOrigins []string

	LowConsensusThreshold  float64
	HighConsensusThreshold float64

	ModelDescriptorPath string
}

// Load reads Config from the environment, applying the defaults named in §9.
// BACKEND_API_KEYS has no default: an empty or unset value is a startup
// error, matching "required and non-empty at startup; no built-in defaults."
func Load() (Config, error) {
	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		CacheBackendURL:        os.Getenv("CACHE_BACKEND_URL"),
		ModelDescriptorPath:    getEnv("MODEL_DESCRIPTOR_PATH", "models.yaml"),
		AllowedOrigins:         splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		BackendAPIKeys:         splitCSV(os.Getenv("BACKEND_API_KEYS")),
		CacheTTL:               getEnvSeconds("CACHE_TTL_SECONDS", 3600),
		RequestTimeout:         getEnvSeconds("REQUEST_TIMEOUT_SECONDS", 30),
		MaxConcurrentRequests:  getEnvInt("MAX_CONCURRENT_REQUESTS", 10),
		MaxInflightRequests:    getEnvInt("MAX_INFLIGHT_REQUESTS", 256),
		LowConsensusThreshold:  getEnvFloat("LOW_CONSENSUS_THRESHOLD", 0.85),
		HighConsensusThreshold: getEnvFloat("HIGH_CONSENSUS_THRESHOLD", 0.90),
	}

	if len(cfg.BackendAPIKeys) == 0 {
		return Config{}, fmt.Errorf("config: BACKEND_API_KEYS must be set and non-empty")
	}
	if len(cfg.AllowedOrigins) == 0 {
		log.Printf("[Config] ALLOWED_ORIGINS is empty: CORS will allow no cross-origin callers")
	}

	log.Printf("[Config] Loaded runtime configuration:")
	log.Printf("  - port: %s", cfg.Port)
	log.Printf("  - backend tokens: %d configured", len(cfg.BackendAPIKeys))
	log.Printf("  - cache backend: %s (ttl %s)", describeCacheBackend(cfg.CacheBackendURL), cfg.CacheTTL)
	log.Printf("  - request timeout: %s, max_concurrent_requests: %d, max_inflight_requests: %d",
		cfg.RequestTimeout, cfg.MaxConcurrentRequests, cfg.MaxInflightRequests)
	log.Printf("  - consensus thresholds: low=%.2f high=%.2f", cfg.LowConsensusThreshold, cfg.HighConsensusThreshold)
	log.Printf("  - allowed origins: %v", cfg.AllowedOrigins)

	return cfg, nil
}

func describeCacheBackend(url string) string {
	if url == "" {
		return "in-memory"
	}
	return "redis"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] invalid %s=%q, using default %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[Config] invalid %s=%q, using default %.2f", key, v, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
