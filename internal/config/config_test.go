package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TURN_PAUSE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.TurnPause)
	assert.Equal(t, "https://api.hume.ai", cfg.HumeBaseURL)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TURN_PAUSE", "0s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "7")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, time.Duration(0), cfg.TurnPause)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 7, cfg.RateLimitRequests)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "lots")
	t.Setenv("SEARCH_CACHE_TTL", "soon")
	t.Setenv("TRACING_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 120, cfg.RateLimitRequests)
	assert.Equal(t, 15*time.Minute, cfg.SearchCacheTTL)
	assert.False(t, cfg.TracingEnabled)
}

func TestListEnv(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example.com, ,http://localhost:3000")

	cfg := Load()

	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.CORSAllowedOrigins)
}
