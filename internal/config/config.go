// Package config provides environment configuration for the coach service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	MaxUploadBytes     int64
	TempDir            string
	CORSAllowedOrigins []string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	SummaryProvider string
	SummaryModel    string
	QueryProvider   string
	QueryModel      string

	// Voice settings
	HumeAPIKey    string
	HumeSecretKey string
	HumeConfigID  string
	HumeBaseURL   string
	TurnPause     time.Duration

	// Search settings
	SearchEndpoint string
	SearchAPIKey   string
	SearchEngineID string
	SearchCacheTTL time.Duration
	RedisURL       string

	// Persistence
	DatabaseURL string

	// Workspaces
	WorkspaceIdleTTL  time.Duration
	RemoteCallTimeout time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	UploadRateLimit   int

	// Logging
	LogLevel string
	LogFile  string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 60*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Minute),
		MaxUploadBytes:     int64(getIntEnv("MAX_UPLOAD_BYTES", 20<<20)),
		TempDir:            getEnv("UPLOAD_TEMP_DIR", ""),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		SummaryProvider: getEnv("SUMMARY_PROVIDER", "openai"),
		SummaryModel:    getEnv("SUMMARY_MODEL", ""),
		QueryProvider:   getEnv("QUERY_PROVIDER", "openai"),
		QueryModel:      getEnv("QUERY_MODEL", ""),

		// Voice
		HumeAPIKey:    getEnv("HUME_API_KEY", ""),
		HumeSecretKey: getEnv("HUME_SECRET_KEY", ""),
		HumeConfigID:  getEnv("HUME_CONFIG_ID", ""),
		HumeBaseURL:   getEnv("HUME_BASE_URL", "https://api.hume.ai"),
		TurnPause:     getDurationEnv("TURN_PAUSE", 10*time.Second),

		// Search
		SearchEndpoint: getEnv("SEARCH_ENDPOINT", ""),
		SearchAPIKey:   getEnv("SEARCH_API_KEY", ""),
		SearchEngineID: getEnv("SEARCH_ENGINE_ID", ""),
		SearchCacheTTL: getDurationEnv("SEARCH_CACHE_TTL", 15*time.Minute),
		RedisURL:       getEnv("REDIS_URL", ""),

		// Persistence
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Workspaces
		WorkspaceIdleTTL:  getDurationEnv("WORKSPACE_IDLE_TTL", 30*time.Minute),
		RemoteCallTimeout: getDurationEnv("REMOTE_CALL_TIMEOUT", 30*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		UploadRateLimit:   getIntEnv("UPLOAD_RATE_LIMIT", 10),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
