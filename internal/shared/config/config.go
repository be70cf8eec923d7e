package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the AI orchestration service
type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel  string
	LogFormat string

	// Database (postgres://... or sqlite:path)
	DatabaseURL string

	// Redis (optional; enables chain cache and reload pub/sub)
	RedisURL      string
	ReloadChannel string

	// Provider credentials and endpoints
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaBaseURL   string
	DocParserURL    string

	// Failover
	ProbeTimeout    time.Duration
	LLMTimeout      time.Duration
	DocumentTimeout time.Duration

	// Chain cache
	ChainCacheEnabled bool
	ChainCacheTTL     time.Duration

	// Documents may only be parsed from below this directory
	ParseRoot string

	// Administrative catalog and maintenance
	CatalogPath             string
	RegistryRefreshSchedule string
	LogRetentionDays        int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		ReloadChannel:           getEnv("RELOAD_CHANNEL", "ai:config:reload"),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:         getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL:           getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		DocParserURL:            getEnv("DOC_PARSER_URL", ""),
		ProbeTimeout:            getEnvDuration("PROBE_TIMEOUT", 3*time.Second),
		LLMTimeout:              getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		DocumentTimeout:         getEnvDuration("DOCUMENT_TIMEOUT", 5*time.Minute),
		ChainCacheEnabled:       getEnvBool("CHAIN_CACHE_ENABLED", true),
		ChainCacheTTL:           getEnvDuration("CHAIN_CACHE_TTL", 5*time.Minute),
		ParseRoot:               getEnv("PARSE_ROOT", "data/uploads"),
		CatalogPath:             getEnv("CATALOG_PATH", ""),
		RegistryRefreshSchedule: getEnv("REGISTRY_REFRESH_SCHEDULE", "@every 5m"),
		LogRetentionDays:        getEnvInt("LOG_RETENTION_DAYS", 30),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("PROBE_TIMEOUT must be positive")
	}

	return cfg, nil
}

// APIKey returns the configured credential for a provider type
func (c *Config) APIKey(providerType string) string {
	switch providerType {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
