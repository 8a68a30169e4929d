package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL       string
	ServerPort        string
	FrontendURL       string
	RedisURL          string
	RabbitMQURL       string
	RabbitMQPrefetch  int
	BackboardAPIKey   string
	BackboardBaseURL  string
	BackboardProvider string
	BackboardModel    string
	SessionTTL        time.Duration
	AIProvider        string
	AIModel           string
	AIBaseURL         string
	OpenAIKey         string
	BedrockRegion     string
	BedrockModelID    string
	FirebaseProjectID string
	AuthAllowHeader   bool
	EnableHSTS        bool
	ServerDebugMode   bool
	WorkerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  getEnvInt("RABBITMQ_PREFETCH", 1),
		BackboardAPIKey:   getEnv("BACKBOARD_API_KEY", ""),
		BackboardBaseURL:  getEnv("BACKBOARD_BASE_URL", "https://app.backboard.io/api"),
		BackboardProvider: getEnv("BACKBOARD_LLM_PROVIDER", ""),
		BackboardModel:    getEnv("BACKBOARD_MODEL_NAME", ""),
		SessionTTL:        getEnvDuration("CHAT_SESSION_TTL", 120*time.Minute),
		AIProvider:        getEnv("AI_PROVIDER", "backboard"),
		AIModel:           getEnv("AI_MODEL", ""),
		AIBaseURL:         getEnv("AI_BASE_URL", ""),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		BedrockRegion:     getEnv("BEDROCK_REGION", "us-east-1"),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
		AuthAllowHeader:   getEnvBool("AUTH_ALLOW_HEADER", false),
		EnableHSTS:        getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:   getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode:   getEnvBool("WORKER_DEBUG_MODE", false),
		OTELEnabled:       getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.AIProvider == "backboard" && cfg.BackboardAPIKey == "" {
		return nil, fmt.Errorf("BACKBOARD_API_KEY is required when AI_PROVIDER is backboard")
	}

	if !cfg.AuthAllowHeader && cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required unless AUTH_ALLOW_HEADER is enabled")
	}

	return cfg, nil
}

// FirebaseIssuer returns the expected issuer for Firebase ID tokens.
func (c *Config) FirebaseIssuer() string {
	return "https://securetoken.google.com/" + c.FirebaseProjectID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
