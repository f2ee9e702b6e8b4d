// Package config handles loading and validating configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Mama Bear express router.
type Config struct {
	// Server
	Port     string
	LogLevel string
	LogFile  string // empty = stdout

	// Browser origins allowed by CORS; "*" allows any origin without credentials.
	CORSOrigins []string

	// Auth
	AdminAPIKey string // Required for /api/v1 endpoints; empty = management disabled
	ChatAPIKey  string // Optional key for chat endpoints

	// Google Cloud
	GoogleCloudProject string
	VertexRegion       string

	// Provider API keys (passed through, never stored)
	GoogleAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Integrations that are only reported, never called.
	PipedreamToken string
	Mem0APIKey     string

	// Routing and execution
	RequestTimeout time.Duration
	MaxConcurrent  int64
	RateLimit      int64 // requests per minute per client
	FallbackModel  string
	RulesFile      string

	// Budget enforcement
	UserDailyBudgetUSD float64
	BudgetFailOpen     bool // If true, allow requests when Redis is unreachable

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first; variables that are
// already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("BACKEND_PORT", "5001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("MAMABEAR_LOG_FILE"),

		CORSOrigins: splitList(getEnv("MAMABEAR_CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		AdminAPIKey: os.Getenv("MAMABEAR_ADMIN_API_KEY"),
		ChatAPIKey:  os.Getenv("MAMABEAR_API_KEY"),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		VertexRegion:       getEnv("VERTEX_AI_REGION", getEnv("VERTEX_AI_LOCATION", "us-central1")),

		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),

		PipedreamToken: os.Getenv("PIPEDREAM_API_TOKEN"),
		Mem0APIKey:     os.Getenv("MEM0_API_KEY"),

		FallbackModel: getEnv("MAMABEAR_FALLBACK_MODEL", "gemini-api-flash"),
		RulesFile:     os.Getenv("MAMABEAR_ROUTING_RULES"),

		BudgetFailOpen: getEnv("MAMABEAR_BUDGET_FAIL_OPEN", "true") == "true",

		DBHost:     getEnv("POSTGRES_HOST", "localhost"),
		DBName:     getEnv("POSTGRES_DB", "mamabear"),
		DBUser:     getEnv("POSTGRES_USER", "mamabear"),
		DBPassword: getEnv("POSTGRES_PASSWORD", ""),
		DBSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}

	var err error
	if cfg.RequestTimeout, err = time.ParseDuration(getEnv("MAMABEAR_REQUEST_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("invalid MAMABEAR_REQUEST_TIMEOUT: %w", err)
	}
	if cfg.MaxConcurrent, err = strconv.ParseInt(getEnv("MAMABEAR_MAX_CONCURRENT", "64"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MAMABEAR_MAX_CONCURRENT: %w", err)
	}
	if cfg.RateLimit, err = strconv.ParseInt(getEnv("MAMABEAR_RATE_LIMIT", "120"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MAMABEAR_RATE_LIMIT: %w", err)
	}
	if cfg.UserDailyBudgetUSD, err = strconv.ParseFloat(getEnv("MAMABEAR_USER_DAILY_BUDGET_USD", "0"), 64); err != nil {
		return nil, fmt.Errorf("invalid MAMABEAR_USER_DAILY_BUDGET_USD: %w", err)
	}
	if cfg.DBPort, err = strconv.Atoi(getEnv("POSTGRES_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}
	if cfg.RedisPort, err = strconv.Atoi(getEnv("REDIS_PORT", "6379")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Missing credentials are not errors; see DegradedModes.
func (c *Config) Validate() error {
	var errs []error
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("config: BACKEND_PORT %q is not a valid port", c.Port))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("config: MAMABEAR_REQUEST_TIMEOUT must be positive"))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("config: MAMABEAR_MAX_CONCURRENT must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("config: MAMABEAR_RATE_LIMIT must not be negative"))
	}
	if c.UserDailyBudgetUSD < 0 {
		errs = append(errs, errors.New("config: MAMABEAR_USER_DAILY_BUDGET_USD must not be negative"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: LOG_LEVEL %q must be one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// DegradedModes lists the features that run in a reduced mode because a
// credential is missing. The service still starts.
func (c *Config) DegradedModes() []string {
	var out []string
	if c.GoogleCloudProject == "" {
		out = append(out, "GOOGLE_CLOUD_PROJECT not set: Vertex Gemini and Vertex Claude routes will use the fallback model")
	}
	if c.GoogleAPIKey == "" {
		out = append(out, "GOOGLE_API_KEY not set: Gemini API routes (and the default safe model) are unavailable")
	}
	if c.AnthropicAPIKey == "" {
		out = append(out, "ANTHROPIC_API_KEY not set: direct Anthropic models are unavailable")
	}
	if c.OpenAIAPIKey == "" {
		out = append(out, "OPENAI_API_KEY not set: OpenAI models are unavailable")
	}
	if c.PipedreamToken == "" {
		out = append(out, "PIPEDREAM_API_TOKEN not set: workflow integration reported as disabled")
	}
	if c.Mem0APIKey == "" {
		out = append(out, "MEM0_API_KEY not set: memory integration reported as disabled")
	}
	return out
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedactedDSN returns the DSN with the password masked for safe logging.
func (c *Config) RedactedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedisAddr returns the Redis address in host:port format.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// splitList splits a comma separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
