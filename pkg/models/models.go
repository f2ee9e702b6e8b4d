// Package models defines the core data structures shared across Mama Bear.
package models

import "time"

// Provider identifies the upstream that serves a model.
type Provider string

const (
	ProviderGeminiAPI    Provider = "gemini_api"
	ProviderVertexGemini Provider = "vertex_gemini"
	ProviderVertexClaude Provider = "vertex_claude"
	ProviderOpenAI       Provider = "openai"
	ProviderAnthropic    Provider = "anthropic"
)

// ModelConfig is a static catalog entry. Entries are never mutated after
// the catalog is built.
type ModelConfig struct {
	ID                string   `json:"id" yaml:"id"`
	ModelName         string   `json:"model_name" yaml:"model_name"` // upstream identifier
	Provider          Provider `json:"provider" yaml:"provider"`
	CostPer1KTokens   float64  `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	AvgResponseTimeMs int64    `json:"avg_response_time_ms" yaml:"avg_response_time_ms"`
	MaxTokens         int      `json:"max_tokens" yaml:"max_tokens"`
	Capabilities      []string `json:"capabilities" yaml:"capabilities"`
	ExpressMode       bool     `json:"express_mode" yaml:"express_mode"`
}

// RoutingDecision records which model the router picked for one request.
type RoutingDecision struct {
	ID                       string    `json:"id"`
	Kind                     string    `json:"kind"`
	Reasoning                string    `json:"reasoning"`
	ModelID                  string    `json:"model_id"`
	Provider                 Provider  `json:"provider"`
	Confidence               float64   `json:"confidence"`
	ExpectedCostMultiplier   float64   `json:"expected_cost_multiplier"`
	ExpectedSpeedImprovement float64   `json:"expected_speed_improvement"`
	Timestamp                time.Time `json:"timestamp"`
}

// RequestRecord is the persisted metadata of a single chat request.
// Note: prompt content and response content are NEVER stored.
type RequestRecord struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Variant      string    `json:"variant" db:"variant"`
	Mode         string    `json:"mode" db:"mode"`
	RoutingKind  string    `json:"routing_kind" db:"routing_kind"`
	Provider     Provider  `json:"provider" db:"provider"`
	Model        string    `json:"model" db:"model"`
	InputTokens  int64     `json:"input_tokens" db:"input_tokens"`
	OutputTokens int64     `json:"output_tokens" db:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens" db:"total_tokens"`
	CostUSD      float64   `json:"cost_usd" db:"cost_usd"`
	LatencyMs    int64     `json:"latency_ms" db:"latency_ms"`
	FallbackUsed bool      `json:"fallback_used" db:"fallback_used"`
	Complexity   int       `json:"complexity" db:"complexity"`
	SavingsUSD   float64   `json:"savings_usd" db:"savings_usd"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// CostSummary provides aggregated cost data for a given dimension and period.
type CostSummary struct {
	Dimension     string  `json:"dimension" db:"dimension"` // e.g., "user", "model", "provider"
	DimensionID   string  `json:"dimension_id" db:"dimension_id"`
	TotalCostUSD  float64 `json:"total_cost_usd" db:"total_cost_usd"`
	TotalRequests int64   `json:"total_requests" db:"total_requests"`
	TotalTokens   int64   `json:"total_tokens" db:"total_tokens"`
	AvgLatencyMs  float64 `json:"avg_latency_ms" db:"avg_latency_ms"`
	FallbackCount int64   `json:"fallback_count" db:"fallback_count"`
	TotalSavings  float64 `json:"total_savings_usd" db:"total_savings_usd"`
}

// Budget represents a spending limit for a specific scope and entity.
type Budget struct {
	ID         string    `json:"id" db:"id"`
	Scope      string    `json:"scope" db:"scope"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	LimitUSD   float64   `json:"limit_usd" db:"limit_usd"`
	SpentUSD   float64   `json:"spent_usd" db:"spent_usd"`
	PeriodDays int       `json:"period_days" db:"period_days"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
