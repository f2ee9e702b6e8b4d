package router

import (
	"sort"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// Catalog model IDs referenced by the dispatch table.
const (
	ModelFlashLite      = "gemini-2.0-flash-lite-001"
	ModelFlash          = "gemini-2.0-flash-001"
	ModelFlashVertex    = "gemini-2.5-flash-vertex"
	ModelProVertex      = "gemini-2.5-pro-vertex"
	ModelClaudeHaiku    = "claude-3.5-haiku"
	ModelClaudeSonnetV2 = "claude-3.5-sonnet-v2"
	ModelClaude37       = "claude-3.7-sonnet"
	ModelClaude4Sonnet  = "claude-4-sonnet"
	ModelClaude4Opus    = "claude-4-opus"
	ModelGeminiAPIFlash = "gemini-api-flash"
	ModelGeminiAPIPro   = "gemini-api-fallback"
	ModelGPT4o          = "gpt-4o"
	ModelGPT4oMini      = "gpt-4o-mini"
	ModelClaudeDirect   = "claude-sonnet-4-direct"
)

// Catalog is the immutable set of models the router can select.
type Catalog struct {
	models map[string]models.ModelConfig
	ids    []string
}

// NewCatalog builds a catalog from entries. Later duplicates replace earlier ones.
func NewCatalog(entries []models.ModelConfig) *Catalog {
	c := &Catalog{models: make(map[string]models.ModelConfig, len(entries))}
	for _, m := range entries {
		c.models[m.ID] = m
	}
	for id := range c.models {
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c
}

// DefaultCatalog returns the built-in model catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultModels())
}

// Get looks up a model by catalog ID.
func (c *Catalog) Get(id string) (models.ModelConfig, bool) {
	m, ok := c.models[id]
	if ok {
		m.Capabilities = append([]string(nil), m.Capabilities...)
	}
	return m, ok
}

// IDs returns all model IDs in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// All returns every model, sorted by ID.
func (c *Catalog) All() []models.ModelConfig {
	out := make([]models.ModelConfig, 0, len(c.ids))
	for _, id := range c.ids {
		m, _ := c.Get(id)
		out = append(out, m)
	}
	return out
}

// CheaperAlternatives returns models on the same provider that cost less per
// 1k tokens than id, cheapest first.
func (c *Catalog) CheaperAlternatives(id string) []models.ModelConfig {
	base, ok := c.models[id]
	if !ok {
		return nil
	}
	var out []models.ModelConfig
	for _, m := range c.All() {
		if m.Provider == base.Provider && m.CostPer1KTokens < base.CostPer1KTokens {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CostPer1KTokens < out[j].CostPer1KTokens
	})
	return out
}

func defaultModels() []models.ModelConfig {
	return []models.ModelConfig{
		// Vertex AI Gemini (express mode endpoints)
		{ID: ModelFlashLite, ModelName: "gemini-2.0-flash-lite-001", Provider: models.ProviderVertexGemini,
			CostPer1KTokens: 0.00002, AvgResponseTimeMs: 120, MaxTokens: 8192,
			Capabilities: []string{"chat", "ultra_fast"}, ExpressMode: true},
		{ID: ModelFlash, ModelName: "gemini-2.0-flash-001", Provider: models.ProviderVertexGemini,
			CostPer1KTokens: 0.00003, AvgResponseTimeMs: 150, MaxTokens: 8192,
			Capabilities: []string{"chat", "fast", "multimodal"}, ExpressMode: true},
		{ID: ModelFlashVertex, ModelName: "gemini-2.5-flash", Provider: models.ProviderVertexGemini,
			CostPer1KTokens: 0.000075, AvgResponseTimeMs: 200, MaxTokens: 8192,
			Capabilities: []string{"chat", "fast", "multimodal", "reasoning"}, ExpressMode: true},
		{ID: ModelProVertex, ModelName: "gemini-2.5-pro", Provider: models.ProviderVertexGemini,
			CostPer1KTokens: 0.00125, AvgResponseTimeMs: 400, MaxTokens: 8192,
			Capabilities: []string{"chat", "multimodal", "reasoning", "long_context"}, ExpressMode: true},

		// Claude through Vertex AI Model Garden
		{ID: ModelClaudeHaiku, ModelName: "claude-3-5-haiku@20241022", Provider: models.ProviderVertexClaude,
			CostPer1KTokens: 0.0008, AvgResponseTimeMs: 300, MaxTokens: 4096,
			Capabilities: []string{"chat", "fast", "code"}},
		{ID: ModelClaudeSonnetV2, ModelName: "claude-3-5-sonnet-v2@20241022", Provider: models.ProviderVertexClaude,
			CostPer1KTokens: 0.0015, AvgResponseTimeMs: 400, MaxTokens: 8192,
			Capabilities: []string{"chat", "code", "analysis", "writing"}},
		{ID: ModelClaude37, ModelName: "claude-3-7-sonnet@20250219", Provider: models.ProviderVertexClaude,
			CostPer1KTokens: 0.002, AvgResponseTimeMs: 500, MaxTokens: 8192,
			Capabilities: []string{"chat", "code", "analysis", "reasoning", "agentic"}},
		{ID: ModelClaude4Sonnet, ModelName: "claude-sonnet-4@20250514", Provider: models.ProviderVertexClaude,
			CostPer1KTokens: 0.003, AvgResponseTimeMs: 600, MaxTokens: 8192,
			Capabilities: []string{"chat", "code", "analysis", "reasoning", "agentic"}},
		{ID: ModelClaude4Opus, ModelName: "claude-opus-4@20250514", Provider: models.ProviderVertexClaude,
			CostPer1KTokens: 0.01, AvgResponseTimeMs: 1000, MaxTokens: 8192,
			Capabilities: []string{"chat", "code", "analysis", "reasoning", "agentic", "premium"}},

		// Direct Gemini API
		{ID: ModelGeminiAPIFlash, ModelName: "gemini-2.0-flash", Provider: models.ProviderGeminiAPI,
			CostPer1KTokens: 0.0001, AvgResponseTimeMs: 800, MaxTokens: 2048,
			Capabilities: []string{"chat", "multimodal"}},
		{ID: ModelGeminiAPIPro, ModelName: "gemini-2.5-pro", Provider: models.ProviderGeminiAPI,
			CostPer1KTokens: 0.0002, AvgResponseTimeMs: 1200, MaxTokens: 8192,
			Capabilities: []string{"chat", "multimodal", "reasoning"}},

		// Direct provider APIs
		{ID: ModelGPT4o, ModelName: "gpt-4o", Provider: models.ProviderOpenAI,
			CostPer1KTokens: 0.0025, AvgResponseTimeMs: 800, MaxTokens: 4096,
			Capabilities: []string{"chat", "code", "multimodal"}},
		{ID: ModelGPT4oMini, ModelName: "gpt-4o-mini", Provider: models.ProviderOpenAI,
			CostPer1KTokens: 0.00015, AvgResponseTimeMs: 400, MaxTokens: 4096,
			Capabilities: []string{"chat", "fast"}},
		{ID: ModelClaudeDirect, ModelName: "claude-sonnet-4-20250514", Provider: models.ProviderAnthropic,
			CostPer1KTokens: 0.003, AvgResponseTimeMs: 700, MaxTokens: 8192,
			Capabilities: []string{"chat", "code", "analysis", "writing"}},
	}
}
