package provider

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/Gemini-Podplai/mumabear/internal/config"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// NewRegistryFromConfig registers a client for every provider whose
// credentials are present. A provider that fails to initialize is logged and
// left unregistered so its models degrade to the fallback path.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config) *Registry {
	reg := NewRegistry()

	if cfg.GoogleAPIKey != "" {
		if c, err := NewGeminiAPIClient(ctx, cfg.GoogleAPIKey, nil); err != nil {
			log.WithError(err).Warn("Gemini API provider unavailable")
		} else {
			reg.Register(models.ProviderGeminiAPI, c)
		}
	}

	if cfg.GoogleCloudProject != "" {
		if c, err := NewVertexGeminiClient(ctx, cfg.GoogleCloudProject, cfg.VertexRegion); err != nil {
			log.WithError(err).Warn("Vertex Gemini provider unavailable")
		} else {
			reg.Register(models.ProviderVertexGemini, c)
		}

		if c, err := NewVertexClaudeClient(ctx, cfg.GoogleCloudProject, cfg.VertexRegion); err != nil {
			log.WithError(err).Warn("Vertex Claude provider unavailable")
		} else {
			reg.Register(models.ProviderVertexClaude, c)
		}
	}

	if cfg.OpenAIAPIKey != "" {
		reg.Register(models.ProviderOpenAI, NewOpenAIClient(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		reg.Register(models.ProviderAnthropic, NewAnthropicClient(cfg.AnthropicAPIKey))
	}

	log.WithField("providers", reg.Providers()).Info("Provider registry initialized")
	return reg
}
