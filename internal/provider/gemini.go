package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// GeminiClient serves both the Gemini API (API key) and Vertex AI Gemini
// (project + region) through the genai SDK.
type GeminiClient struct {
	client   *genai.Client
	provider models.Provider
}

// NewGeminiAPIClient creates a client for the public Gemini API.
func NewGeminiAPIClient(ctx context.Context, apiKey string, httpOpts *genai.HTTPOptions) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api: %w: GOOGLE_API_KEY is empty", ErrNotConfigured)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if httpOpts != nil {
		cfg.HTTPOptions = *httpOpts
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GeminiClient{client: client, provider: models.ProviderGeminiAPI}, nil
}

// NewVertexGeminiClient creates a client for Gemini models on Vertex AI.
func NewVertexGeminiClient(ctx context.Context, project, region string) (*GeminiClient, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex gemini: %w: GOOGLE_CLOUD_PROJECT is empty", ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex Gemini client: %w", err)
	}
	return &GeminiClient{client: client, provider: models.ProviderVertexGemini}, nil
}

// Generate implements Client.
func (g *GeminiClient) Generate(ctx context.Context, call Call) (*Completion, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(call.maxTokens()),
	}
	if call.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(call.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, call.Model.ModelName, genai.Text(call.User), cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.provider, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	out := &Completion{Content: text}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
