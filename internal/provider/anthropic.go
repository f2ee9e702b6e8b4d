package provider

import (
	"context"
	"net/http"

	"github.com/tidwall/sjson"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API directly.
type AnthropicClient struct {
	restClient
	apiKey string
}

// NewAnthropicClient creates a client for the direct Anthropic API.
func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	return &AnthropicClient{
		restClient: newRESTClient(models.ProviderAnthropic, anthropicBaseURL, opts),
		apiKey:     apiKey,
	}
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, call Call) (*Completion, error) {
	body, err := buildMessagesBody(call, "model", call.Model.ModelName)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("X-API-Key", c.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	resp, err := c.postJSON(ctx, c.baseURL+"/v1/messages", header, body)
	if err != nil {
		return nil, err
	}
	return parseMessagesResponse(resp, c.provider)
}

// buildMessagesBody renders an Anthropic Messages request. key/value sets the
// field that differs between the direct API (model) and Vertex AI
// (anthropic_version).
func buildMessagesBody(call Call, key, value string) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, key, value); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "max_tokens", call.maxTokens()); err != nil {
		return nil, err
	}
	if call.System != "" {
		if body, err = sjson.SetBytes(body, "system", call.System); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetBytes(body, "messages.0.role", "user"); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "messages.0.content", call.User)
}

func parseMessagesResponse(body []byte, p models.Provider) (*Completion, error) {
	text := extractMessagesText(body)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	in, out := extractTokenUsage(body, p)
	return &Completion{Content: text, InputTokens: in, OutputTokens: out}, nil
}
