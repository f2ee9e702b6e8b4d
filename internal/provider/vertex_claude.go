package provider

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

const (
	cloudPlatformScope   = "https://www.googleapis.com/auth/cloud-platform"
	vertexAnthropicVer   = "vertex-2023-10-16"
	vertexEndpointFormat = "https://%s-aiplatform.googleapis.com"
)

// VertexClaudeClient calls Claude models hosted in Vertex AI Model Garden
// through the rawPredict endpoint.
type VertexClaudeClient struct {
	restClient
	project string
	region  string
}

// NewVertexClaudeClient authenticates with Application Default Credentials.
// Options are applied after the OAuth client is installed, so a test can
// replace both the base URL and the HTTP client.
func NewVertexClaudeClient(ctx context.Context, project, region string, opts ...Option) (*VertexClaudeClient, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex claude: %w: GOOGLE_CLOUD_PROJECT is empty", ErrNotConfigured)
	}
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("vertex claude: failed to load google credentials: %w", err)
	}
	all := append([]Option{WithHTTPClient(oauth2.NewClient(ctx, ts))}, opts...)
	return newVertexClaudeClient(project, region, all...), nil
}

// NewVertexClaudeClientWithTokenSource uses ts for bearer tokens.
func NewVertexClaudeClientWithTokenSource(ctx context.Context, project, region string, ts oauth2.TokenSource, opts ...Option) *VertexClaudeClient {
	all := append([]Option{WithHTTPClient(oauth2.NewClient(ctx, ts))}, opts...)
	return newVertexClaudeClient(project, region, all...)
}

func newVertexClaudeClient(project, region string, opts ...Option) *VertexClaudeClient {
	return &VertexClaudeClient{
		restClient: newRESTClient(models.ProviderVertexClaude, fmt.Sprintf(vertexEndpointFormat, region), opts),
		project:    project,
		region:     region,
	}
}

// Generate implements Client.
func (c *VertexClaudeClient) Generate(ctx context.Context, call Call) (*Completion, error) {
	body, err := buildMessagesBody(call, "anthropic_version", vertexAnthropicVer)
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, c.endpoint(call.Model.ModelName), http.Header{}, body)
	if err != nil {
		return nil, err
	}
	return parseMessagesResponse(resp, c.provider)
}

func (c *VertexClaudeClient) endpoint(model string) string {
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
		c.baseURL, c.project, c.region, model)
}
