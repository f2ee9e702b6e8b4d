package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// defaultMaxResponseBodySize bounds upstream bodies; chat completions are
// well under this.
const defaultMaxResponseBodySize = 10 << 20 // 10 MB

// Option configures a REST client.
type Option func(*restClient)

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(url string) Option {
	return func(c *restClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *restClient) { c.http = hc }
}

// restClient holds what every JSON-over-HTTP adapter needs.
type restClient struct {
	provider models.Provider
	baseURL  string
	http     *http.Client
}

func newRESTClient(p models.Provider, baseURL string, opts []Option) restClient {
	c := restClient{
		provider: p,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// postJSON sends body to url and returns the response body on a 2xx status.
func (c restClient) postJSON(ctx context.Context, url string, header http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read limit+1 to distinguish "exactly at limit" from "over limit".
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}
	if len(respBody) > defaultMaxResponseBodySize {
		return nil, fmt.Errorf("upstream response too large")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = truncate(string(respBody), 512)
		}
		return nil, &UpstreamError{Provider: c.provider, StatusCode: resp.StatusCode, Body: msg}
	}
	return respBody, nil
}

// extractTokenUsage pulls input/output token counts from an OpenAI or
// Anthropic response body. Gemini usage comes typed from genai.
func extractTokenUsage(body []byte, p models.Provider) (int64, int64) {
	switch p {
	case models.ProviderOpenAI:
		return gjson.GetBytes(body, "usage.prompt_tokens").Int(),
			gjson.GetBytes(body, "usage.completion_tokens").Int()
	case models.ProviderAnthropic, models.ProviderVertexClaude:
		return gjson.GetBytes(body, "usage.input_tokens").Int(),
			gjson.GetBytes(body, "usage.output_tokens").Int()
	}
	return 0, 0
}

// extractMessagesText joins the text blocks of an Anthropic Messages response.
func extractMessagesText(body []byte) string {
	var sb strings.Builder
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
		return true
	})
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
