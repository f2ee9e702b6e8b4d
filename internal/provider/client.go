// Package provider calls hosted LLM APIs on behalf of the express service.
//
// Each upstream (Gemini API, Vertex AI Gemini, Claude on Vertex AI, OpenAI,
// Anthropic) is wrapped in a Client. The Executor runs one call with a fixed
// timeout, falls back to a safe model once, and finally returns a canned
// notice, so callers never see a provider error.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// ErrNotConfigured is returned when no client is registered for a provider,
// usually because its credentials are missing.
var ErrNotConfigured = errors.New("provider not configured")

// ErrEmptyResponse is returned when an upstream answers without any text.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// Call is a single generation request against one model.
type Call struct {
	Model     models.ModelConfig
	System    string
	User      string
	MaxTokens int
}

// maxTokens caps the requested output at the model's limit.
func (c Call) maxTokens() int {
	n := c.MaxTokens
	if n <= 0 || (c.Model.MaxTokens > 0 && n > c.Model.MaxTokens) {
		n = c.Model.MaxTokens
	}
	if n <= 0 {
		n = 2048
	}
	return n
}

// Completion is the text and token usage returned by an upstream.
type Completion struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Client generates a completion for a call.
type Client interface {
	Generate(ctx context.Context, call Call) (*Completion, error)
}

// UpstreamError is a non-2xx answer from a REST provider.
type UpstreamError struct {
	Provider   models.Provider
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Registry maps providers to their clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[models.Provider]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Provider]Client)}
}

// Register sets the client for p, replacing any previous one.
func (r *Registry) Register(p models.Provider, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[p] = c
}

// Get returns the client for p or ErrNotConfigured.
func (r *Registry) Get(p models.Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotConfigured)
	}
	return c, nil
}

// Configured reports whether a client is registered for p.
func (r *Registry) Configured(p models.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[p]
	return ok
}

// Providers lists the registered providers in sorted order.
func (r *Registry) Providers() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
