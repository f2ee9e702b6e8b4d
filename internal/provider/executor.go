package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/analyzer"
	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/persona"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of Execute. It always carries non-empty Content.
type Result struct {
	Content        string
	ModelUsed      string
	Provider       models.Provider
	InputTokens    int64
	OutputTokens   int64
	CostUSD        float64
	FallbackUsed   bool
	FallbackReason string
	// Errored is true when the primary call failed, regardless of whether
	// the fallback recovered.
	Errored bool
	Latency time.Duration
}

// Executor runs a prompt against a primary model with a single fallback.
type Executor struct {
	registry *Registry
	fallback models.ModelConfig
	timeout  time.Duration
}

// NewExecutor creates an Executor. A non-positive timeout uses DefaultTimeout.
func NewExecutor(registry *Registry, fallback models.ModelConfig, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{registry: registry, fallback: fallback, timeout: timeout}
}

// Fallback returns the safe model.
func (e *Executor) Fallback() models.ModelConfig { return e.fallback }

// Execute calls primary and never returns an error. On failure the safe
// model is tried once; if that fails too, a canned notice is returned. There
// is no retry beyond that single fallback.
func (e *Executor) Execute(ctx context.Context, reqID string, primary models.ModelConfig, prompt persona.Prompt, message string) Result {
	start := time.Now()
	logger := logging.WithRequest(reqID)

	comp, err := e.attempt(ctx, primary, prompt)
	if err == nil {
		return e.result(primary, prompt, comp, start)
	}
	logger.WithError(err).WithField("model", primary.ID).Warn("Primary provider call failed")
	reason := err.Error()

	if primary.ID != e.fallback.ID {
		comp, ferr := e.attempt(ctx, e.fallback, prompt)
		if ferr == nil {
			res := e.result(e.fallback, prompt, comp, start)
			res.FallbackUsed = true
			res.FallbackReason = reason
			res.Errored = true
			return res
		}
		logger.WithError(ferr).WithField("model", e.fallback.ID).Error("Fallback provider call failed")
		reason = fmt.Sprintf("%s; fallback: %s", reason, ferr.Error())
	}

	return Result{
		Content:        persona.SystemNotice(message),
		ModelUsed:      "system_notice",
		Provider:       primary.Provider,
		FallbackUsed:   true,
		FallbackReason: reason,
		Errored:        true,
		Latency:        time.Since(start),
	}
}

// attempt runs one call under the executor timeout. A panicking client is
// reported as an error.
func (e *Executor) attempt(ctx context.Context, m models.ModelConfig, prompt persona.Prompt) (comp *Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			comp = nil
			err = fmt.Errorf("%s: provider panic: %v", m.Provider, r)
		}
	}()

	client, err := e.registry.Get(m.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	comp, err = client.Generate(callCtx, Call{Model: m, System: prompt.System, User: prompt.User})
	if err != nil {
		return nil, err
	}
	if comp == nil || comp.Content == "" {
		return nil, ErrEmptyResponse
	}
	return comp, nil
}

func (e *Executor) result(m models.ModelConfig, prompt persona.Prompt, comp *Completion, start time.Time) Result {
	in, out := comp.InputTokens, comp.OutputTokens
	if in == 0 && out == 0 {
		in = int64(analyzer.CountTokens(prompt.Flatten()))
		out = int64(analyzer.CountTokens(comp.Content))
	}
	return Result{
		Content:      comp.Content,
		ModelUsed:    m.ID,
		Provider:     m.Provider,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      EstimateCost(m, in, out),
		Latency:      time.Since(start),
	}
}

// EstimateCost prices a call at the model's flat per-1k-token rate.
func EstimateCost(m models.ModelConfig, inputTokens, outputTokens int64) float64 {
	return float64(inputTokens+outputTokens) / 1000 * m.CostPer1KTokens
}
