// Package express wires the analyzer, router, persona, provider executor and
// metrics into the chat pipeline served by the HTTP API.
//
// A Service is constructed once in main and injected into the handlers.
// Decisions and learning history recorded here are reported by Status but
// are never consulted when routing.
package express

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/analyzer"
	"github.com/Gemini-Podplai/mumabear/internal/budget"
	"github.com/Gemini-Podplai/mumabear/internal/decisions"
	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/metrics"
	"github.com/Gemini-Podplai/mumabear/internal/persona"
	"github.com/Gemini-Podplai/mumabear/internal/provider"
	"github.com/Gemini-Podplai/mumabear/internal/router"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	ErrMessageRequired    = errors.New("message is required")
	ErrInvalidAgenticMode = errors.New("invalid agentic mode")
	ErrBudgetExceeded     = budget.ErrBudgetExceeded
)

// AgenticMode controls how much autonomy the service has.
type AgenticMode string

const (
	// AgenticFull routes autonomously and records decisions and learning history.
	AgenticFull AgenticMode = "full"
	// AgenticRoutingOnly routes autonomously without recording.
	AgenticRoutingOnly AgenticMode = "routing_only"
	// AgenticDisabled routes every request to the standard model.
	AgenticDisabled AgenticMode = "disabled"
)

// ParseAgenticMode validates s.
func ParseAgenticMode(s string) (AgenticMode, error) {
	switch m := AgenticMode(s); m {
	case AgenticFull, AgenticRoutingOnly, AgenticDisabled:
		return m, nil
	}
	return "", ErrInvalidAgenticMode
}

func (m AgenticMode) autonomous() bool { return m != AgenticDisabled }
func (m AgenticMode) learning() bool   { return m == AgenticFull }

// RequestStore persists request metadata. database.DB satisfies it.
type RequestStore interface {
	InsertRequest(ctx context.Context, r *models.RequestRecord) error
}

// Options configures a Service. Router, Executor, Recorder and Decisions are
// required; the rest may be nil.
type Options struct {
	Router        *router.Router
	Executor      *provider.Executor
	Registry      *provider.Registry
	Recorder      *metrics.Recorder
	Decisions     *decisions.Log
	Collectors    *metrics.Collectors
	Budget        *budget.Enforcer
	Store         RequestStore
	MaxConcurrent int64
	// StoreTimeout bounds each asynchronous insert. Defaults to 5s.
	StoreTimeout time.Duration
}

// ChatRequest is one chat turn.
type ChatRequest struct {
	RequestID string
	Message   string
	UserID    string
	Variant   string
	Mode      string
	Model     string
	Context   map[string]any
}

// ChatResponse is the outcome of Chat. Response is never empty.
type ChatResponse struct {
	RequestID       string
	Response        string
	ModelUsed       string
	Provider        models.Provider
	Variant         string
	FallbackUsed    bool
	FallbackReason  string
	Decision        models.RoutingDecision
	Analysis        analyzer.Analysis
	InputTokens     int64
	OutputTokens    int64
	CostUSD         float64
	Latency         time.Duration
	PerformanceTier string
}

// ModelPerformance is the learning summary reported per model.
type ModelPerformance struct {
	AvgResponseTimeMs float64 `json:"avg_response_time"`
	SuccessRate       float64 `json:"success_rate"`
	Healthy           bool    `json:"healthy"`
	Samples           int     `json:"samples"`
}

// Status is the agentic status payload.
type Status struct {
	AutonomousModeEnabled bool                        `json:"autonomous_mode_enabled"`
	LearningEnabled       bool                        `json:"learning_enabled"`
	AgenticMode           AgenticMode                 `json:"agentic_mode"`
	PerformanceMetrics    metrics.Snapshot            `json:"performance_metrics"`
	RecentDecisions       []decisions.Decision        `json:"recent_decisions"`
	TotalDecisions        int64                       `json:"total_decisions"`
	AvailableModels       []string                    `json:"available_models"`
	ModelPerformance      map[string]ModelPerformance `json:"model_performance"`
}

// Configuration is returned by Configure.
type Configuration struct {
	Mode             AgenticMode `json:"mode"`
	Message          string      `json:"message"`
	AutonomousMode   bool        `json:"autonomous_mode"`
	LearningEnabled  bool        `json:"learning_enabled"`
	CostOptimization bool        `json:"cost_optimization"`
}

var configureMessages = map[AgenticMode]string{
	AgenticFull:        "Full agentic mode enabled. Mama Bear has autonomous control over routing, optimization and learning.",
	AgenticRoutingOnly: "Routing-only agentic mode enabled. Mama Bear will make autonomous routing decisions.",
	AgenticDisabled:    "Agentic mode disabled. Mama Bear will use manual routing decisions.",
}

const (
	expressTierThreshold = 500 * time.Millisecond
	recentDecisionWindow = 24 * time.Hour
	recentDecisionLimit  = 10
	defaultMaxConcurrent = 64
	defaultStoreTimeout  = 5 * time.Second
)

// Service runs the chat pipeline. It is safe for concurrent use.
type Service struct {
	router    *router.Router
	executor  *provider.Executor
	registry  *provider.Registry
	recorder  *metrics.Recorder
	decisions *decisions.Log
	prom      *metrics.Collectors
	budget    *budget.Enforcer
	store     RequestStore

	sem          *semaphore.Weighted
	storeTimeout time.Duration
	storeWG      sync.WaitGroup

	mu   sync.RWMutex
	mode AgenticMode

	now func() time.Time
}

// NewService creates a Service in full agentic mode.
func NewService(opts Options) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Decisions == nil {
		opts.Decisions = decisions.NewLog(decisions.DefaultCapacity)
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewRecorder(opts.Collectors)
	}
	return &Service{
		router:       opts.Router,
		executor:     opts.Executor,
		registry:     opts.Registry,
		recorder:     opts.Recorder,
		decisions:    opts.Decisions,
		prom:         opts.Collectors,
		budget:       opts.Budget,
		store:        opts.Store,
		sem:          semaphore.NewWeighted(opts.MaxConcurrent),
		storeTimeout: opts.StoreTimeout,
		mode:         AgenticFull,
		now:          time.Now,
	}
}

// AgenticMode returns the current mode.
func (s *Service) AgenticMode() AgenticMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Configure switches the agentic mode.
func (s *Service) Configure(mode string) (Configuration, error) {
	m, err := ParseAgenticMode(mode)
	if err != nil {
		return Configuration{}, err
	}

	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()

	ok := true
	s.decisions.Record(decisions.Decision{
		Type:            decisions.InfrastructureScaling,
		Reasoning:       fmt.Sprintf("Agentic mode changed to: %s", m),
		Action:          "Updated autonomous capabilities configuration",
		ExpectedBenefit: "Control level matches current needs",
		Success:         &ok,
	})
	log.WithField("mode", m).Info("Agentic mode configured")

	return Configuration{
		Mode:             m,
		Message:          configureMessages[m],
		AutonomousMode:   m.autonomous(),
		LearningEnabled:  m.learning(),
		CostOptimization: m.autonomous(),
	}, nil
}

// Chat runs one request through the pipeline. Provider failures never
// surface as errors; the response then carries FallbackUsed.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMessageRequired
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	logger := logging.WithRequest(req.RequestID)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("express: waiting for capacity: %w", err)
	}
	defer s.sem.Release(1)
	if s.prom != nil {
		s.prom.InFlight.Inc()
		defer s.prom.InFlight.Dec()
	}

	if err := s.checkBudget(ctx, req.UserID); err != nil {
		return nil, err
	}

	analysis := analyzer.Analyze(req.Message, req.Context)
	mode := s.AgenticMode()

	decision := s.router.Route(router.Request{
		Message:        req.Message,
		Analysis:       analysis,
		Mode:           req.Mode,
		RequestedModel: req.Model,
		Autonomous:     mode.autonomous(),
	})
	decision.ID = uuid.New().String()
	decision.Timestamp = s.now()

	primary, ok := s.router.Catalog().Get(decision.ModelID)
	if !ok {
		primary = s.executor.Fallback()
	}

	logger.WithFields(log.Fields{
		"kind":       decision.Kind,
		"model":      primary.ID,
		"complexity": analysis.Complexity,
		"urgency":    analysis.Urgency,
	}).Debug("Routing decision")

	prompt := persona.Build(req.Variant, req.Message, req.Context)
	res := s.executor.Execute(ctx, req.RequestID, primary, prompt, req.Message)

	// Health stays on the primary; provider and price follow the model that answered.
	served := s.servedModel(primary, res)
	sample := metrics.Sample{
		ModelID:         primary.ID,
		Provider:        served.Provider,
		Kind:            decision.Kind,
		LatencyMs:       res.Latency.Milliseconds(),
		CostUSD:         res.CostUSD,
		CostPer1KTokens: served.CostPer1KTokens,
		FallbackUsed:    res.FallbackUsed,
		Errored:         res.Errored,
		ExpressMode:     primary.ExpressMode,
		At:              s.now(),
	}
	s.recorder.Observe(sample)

	if mode.learning() {
		s.recorder.RecordHistory(sample)
		s.recordDecisions(decision, primary, res)
	}

	resp := &ChatResponse{
		RequestID:       req.RequestID,
		Response:        res.Content,
		ModelUsed:       res.ModelUsed,
		Provider:        res.Provider,
		Variant:         prompt.Variant,
		FallbackUsed:    res.FallbackUsed,
		FallbackReason:  res.FallbackReason,
		Decision:        decision,
		Analysis:        analysis,
		InputTokens:     res.InputTokens,
		OutputTokens:    res.OutputTokens,
		CostUSD:         res.CostUSD,
		Latency:         res.Latency,
		PerformanceTier: performanceTier(res),
	}

	s.recordSpend(ctx, req.UserID, res.CostUSD)
	s.persist(req, resp, served)
	return resp, nil
}

// servedModel returns the catalog entry of the model that produced res.
func (s *Service) servedModel(primary models.ModelConfig, res provider.Result) models.ModelConfig {
	if res.ModelUsed == primary.ID {
		return primary
	}
	if m, ok := s.router.Catalog().Get(res.ModelUsed); ok {
		return m
	}
	if fb := s.executor.Fallback(); fb.ID == res.ModelUsed {
		return fb
	}
	// The system notice is not a catalog model; it is attributed to the primary.
	return primary
}

func performanceTier(res provider.Result) string {
	switch {
	case res.FallbackUsed:
		return "fallback"
	case res.Latency < expressTierThreshold:
		return "express"
	default:
		return "standard"
	}
}

func (s *Service) checkBudget(ctx context.Context, userID string) error {
	if s.budget == nil || userID == "" {
		return nil
	}
	// Spend is charged after the call, so the check only rejects users who
	// are already at their limit.
	allowed, err := s.budget.CheckBudget(ctx, budget.ScopeUser, userID, 0)
	if err != nil {
		return fmt.Errorf("express: budget check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w for user %s", ErrBudgetExceeded, userID)
	}
	return nil
}

func (s *Service) recordSpend(ctx context.Context, userID string, cost float64) {
	if s.budget == nil || userID == "" || cost <= 0 {
		return
	}
	if err := s.budget.RecordSpend(context.WithoutCancel(ctx), budget.ScopeUser, userID, cost); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Failed to record spend")
	}
}

// recordDecisions logs the routing choice and, when the model has been slow
// lately, a performance note. Neither is read back by the router.
func (s *Service) recordDecisions(d models.RoutingDecision, m models.ModelConfig, res provider.Result) {
	success := !res.Errored
	s.decisions.Record(decisions.Decision{
		Type:      decisions.ModelSelection,
		Reasoning: d.Reasoning,
		Action:    fmt.Sprintf("Route to %s (%s)", m.ID, d.Kind),
		ExpectedBenefit: fmt.Sprintf("%.1fx speed at %.1fx cost",
			d.ExpectedSpeedImprovement, d.ExpectedCostMultiplier),
		Success: &success,
	})

	if s.recorder.Underperforming(m.ID, m.AvgResponseTimeMs) {
		stats, _ := s.recorder.ModelStats(m.ID)
		s.decisions.Record(decisions.Decision{
			Type: decisions.PerformanceEnhancement,
			Reasoning: fmt.Sprintf("%s averaged %.0fms over its last requests against a %dms target",
				m.ID, stats.AvgLatencyLast10, m.AvgResponseTimeMs),
			Action:          "Flagged model as underperforming",
			ExpectedBenefit: "Operators can review routing for slow models",
		})
	}
}

func (s *Service) persist(req ChatRequest, resp *ChatResponse, served models.ModelConfig) {
	if s.store == nil {
		return
	}

	total := resp.InputTokens + resp.OutputTokens
	savings := float64(total) / 1000 * (metrics.BaselineCostPer1K - served.CostPer1KTokens)
	if savings < 0 {
		savings = 0
	}
	rec := &models.RequestRecord{
		ID:           resp.RequestID,
		UserID:       req.UserID,
		Variant:      resp.Variant,
		Mode:         router.NormalizeMode(req.Mode),
		RoutingKind:  resp.Decision.Kind,
		Provider:     resp.Provider,
		Model:        resp.ModelUsed,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  total,
		CostUSD:      resp.CostUSD,
		LatencyMs:    resp.Latency.Milliseconds(),
		FallbackUsed: resp.FallbackUsed,
		Complexity:   resp.Analysis.Complexity,
		SavingsUSD:   savings,
		Timestamp:    resp.Decision.Timestamp,
	}

	s.storeWG.Add(1)
	go func() {
		defer s.storeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
		defer cancel()
		if err := s.store.InsertRequest(ctx, rec); err != nil {
			logging.WithRequest(rec.ID).WithError(err).Warn("Failed to persist request record")
		}
	}()
}

// Status reports the agentic state, counters and learning summary.
func (s *Service) Status() Status {
	mode := s.AgenticMode()

	perf := make(map[string]ModelPerformance)
	for model, st := range s.recorder.AllModelStats() {
		if st.Samples == 0 {
			continue
		}
		perf[model] = ModelPerformance{
			AvgResponseTimeMs: st.AvgLatencyLast10,
			SuccessRate:       st.SuccessRate,
			Healthy:           st.Healthy,
			Samples:           st.Samples,
		}
	}

	recent := s.decisions.Recent(s.now().Add(-recentDecisionWindow), recentDecisionLimit)
	if recent == nil {
		recent = []decisions.Decision{}
	}

	return Status{
		AutonomousModeEnabled: mode.autonomous(),
		LearningEnabled:       mode.learning(),
		AgenticMode:           mode,
		PerformanceMetrics:    s.recorder.Snapshot(),
		RecentDecisions:       recent,
		TotalDecisions:        s.decisions.Total(),
		AvailableModels:       s.router.Catalog().IDs(),
		ModelPerformance:      perf,
	}
}

// ModelInfo describes a catalog entry for the models endpoint.
type ModelInfo struct {
	Name         string          `json:"name"`
	Provider     models.Provider `json:"provider"`
	Capabilities []string        `json:"capabilities"`
	ExpressMode  bool            `json:"express_mode"`
	Configured   bool            `json:"configured"`
	Healthy      bool            `json:"healthy"`
}

// Models lists the catalog with provider availability.
func (s *Service) Models() map[string]ModelInfo {
	out := make(map[string]ModelInfo)
	for _, m := range s.router.Catalog().All() {
		out[m.ID] = ModelInfo{
			Name:         m.ModelName,
			Provider:     m.Provider,
			Capabilities: m.Capabilities,
			ExpressMode:  m.ExpressMode,
			Configured:   s.registry != nil && s.registry.Configured(m.Provider),
			Healthy:      s.recorder.Healthy(m.ID),
		}
	}
	return out
}

// Route returns the decision Chat would make for req without calling a
// provider or recording anything.
func (s *Service) Route(req ChatRequest) (models.RoutingDecision, analyzer.Analysis) {
	analysis := analyzer.Analyze(req.Message, req.Context)
	d := s.router.Route(router.Request{
		Message:        req.Message,
		Analysis:       analysis,
		Mode:           req.Mode,
		RequestedModel: req.Model,
		Autonomous:     s.AgenticMode().autonomous(),
	})
	return d, analysis
}

// ExportDecisions renders the retained decision log as JSON, oldest first.
func (s *Service) ExportDecisions() ([]byte, error) {
	return s.decisions.Export()
}

// Close waits for pending record inserts to finish.
func (s *Service) Close() {
	s.storeWG.Wait()
}
