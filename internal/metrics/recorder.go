// Package metrics keeps the in-process performance counters reported by the
// agentic status endpoint and mirrors them to Prometheus.
//
// Nothing in this package is read by the router. Learning history and model
// health are reported, never fed back into routing decisions.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

const (
	// BaselineCostPer1K is the Claude Opus rate savings are measured against.
	BaselineCostPer1K = 0.01

	historyLimit         = 100
	recentWindow         = 10
	unhealthyAfterErrors = 3
	underperformFactor   = 1.5
)

// Sample is one completed request.
type Sample struct {
	ModelID         string
	Provider        models.Provider
	Kind            string
	LatencyMs       int64
	CostUSD         float64
	CostPer1KTokens float64
	FallbackUsed    bool
	Errored         bool
	ExpressMode     bool
	At              time.Time
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	RequestsProcessed int64            `json:"requests_processed"`
	AvgResponseTimeMs float64          `json:"average_response_time_ms"`
	CostPerRequest    float64          `json:"cost_per_request"`
	TotalCostUSD      float64          `json:"total_cost_usd"`
	RequestsToday     int64            `json:"requests_today"`
	CostSavingsToday  float64          `json:"cost_savings_today"`
	ErrorCount        int64            `json:"error_count"`
	ErrorRate         float64          `json:"error_rate"`
	FallbackCount     int64            `json:"fallback_count"`
	ExpressModeUsage  int64            `json:"express_mode_usage"`
	ProviderCounts    map[string]int64 `json:"provider_counts"`
}

// ModelStats summarizes the learning history of one model.
type ModelStats struct {
	Samples           int     `json:"samples"`
	AvgLatencyLast10  float64 `json:"avg_latency_ms_last_10"`
	SuccessRate       float64 `json:"success_rate"`
	Healthy           bool    `json:"healthy"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
}

type historyEntry struct {
	latencyMs int64
	success   bool
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	snap Snapshot
	day  string

	history     map[string][]historyEntry
	consecutive map[string]int

	prom *Collectors
	now  func() time.Time
}

// NewRecorder creates a Recorder. prom may be nil.
func NewRecorder(prom *Collectors) *Recorder {
	return &Recorder{
		snap:        Snapshot{ProviderCounts: make(map[string]int64)},
		history:     make(map[string][]historyEntry),
		consecutive: make(map[string]int),
		prom:        prom,
		now:         time.Now,
	}
}

// Observe folds a completed request into the counters.
func (r *Recorder) Observe(s Sample) {
	if s.At.IsZero() {
		s.At = r.now()
	}

	r.mu.Lock()
	n := float64(r.snap.RequestsProcessed)
	r.snap.AvgResponseTimeMs = (r.snap.AvgResponseTimeMs*n + float64(s.LatencyMs)) / (n + 1)
	r.snap.RequestsProcessed++
	r.snap.ProviderCounts[string(s.Provider)]++
	r.snap.CostPerRequest = s.CostUSD
	r.snap.TotalCostUSD += s.CostUSD

	if s.FallbackUsed {
		r.snap.FallbackCount++
	}
	if s.Errored {
		r.snap.ErrorCount++
		r.consecutive[s.ModelID]++
	} else {
		r.consecutive[s.ModelID] = 0
	}
	if s.ExpressMode {
		r.snap.ExpressModeUsage++
	}
	r.snap.ErrorRate = float64(r.snap.ErrorCount) / float64(r.snap.RequestsProcessed)

	if day := s.At.Local().Format("2006-01-02"); day != r.day {
		r.day = day
		r.snap.RequestsToday = 0
		r.snap.CostSavingsToday = 0
	}
	r.snap.RequestsToday++
	r.snap.CostSavingsToday += BaselineCostPer1K - s.CostPer1KTokens
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.Requests.WithLabelValues(string(s.Provider), s.Kind, strconv.FormatBool(s.FallbackUsed)).Inc()
		r.prom.RequestDuration.WithLabelValues(string(s.Provider)).Observe(float64(s.LatencyMs) / 1000)
		if s.CostUSD > 0 {
			r.prom.CostUSD.Add(s.CostUSD)
		}
	}
}

// RecordHistory appends a sample to the per-model learning history. Only the
// most recent samples per model are kept.
func (r *Recorder) RecordHistory(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := append(r.history[s.ModelID], historyEntry{latencyMs: s.LatencyMs, success: !s.Errored})
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	r.history[s.ModelID] = h
}

// Snapshot returns a copy of the counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.snap
	if r.day != "" && r.day != r.now().Local().Format("2006-01-02") {
		out.RequestsToday = 0
		out.CostSavingsToday = 0
	}
	out.ProviderCounts = make(map[string]int64, len(r.snap.ProviderCounts))
	for k, v := range r.snap.ProviderCounts {
		out.ProviderCounts[k] = v
	}
	return out
}

// ModelStats returns the learning summary for model.
func (r *Recorder) ModelStats(model string) (ModelStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked(model)
}

// AllModelStats returns the summary of every model seen so far.
func (r *Recorder) AllModelStats() map[string]ModelStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ModelStats, len(r.history))
	for model := range r.history {
		out[model], _ = r.statsLocked(model)
	}
	for model := range r.consecutive {
		if _, ok := out[model]; !ok {
			out[model], _ = r.statsLocked(model)
		}
	}
	return out
}

// Underperforming reports whether the average latency of the last ten
// samples exceeds 1.5x targetMs.
func (r *Recorder) Underperforming(model string, targetMs int64) bool {
	stats, ok := r.ModelStats(model)
	if !ok || stats.Samples == 0 || targetMs <= 0 {
		return false
	}
	return stats.AvgLatencyLast10 > underperformFactor*float64(targetMs)
}

// Healthy reports whether model has fewer than three consecutive errors.
func (r *Recorder) Healthy(model string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutive[model] < unhealthyAfterErrors
}

func (r *Recorder) statsLocked(model string) (ModelStats, bool) {
	h, seenHistory := r.history[model]
	errs, seenHealth := r.consecutive[model]
	if !seenHistory && !seenHealth {
		return ModelStats{Healthy: true}, false
	}

	stats := ModelStats{
		Samples:           len(h),
		Healthy:           errs < unhealthyAfterErrors,
		ConsecutiveErrors: errs,
	}
	if len(h) == 0 {
		return stats, true
	}

	recent := h
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	var sum int64
	for _, e := range recent {
		sum += e.latencyMs
	}
	stats.AvgLatencyLast10 = float64(sum) / float64(len(recent))

	ok := 0
	for _, e := range h {
		if e.success {
			ok++
		}
	}
	stats.SuccessRate = float64(ok) / float64(len(h))
	return stats, true
}
