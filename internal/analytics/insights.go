// Package analytics turns persisted request records into cost insights.
//
// The engine detects per-user cost spikes, suggests cheaper catalog siblings
// for expensive models, and flags models whose requests fall back too often.
// Insights are advisory; the router never reads them.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/router"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsightType categorizes the kind of insight generated.
type InsightType string

const (
	InsightCostSpike    InsightType = "cost_spike"
	InsightModelSwitch  InsightType = "model_switch"
	InsightFallbackRate InsightType = "fallback_rate"
)

// Severity indicates the urgency of an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	// SpikeThreshold is the multiple of the rolling average that counts as a spike.
	SpikeThreshold = 2.0
	// criticalSpike escalates a spike to critical.
	criticalSpike = 5.0
	// FallbackRateThreshold flags models that fall back on more than this
	// share of requests.
	FallbackRateThreshold = 0.2
	// minFallbackSamples avoids flagging models with too few requests.
	minFallbackSamples = 10
	// downgradeShare is the share of a model's spend assumed movable to a
	// cheaper sibling.
	downgradeShare = 0.6
	// minDowngradeSpend ignores models with negligible weekly spend.
	minDowngradeSpend = 1.0
)

// Insight represents an actionable recommendation or alert.
type Insight struct {
	ID              string      `json:"id"`
	Type            InsightType `json:"type"`
	Severity        Severity    `json:"severity"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	EstimatedSaving float64     `json:"estimated_saving"`
	AffectedEntity  string      `json:"affected_entity"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Report is a summary of usage and costs over a time period.
type Report struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	TotalCostUSD    float64   `json:"total_cost_usd"`
	TotalRequests   int64     `json:"total_requests"`
	TotalTokens     int64     `json:"total_tokens"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	FallbackCount   int64     `json:"fallback_count"`
	TotalSavingsUSD float64   `json:"total_savings_usd"`
	Insights        []Insight `json:"insights,omitempty"`
}

// InsightsEngine generates cost insights from the express_requests table.
type InsightsEngine struct {
	pool    *pgxpool.Pool
	catalog *router.Catalog
	now     func() time.Time
}

// NewInsightsEngine creates an InsightsEngine. A nil pool yields no insights.
func NewInsightsEngine(pool *pgxpool.Pool, catalog *router.Catalog) *InsightsEngine {
	if catalog == nil {
		catalog = router.DefaultCatalog()
	}
	return &InsightsEngine{pool: pool, catalog: catalog, now: time.Now}
}

// All runs every detector and concatenates the results.
func (e *InsightsEngine) All(ctx context.Context) ([]Insight, error) {
	var out []Insight
	for _, detect := range []func(context.Context) ([]Insight, error){
		e.DetectSpikes, e.RecommendModelSwitches, e.DetectFallbackRates,
	} {
		insights, err := detect(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, insights...)
	}
	return out, nil
}

// DetectSpikes finds users whose daily spend exceeded twice their 7-day
// rolling average in the last two weeks.
func (e *InsightsEngine) DetectSpikes(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		WITH daily_costs AS (
			SELECT DATE(timestamp) AS day, user_id, SUM(cost_usd) AS daily_cost
			FROM express_requests
			WHERE timestamp > NOW() - INTERVAL '14 days' AND user_id <> ''
			GROUP BY DATE(timestamp), user_id
		),
		rolling_avg AS (
			SELECT day, user_id, daily_cost,
				AVG(daily_cost) OVER (
					PARTITION BY user_id ORDER BY day
					ROWS BETWEEN 7 PRECEDING AND 1 PRECEDING
				) AS avg_cost
			FROM daily_costs
		)
		SELECT day, user_id, daily_cost, avg_cost
		FROM rolling_avg
		WHERE avg_cost > 0 AND daily_cost > avg_cost * $1
		ORDER BY day DESC
		LIMIT 20
	`, SpikeThreshold)
	if err != nil {
		return nil, fmt.Errorf("detecting spikes: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var day time.Time
		var userID string
		var dailyCost, avgCost float64
		if err := rows.Scan(&day, &userID, &dailyCost, &avgCost); err != nil {
			return nil, fmt.Errorf("scanning spike row: %w", err)
		}
		insights = append(insights, spikeInsight(day, userID, dailyCost, avgCost, e.now()))
	}
	return insights, rows.Err()
}

func spikeInsight(day time.Time, userID string, dailyCost, avgCost float64, now time.Time) Insight {
	multiple := dailyCost / avgCost
	severity := SeverityWarning
	if multiple >= criticalSpike {
		severity = SeverityCritical
	}
	return Insight{
		ID:       fmt.Sprintf("spike-%s-%s", userID, day.Format("2006-01-02")),
		Type:     InsightCostSpike,
		Severity: severity,
		Title:    fmt.Sprintf("Cost spike detected for user %s", userID),
		Description: fmt.Sprintf(
			"On %s, user %s spent $%.4f, which is %.1fx the 7-day rolling average of $%.4f.",
			day.Format("Jan 2"), userID, dailyCost, multiple, avgCost,
		),
		EstimatedSaving: roundCents(dailyCost - avgCost),
		AffectedEntity:  userID,
		CreatedAt:       now,
	}
}

// RecommendModelSwitches suggests the cheapest same-provider catalog sibling
// for models with meaningful spend in the last week.
func (e *InsightsEngine) RecommendModelSwitches(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		SELECT model, COUNT(*), SUM(cost_usd)
		FROM express_requests
		WHERE timestamp > NOW() - INTERVAL '7 days'
		GROUP BY model
		HAVING SUM(cost_usd) > $1
		ORDER BY SUM(cost_usd) DESC
	`, minDowngradeSpend)
	if err != nil {
		return nil, fmt.Errorf("querying model usage: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var model string
		var count int64
		var totalCost float64
		if err := rows.Scan(&model, &count, &totalCost); err != nil {
			return nil, fmt.Errorf("scanning model usage: %w", err)
		}
		if in, ok := e.downgradeInsight(model, count, totalCost); ok {
			insights = append(insights, in)
		}
	}
	return insights, rows.Err()
}

func (e *InsightsEngine) downgradeInsight(modelID string, count int64, totalCost float64) (Insight, bool) {
	current, ok := e.catalog.Get(modelID)
	if !ok || current.CostPer1KTokens <= 0 {
		return Insight{}, false
	}
	alts := e.catalog.CheaperAlternatives(modelID)
	if len(alts) == 0 {
		return Insight{}, false
	}
	cheapest := alts[0]

	ratio := 1 - cheapest.CostPer1KTokens/current.CostPer1KTokens
	saving := totalCost * downgradeShare * ratio
	return Insight{
		ID:       fmt.Sprintf("switch-%s", modelID),
		Type:     InsightModelSwitch,
		Severity: SeverityInfo,
		Title:    fmt.Sprintf("Consider routing simpler %s traffic to %s", modelID, cheapest.ID),
		Description: fmt.Sprintf(
			"%s cost $%.2f over %d requests this week. %s is %.0f%% cheaper per 1k tokens.",
			modelID, totalCost, count, cheapest.ID, ratio*100,
		),
		EstimatedSaving: roundCents(saving),
		AffectedEntity:  modelID,
		CreatedAt:       e.now(),
	}, true
}

// DetectFallbackRates flags models whose primary call failed on more than
// FallbackRateThreshold of requests in the last day.
func (e *InsightsEngine) DetectFallbackRates(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		SELECT routing_kind, COUNT(*), COUNT(*) FILTER (WHERE fallback_used)
		FROM express_requests
		WHERE timestamp > NOW() - INTERVAL '1 day'
		GROUP BY routing_kind
	`)
	if err != nil {
		return nil, fmt.Errorf("querying fallback rates: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var kind string
		var total, fallbacks int64
		if err := rows.Scan(&kind, &total, &fallbacks); err != nil {
			return nil, fmt.Errorf("scanning fallback row: %w", err)
		}
		if in, ok := fallbackInsight(kind, total, fallbacks, e.now()); ok {
			insights = append(insights, in)
		}
	}
	return insights, rows.Err()
}

func fallbackInsight(kind string, total, fallbacks int64, now time.Time) (Insight, bool) {
	if total < minFallbackSamples {
		return Insight{}, false
	}
	rate := float64(fallbacks) / float64(total)
	if rate <= FallbackRateThreshold {
		return Insight{}, false
	}
	severity := SeverityWarning
	if rate > 0.5 {
		severity = SeverityCritical
	}
	return Insight{
		ID:       fmt.Sprintf("fallback-%s", kind),
		Type:     InsightFallbackRate,
		Severity: severity,
		Title:    fmt.Sprintf("High fallback rate for %s routes", kind),
		Description: fmt.Sprintf(
			"%d of %d %s requests (%.0f%%) in the last day fell back to the safe model. Check provider credentials and quotas.",
			fallbacks, total, kind, rate*100,
		),
		AffectedEntity: kind,
		CreatedAt:      now,
	}, true
}

// GenerateReport summarizes usage between from and to, with current insights.
func (e *InsightsEngine) GenerateReport(ctx context.Context, from, to time.Time) (*Report, error) {
	if e.pool == nil {
		return nil, nil
	}

	report := Report{From: from, To: to}
	err := e.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(cost_usd), 0),
			COUNT(*),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(AVG(latency_ms), 0),
			COUNT(*) FILTER (WHERE fallback_used),
			COALESCE(SUM(savings_usd), 0)
		FROM express_requests
		WHERE timestamp >= $1 AND timestamp <= $2
	`, from, to).Scan(
		&report.TotalCostUSD,
		&report.TotalRequests,
		&report.TotalTokens,
		&report.AvgLatencyMs,
		&report.FallbackCount,
		&report.TotalSavingsUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	if report.Insights, err = e.All(ctx); err != nil {
		return nil, err
	}
	return &report, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
