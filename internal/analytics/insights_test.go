package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/Gemini-Podplai/mumabear/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

func TestSpikeInsight_Severity(t *testing.T) {
	day := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		daily, avg float64
		want       Severity
	}{
		{daily: 3, avg: 1, want: SeverityWarning},
		{daily: 4.9, avg: 1, want: SeverityWarning},
		{daily: 5, avg: 1, want: SeverityCritical},
		{daily: 20, avg: 2, want: SeverityCritical},
	}
	for _, tt := range tests {
		in := spikeInsight(day, "u1", tt.daily, tt.avg, fixedNow)
		assert.Equal(t, tt.want, in.Severity, "daily=%v avg=%v", tt.daily, tt.avg)
		assert.Equal(t, InsightCostSpike, in.Type)
		assert.Equal(t, "spike-u1-2025-06-17", in.ID)
		assert.Equal(t, "u1", in.AffectedEntity)
		assert.InDelta(t, tt.daily-tt.avg, in.EstimatedSaving, 0.005)
	}
}

func TestDowngradeInsight_UsesCheaperSibling(t *testing.T) {
	e := NewInsightsEngine(nil, router.DefaultCatalog())
	e.now = func() time.Time { return fixedNow }

	in, ok := e.downgradeInsight(router.ModelClaude4Opus, 40, 10)
	require.True(t, ok)
	assert.Equal(t, InsightModelSwitch, in.Type)
	assert.Equal(t, router.ModelClaude4Opus, in.AffectedEntity)
	assert.Greater(t, in.EstimatedSaving, 0.0)
	assert.Less(t, in.EstimatedSaving, 10.0)

	alts := router.DefaultCatalog().CheaperAlternatives(router.ModelClaude4Opus)
	require.NotEmpty(t, alts)
	assert.Contains(t, in.Title, alts[0].ID)
}

func TestDowngradeInsight_NoSuggestion(t *testing.T) {
	e := NewInsightsEngine(nil, nil)

	_, ok := e.downgradeInsight("not-in-catalog", 10, 10)
	assert.False(t, ok)

	// Flash Lite is already the cheapest Vertex Gemini model.
	_, ok = e.downgradeInsight(router.ModelFlashLite, 10, 10)
	assert.False(t, ok)
}

func TestFallbackInsight(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		fallbacks int64
		want      bool
		severity  Severity
	}{
		{"too few samples", 5, 5, false, ""},
		{"under threshold", 100, 20, false, ""},
		{"warning", 100, 30, true, SeverityWarning},
		{"critical", 20, 15, true, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := fallbackInsight("express", tt.total, tt.fallbacks, fixedNow)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, tt.severity, in.Severity)
				assert.Equal(t, "fallback-express", in.ID)
			}
		})
	}
}

func TestNilPool_NoInsights(t *testing.T) {
	e := NewInsightsEngine(nil, nil)
	ctx := context.Background()

	all, err := e.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	report, err := e.GenerateReport(ctx, fixedNow.Add(-24*time.Hour), fixedNow)
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestRoundCents(t *testing.T) {
	assert.Equal(t, 1.23, roundCents(1.2349))
	assert.Equal(t, 1.24, roundCents(1.235001))
}
