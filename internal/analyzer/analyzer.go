// Package analyzer classifies a chat message with fixed keyword heuristics.
//
// Matching is case-insensitive substring search against English word lists.
// Negation ("not urgent") and non-English input are not understood and are
// classified by whatever keywords happen to appear.
package analyzer

import (
	"strings"

	json "github.com/goccy/go-json"
)

// Urgency levels.
const (
	UrgencyLow    = "low"
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
)

// Quality levels.
const (
	QualityStandard = "standard"
	QualityPremium  = "premium"
)

// Cost sensitivity levels read from the request context.
const (
	CostLow      = "low"
	CostBalanced = "balanced"
	CostHigh     = "high"
)

const (
	baseComplexity = 3
	maxComplexity  = 10
)

var (
	technicalKeywords = []string{
		"implement", "refactor", "architecture", "algorithm", "optimization",
		"integration", "deployment", "infrastructure", "debugging", "testing",
	}
	agenticKeywords = []string{
		"agent", "autonomous", "intelligent", "reasoning", "planning",
		"decision", "workflow", "orchestration", "collaboration",
	}
	multiStepKeywords = []string{"step", "phase", "process", "workflow", "pipeline"}

	urgentKeywords = []string{
		"fast", "quick", "rapid", "immediate", "urgent", "asap",
		"real-time", "instant", "express",
	}
	carefulKeywords = []string{"careful", "thorough", "detailed", "comprehensive", "deep"}

	premiumKeywords = []string{
		"best", "highest", "premium", "excellent", "perfect",
		"production", "enterprise", "professional",
	}

	agenticPhrases = []string{
		"create agent", "build agent", "autonomous", "intelligent system",
		"decision making", "planning", "orchestration", "workflow automation",
		"multi-step", "reasoning", "problem solving", "strategic thinking",
	}
	claudePhrases = []string{
		"code review", "refactor", "complex reasoning", "step-by-step",
		"analysis", "writing", "explanation", "documentation",
		"problem solving", "debugging", "architecture", "design patterns",
	}
)

// Analysis is the classification of a single request.
type Analysis struct {
	Complexity         int    `json:"complexity"`
	Urgency            string `json:"urgency"`
	Quality            string `json:"quality"`
	IsAgentic          bool   `json:"is_agentic"`
	BenefitsFromClaude bool   `json:"benefits_from_claude"`
	CostSensitivity    string `json:"cost_sensitivity"`
	MessageLength      int    `json:"message_length"`
	ContextLength      int    `json:"context_length"`
	EstimatedTokens    int    `json:"estimated_tokens"`
}

// Analyze classifies message using its request context. It has no side
// effects and the same input always yields the same Analysis.
func Analyze(message string, ctx map[string]any) Analysis {
	lower := strings.ToLower(message)
	ctxLen := ContextLength(ctx)

	return Analysis{
		Complexity:         complexity(lower, ctxLen),
		Urgency:            urgency(lower),
		Quality:            quality(lower, ctx),
		IsAgentic:          containsAny(lower, agenticPhrases),
		BenefitsFromClaude: containsAny(lower, claudePhrases),
		CostSensitivity:    costSensitivity(ctx),
		MessageLength:      len(message),
		ContextLength:      ctxLen,
		EstimatedTokens:    CountTokens(message),
	}
}

func complexity(lower string, ctxLen int) int {
	score := baseComplexity
	score += countAny(lower, technicalKeywords)
	score += countAny(lower, agenticKeywords)

	switch {
	case ctxLen > 2000:
		score += 2
	case ctxLen > 1000:
		score++
	}

	if containsAny(lower, multiStepKeywords) {
		score++
	}

	if score > maxComplexity {
		return maxComplexity
	}
	return score
}

func urgency(lower string) string {
	if containsAny(lower, urgentKeywords) {
		return UrgencyHigh
	}
	if containsAny(lower, carefulKeywords) {
		return UrgencyLow
	}
	return UrgencyNormal
}

func quality(lower string, ctx map[string]any) string {
	if containsAny(lower, premiumKeywords) {
		return QualityPremium
	}
	if lvl, ok := ctx["quality_level"].(string); ok && lvl == "high" {
		return QualityPremium
	}
	return QualityStandard
}

func costSensitivity(ctx map[string]any) string {
	if s, ok := ctx["cost_sensitivity"].(string); ok && s != "" {
		return s
	}
	return CostBalanced
}

// ContextLength is the length of the JSON-serialized context. An empty or
// nil context counts as zero.
func ContextLength(ctx map[string]any) int {
	if len(ctx) == 0 {
		return 0
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return 0
	}
	return len(b)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func countAny(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}
