// Package router implements the express model routing engine.
//
// The router maps an analyzer classification onto a catalog model through a
// fixed priority table. The first row whose condition holds wins. Routing is
// pure: the same Request always produces the same Decision, and no runtime
// metrics or learning history are consulted.
package router

import (
	"fmt"

	"github.com/Gemini-Podplai/mumabear/internal/analyzer"
	"github.com/Gemini-Podplai/mumabear/pkg/models"
)

// Routing modes accepted from callers.
const (
	ModeExpress      = "express"
	ModePremium      = "premium"
	ModeSmartRouting = "smart_routing"
	ModeStandard     = "standard"
)

// Kind tags the table row that produced a decision.
type Kind int

const (
	KindExplicitModel Kind = iota
	KindRule
	KindManual
	KindExpress
	KindComplexClaude
	KindPremiumQuality
	KindCostEffectiveSpeed
	KindSmartComplex
	KindSmartStandard
	KindDefault
)

var kindNames = map[Kind]string{
	KindExplicitModel:      "explicit_model",
	KindRule:               "rule",
	KindManual:             "manual",
	KindExpress:            "express",
	KindComplexClaude:      "complex_claude",
	KindPremiumQuality:     "premium_quality",
	KindCostEffectiveSpeed: "cost_effective_speed",
	KindSmartComplex:       "smart_complex",
	KindSmartStandard:      "smart_standard",
	KindDefault:            "default",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ProviderFactors are the fixed expectations for a provider relative to the
// direct Gemini API baseline.
type ProviderFactors struct {
	CostMultiplier   float64
	SpeedImprovement float64
}

var providerFactors = map[models.Provider]ProviderFactors{
	models.ProviderGeminiAPI:    {CostMultiplier: 1.0, SpeedImprovement: 1.0},
	models.ProviderVertexGemini: {CostMultiplier: 1.2, SpeedImprovement: 6.0},
	models.ProviderVertexClaude: {CostMultiplier: 2.5, SpeedImprovement: 4.0},
	models.ProviderOpenAI:       {CostMultiplier: 2.0, SpeedImprovement: 1.0},
	models.ProviderAnthropic:    {CostMultiplier: 2.5, SpeedImprovement: 1.0},
}

// FactorsFor returns the fixed factors for p. Unknown providers get 1.0/1.0.
func FactorsFor(p models.Provider) ProviderFactors {
	if f, ok := providerFactors[p]; ok {
		return f
	}
	return ProviderFactors{CostMultiplier: 1.0, SpeedImprovement: 1.0}
}

// Request is the input to a routing decision.
type Request struct {
	Message        string
	Analysis       analyzer.Analysis
	Mode           string
	RequestedModel string
	// Autonomous is false when agentic routing has been disabled by an
	// operator; the heuristic table is then skipped.
	Autonomous bool
}

// NormalizeMode maps empty and unknown modes to smart_routing.
func NormalizeMode(mode string) string {
	switch mode {
	case ModeExpress, ModePremium, ModeSmartRouting, ModeStandard:
		return mode
	default:
		return ModeSmartRouting
	}
}

type row struct {
	kind       Kind
	confidence float64
	match      func(Request) bool
	pick       func(Request) string
	reason     func(Request) string
}

// ladder is evaluated top to bottom after explicit models, rules and the
// manual override.
var ladder = []row{
	{
		kind:       KindExpress,
		confidence: 0.95,
		match: func(r Request) bool {
			return r.Mode == ModeExpress || r.Analysis.Urgency == analyzer.UrgencyHigh
		},
		pick: func(r Request) string {
			if r.Analysis.Urgency == analyzer.UrgencyHigh {
				return ModelFlashLite
			}
			return ModelFlashVertex
		},
		reason: func(r Request) string {
			return fmt.Sprintf("Express mode for speed (urgency=%s, mode=%s)", r.Analysis.Urgency, r.Mode)
		},
	},
	{
		kind:       KindComplexClaude,
		confidence: 0.9,
		match: func(r Request) bool {
			return r.Analysis.Complexity >= 7 && (r.Analysis.IsAgentic || r.Analysis.BenefitsFromClaude)
		},
		pick: func(r Request) string {
			if r.Analysis.Complexity >= 9 {
				return ModelClaude4Sonnet
			}
			return ModelClaude37
		},
		reason: func(r Request) string {
			return fmt.Sprintf("Complex task (complexity %d) suited to Claude reasoning", r.Analysis.Complexity)
		},
	},
	{
		kind:       KindPremiumQuality,
		confidence: 0.85,
		match: func(r Request) bool {
			return r.Analysis.Quality == analyzer.QualityPremium || r.Mode == ModePremium
		},
		pick: func(r Request) string {
			if r.Analysis.Complexity >= 8 {
				return ModelClaude4Opus
			}
			return ModelClaude4Sonnet
		},
		reason: func(Request) string { return "Premium quality requested" },
	},
	{
		kind:       KindCostEffectiveSpeed,
		confidence: 0.8,
		match: func(r Request) bool {
			return r.Analysis.CostSensitivity == analyzer.CostLow && r.Analysis.Urgency == analyzer.UrgencyNormal
		},
		pick:   func(Request) string { return ModelFlash },
		reason: func(Request) string { return "Cost-effective speed via Vertex Gemini" },
	},
	{
		kind:       KindSmartComplex,
		confidence: 0.8,
		match: func(r Request) bool {
			return r.Mode == ModeSmartRouting && (r.Analysis.Complexity >= 6 || r.Analysis.MessageLength > 1000)
		},
		pick: func(r Request) string {
			if r.Analysis.BenefitsFromClaude {
				return ModelClaudeSonnetV2
			}
			return ModelProVertex
		},
		reason: func(r Request) string {
			return fmt.Sprintf("Smart routing: complex request (complexity %d, %d chars)",
				r.Analysis.Complexity, r.Analysis.MessageLength)
		},
	},
	{
		kind:       KindSmartStandard,
		confidence: 0.75,
		match:      func(r Request) bool { return r.Mode == ModeSmartRouting },
		pick:       func(Request) string { return ModelGeminiAPIFlash },
		reason:     func(Request) string { return "Smart routing: standard request via Gemini API" },
	},
	{
		kind:       KindDefault,
		confidence: 0.7,
		match:      func(Request) bool { return true },
		pick:       func(Request) string { return ModelGeminiAPIFlash },
		reason:     func(Request) string { return "Default routing via Gemini API" },
	},
}

const (
	explicitConfidence = 1.0
	ruleConfidence     = 0.9
	manualConfidence   = 0.6
)

// Router selects a catalog model for a request.
type Router struct {
	catalog *Catalog
	rules   []Rule
}

// NewRouter creates a Router over catalog. Rules are consulted in order
// before the heuristic table.
func NewRouter(catalog *Catalog, rules []Rule) *Router {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Router{catalog: catalog, rules: rules}
}

// Catalog returns the router's model catalog.
func (r *Router) Catalog() *Catalog { return r.catalog }

// Route determines the model for req. The returned decision has no ID or
// timestamp; callers stamp those when recording it.
func (r *Router) Route(req Request) models.RoutingDecision {
	req.Mode = NormalizeMode(req.Mode)

	if req.RequestedModel != "" {
		if m, ok := r.catalog.Get(req.RequestedModel); ok {
			return r.decide(KindExplicitModel.String(), m.ID, explicitConfidence,
				fmt.Sprintf("Using explicitly requested model %s", m.ID))
		}
	}

	for _, rule := range r.rules {
		if rule.Matches(req) {
			return r.decide(KindRule.String()+":"+rule.Name, rule.Model, ruleConfidence,
				fmt.Sprintf("Routing rule %q matched", rule.Name))
		}
	}

	if !req.Autonomous {
		return r.decide(KindManual.String(), ModelGeminiAPIFlash, manualConfidence,
			"Autonomous routing disabled; using standard model")
	}

	for _, row := range ladder {
		if row.match(req) {
			return r.decide(row.kind.String(), row.pick(req), row.confidence, row.reason(req))
		}
	}
	// Unreachable: the last row always matches.
	return r.decide(KindDefault.String(), ModelGeminiAPIFlash, 0.7, "Default routing via Gemini API")
}

func (r *Router) decide(kind, modelID string, confidence float64, reason string) models.RoutingDecision {
	m, ok := r.catalog.Get(modelID)
	if !ok {
		// A custom catalog may omit built-in IDs.
		m = models.ModelConfig{ID: modelID, ModelName: modelID, Provider: models.ProviderGeminiAPI}
	}
	f := FactorsFor(m.Provider)
	return models.RoutingDecision{
		Kind:                     kind,
		Reasoning:                reason,
		ModelID:                  m.ID,
		Provider:                 m.Provider,
		Confidence:               confidence,
		ExpectedCostMultiplier:   f.CostMultiplier,
		ExpectedSpeedImprovement: f.SpeedImprovement,
	}
}
