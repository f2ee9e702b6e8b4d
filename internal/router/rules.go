package router

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// RuleEnv is the environment routing rule conditions are evaluated against.
//
//	rules:
//	  - name: long-docs
//	    when: 'ContextLength > 4000 && Mode != "express"'
//	    model: gemini-2.5-pro-vertex
type RuleEnv struct {
	Message            string
	Mode               string
	Complexity         int
	Urgency            string
	Quality            string
	IsAgentic          bool
	BenefitsFromClaude bool
	CostSensitivity    string
	MessageLength      int
	ContextLength      int
	EstimatedTokens    int
}

// Rule routes to Model when its compiled condition holds.
type Rule struct {
	Name  string `yaml:"name"`
	When  string `yaml:"when"`
	Model string `yaml:"model"`

	program *vm.Program
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and compiles a YAML rules file. An empty path yields no rules.
func LoadRules(path string, catalog *Catalog) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}
	return ParseRules(data, catalog)
}

// ParseRules compiles rules from YAML. Every rule must name a catalog model
// and compile to a boolean expression.
func ParseRules(data []byte, catalog *Catalog) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routing rules: %w", err)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	seen := make(map[string]bool, len(f.Rules))
	for i := range f.Rules {
		rule := &f.Rules[i]
		if rule.Name == "" {
			return nil, fmt.Errorf("routing rule %d: name is required", i)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("routing rule %q: duplicate name", rule.Name)
		}
		seen[rule.Name] = true
		if _, ok := catalog.Get(rule.Model); !ok {
			return nil, fmt.Errorf("routing rule %q: unknown model %q", rule.Name, rule.Model)
		}
		program, err := expr.Compile(rule.When, expr.Env(RuleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("routing rule %q: failed to compile condition: %w", rule.Name, err)
		}
		rule.program = program
	}
	return f.Rules, nil
}

// Matches reports whether the rule's condition holds for req. Evaluation
// errors count as no match.
func (r Rule) Matches(req Request) bool {
	if r.program == nil {
		return false
	}
	out, err := expr.Run(r.program, newRuleEnv(req))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func newRuleEnv(req Request) RuleEnv {
	a := req.Analysis
	return RuleEnv{
		Message:            req.Message,
		Mode:               req.Mode,
		Complexity:         a.Complexity,
		Urgency:            a.Urgency,
		Quality:            a.Quality,
		IsAgentic:          a.IsAgentic,
		BenefitsFromClaude: a.BenefitsFromClaude,
		CostSensitivity:    a.CostSensitivity,
		MessageLength:      a.MessageLength,
		ContextLength:      a.ContextLength,
		EstimatedTokens:    a.EstimatedTokens,
	}
}
