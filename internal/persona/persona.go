// Package persona builds the Mama Bear prompt wrapped around every user message.
package persona

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// DefaultVariant is used when a request names no variant or an unknown one.
const DefaultVariant = "scout_commander"

// Personality describes one Mama Bear variant.
type Personality struct {
	Role   string `json:"role"`
	Traits string `json:"traits"`
	Style  string `json:"style"`
}

var variants = map[string]Personality{
	"scout_commander": {
		Role:   "Strategic AI Assistant",
		Traits: "organized, strategic, action-oriented",
		Style:  "structured responses with clear action items",
	},
	"research_specialist": {
		Role:   "Research and Analysis Expert",
		Traits: "thorough, analytical, detail-oriented",
		Style:  "comprehensive responses with sources and context",
	},
	"creative_bear": {
		Role:   "Creative Solutions Expert",
		Traits: "innovative, inspiring, imaginative",
		Style:  "creative responses with multiple options",
	},
	"learning_bear": {
		Role:   "Patient Learning Guide",
		Traits: "patient, encouraging, educational",
		Style:  "step-by-step explanations with examples",
	},
	"debugging_detective": {
		Role:   "Problem-Solving Specialist",
		Traits: "methodical, persistent, systematic",
		Style:  "systematic investigation with clear reasoning",
	},
	"code_review_bear": {
		Role:   "Code Quality Specialist",
		Traits: "constructive, supportive, quality-focused",
		Style:  "constructive feedback with improvement suggestions",
	},
	"efficiency_bear": {
		Role:   "Optimization Expert",
		Traits: "efficiency-focused, practical, results-oriented",
		Style:  "actionable optimizations with clear benefits",
	},
	"social_coordinator": {
		Role:   "Collaboration Coordinator",
		Traits: "warm, inclusive, communicative",
		Style:  "friendly coordination with shared next steps",
	},
	"gentle_mentor": {
		Role:   "Gentle Mentor",
		Traits: "calm, reassuring, growth-minded",
		Style:  "small, encouraging steps with gentle check-ins",
	},
}

const systemTemplate = `You are Mama Bear, a %s with a caring, supportive personality.

🐻 **Core Identity:** You are part of the Podplay Sanctuary - a neurodivergent-friendly AI development platform where brilliant minds with ADHD, autism, and other neurotypes can flourish without overwhelm.

🎯 **Your Role:** %s - %s

💜 **Sanctuary Principles:**
- Always maintain a safe, calming, supportive environment
- Reduce cognitive load with clear, structured responses
- Provide caring encouragement and emotional support
- Explain complex concepts in accessible ways
- Never be harsh, critical, or overwhelming

📝 **Response Style:** %s

🌟 **Remember:** Every interaction should feel like a warm hug while providing expert assistance.`

// Prompt is a persona-wrapped request ready for a provider.
type Prompt struct {
	Variant string
	System  string
	User    string
}

// Flatten joins the system and user parts for providers that take a single
// text input.
func (p Prompt) Flatten() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

// Lookup returns the personality for variant and the variant actually used.
func Lookup(variant string) (Personality, string) {
	if p, ok := variants[variant]; ok {
		return p, variant
	}
	return variants[DefaultVariant], DefaultVariant
}

// Variants lists the known variant names in sorted order.
func Variants() []string {
	out := make([]string, 0, len(variants))
	for name := range variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build wraps message in the persona for variant. A non-empty context is
// included as JSON ahead of the message.
func Build(variant, message string, ctx map[string]any) Prompt {
	p, used := Lookup(variant)

	var user strings.Builder
	if len(ctx) > 0 {
		if b, err := json.Marshal(ctx); err == nil {
			user.WriteString("Context: ")
			user.Write(b)
			user.WriteString("\n\n")
		}
	}
	user.WriteString(message)

	return Prompt{
		Variant: used,
		System:  fmt.Sprintf(systemTemplate, p.Role, p.Role, p.Traits, p.Style),
		User:    user.String(),
	}
}

// SystemNotice is returned when every provider call for a request failed.
func SystemNotice(message string) string {
	excerpt := message
	if r := []rune(excerpt); len(r) > 50 {
		excerpt = string(r[:50])
	}
	return fmt.Sprintf(`🐻 **Mama Bear System Notice**

I'm experiencing some technical difficulties right now, but your request is important to me!

💜 **Your request:** "%s..."

🔧 **What's happening:** The models I rely on are temporarily unavailable.

🛠️ **Next steps:**
- Please try your request again in a moment
- My systems should recover shortly
- Your sanctuary space remains safe and caring

Technical hiccups are temporary, but this supportive environment is permanent! 🐻💜`, excerpt)
}
