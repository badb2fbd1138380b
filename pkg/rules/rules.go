// Package rules implements the hard-rule overlay that short-circuits the
// router before the learned classifier ever runs: commands, a safety
// blocklist, explicit identity declarations, corrections, and knowledge
// indicators, evaluated in a fixed precedence order with the first hit
// winning.
package rules

import (
	"regexp"
	"strings"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

// blockedSubstrings is the safety blocklist. Matching any of these, after
// normalization, forces Decision = NONE and tells the caller not to persist.
var blockedSubstrings = []string{
	"kill yourself",
	"how to make a bomb",
	"child sexual",
}

// identityPatterns are the compiled matchers that force IMM. Patterns are
// strict and anchored so that only an unambiguous first-person declaration
// fires; anything looser is left to the ML classifier. The "I'm X" / "I am X"
// name forms fire only when X is capitalized.
var identityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^my name is\s+\S+`),
	regexp.MustCompile(`^(?i:i'?m)\s+[A-Z][a-z]+\b`),
	regexp.MustCompile(`^(?i:i am)\s+[A-Z][a-z]+\b`),
	regexp.MustCompile(`(?i)^i am (?:an? )?(vegetarian|vegan|pescatarian|flexitarian)\b`),
	regexp.MustCompile(`(?i)^i'?m (?:an? )?(vegetarian|vegan|pescatarian|flexitarian)\b`),
	regexp.MustCompile(`(?i)^i am (catholic|muslim|hindu|buddhist|jewish|atheist|agnostic|christian)\b`),
	regexp.MustCompile(`(?i)^i speak\s+\S+`),
	regexp.MustCompile(`(?i)^i'?m (male|female|non-binary|transgender|nonbinary)\b`),
	regexp.MustCompile(`(?i)^i'?m allergic to\s+\S+`),
	regexp.MustCompile(`(?i)^i don'?t eat\s+\S+`),
	regexp.MustCompile(`(?i)^i don'?t drink\s+\S+`),
	regexp.MustCompile(`(?i)^call me\s+\S+`),
	regexp.MustCompile(`(?i)^my (diet|religion|language|gender) is\s+\S+`),
	regexp.MustCompile(`(?i)^please call me\s+\S+`),
}

// correctionPatterns recognize a prior statement being amended.
var correctionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^actually,?\s+`),
	regexp.MustCompile(`(?i)^correction:\s*`),
	regexp.MustCompile(`(?i)^i meant\s+`),
	regexp.MustCompile(`(?i)^sorry,? i meant\s+`),
	regexp.MustCompile(`(?i)^to correct myself,?\s+`),
}

// knowledgeIndicators recognize a first-person capability or skill declaration.
var knowledgeIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^i know how to\s+`),
	regexp.MustCompile(`(?i)^i'?m skilled (in|at)\s+`),
	regexp.MustCompile(`(?i)^i specialize in\s+`),
	regexp.MustCompile(`(?i)^i'?m an expert (in|at)\s+`),
	regexp.MustCompile(`(?i)^i know\s+\S+\s+(programming|language|framework)`),
}

// Engine applies the hard rules in precedence order.
type Engine struct{}

// New creates a rule Engine. It holds no state; the patterns above are
// package-level so a single compiled set is shared by every Engine.
func New() *Engine {
	return &Engine{}
}

// Apply returns a forced RoutingResult when a rule unambiguously fires for
// trimmed text, or (nil, false) to defer to the ML classifier. Categories are
// evaluated in the order the spec mandates: commands, blocklist, identity,
// correction, knowledge. Earlier categories short-circuit, so at most one
// rule can ever match.
func (e *Engine) Apply(text string) (*memtypes.RoutingResult, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if result, ok := applyCommand(trimmed); ok {
		return result, true
	}
	if result, ok := applyBlocklist(trimmed); ok {
		return result, true
	}
	if result, ok := applyIdentity(trimmed); ok {
		return result, true
	}
	if result, ok := applyCorrection(trimmed); ok {
		return result, true
	}
	if result, ok := applyKnowledge(trimmed); ok {
		return result, true
	}
	return nil, false
}

func forced(d memtypes.Decision) *memtypes.RoutingResult {
	return &memtypes.RoutingResult{
		Decision:   d,
		Confidence: 1.0,
		Source:     memtypes.SourceRule,
	}
}

func applyCommand(text string) (*memtypes.RoutingResult, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "/recall"):
		return forced(memtypes.DecisionEMM), true
	case strings.HasPrefix(lower, "/forget"):
		result := forced(memtypes.DecisionEMM)
		result.ForgetQuery = strings.TrimSpace(text[len("/forget"):])
		return result, true
	case strings.HasPrefix(lower, "/remember"):
		return forced(memtypes.DecisionIMM), true
	}
	return nil, false
}

func applyBlocklist(text string) (*memtypes.RoutingResult, bool) {
	lower := strings.ToLower(text)
	for _, blocked := range blockedSubstrings {
		if strings.Contains(lower, blocked) {
			return forced(memtypes.DecisionNONE), true
		}
	}
	return nil, false
}

func applyIdentity(text string) (*memtypes.RoutingResult, bool) {
	for _, re := range identityPatterns {
		if re.MatchString(text) {
			return forced(memtypes.DecisionIMM), true
		}
	}
	return nil, false
}

func applyCorrection(text string) (*memtypes.RoutingResult, bool) {
	for _, re := range correctionPatterns {
		if re.MatchString(text) {
			return forced(memtypes.DecisionIMM), true
		}
	}
	return nil, false
}

func applyKnowledge(text string) (*memtypes.RoutingResult, bool) {
	for _, re := range knowledgeIndicators {
		if re.MatchString(text) {
			return forced(memtypes.DecisionKMM), true
		}
	}
	return nil, false
}
