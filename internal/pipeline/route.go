package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"opcost/internal"
	"opcost/internal/util"
)

const (
	defaultRuleConfidence = 0.7
	defaultRulePriority   = 50
)

// matchStrategy is fixed at rule-load time: a pattern that compiles becomes
// a regex, anything else degrades to literal |-separated tokens.
type matchStrategy interface {
	matches(text string) bool
	label() string
}

type regexStrategy struct {
	pattern string
	re      *regexp.Regexp
}

func (s regexStrategy) matches(text string) bool { return s.re.MatchString(text) }
func (s regexStrategy) label() string            { return s.pattern }

type tokenStrategy struct {
	pattern string
	tokens  []string
}

func (s tokenStrategy) matches(text string) bool {
	for _, tok := range s.tokens {
		if tok != "" && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

func (s tokenStrategy) label() string { return s.pattern }

type compiledRule struct {
	rule       internal.ProcessRule
	strategy   matchStrategy
	confidence float64
	priority   int
}

// Router resolves free-text process labels to cost categories using an
// active rule list compiled once at construction.
type Router struct {
	rules []compiledRule
}

// DefaultRules is the built-in routing table for the shop's operations.
func DefaultRules() []internal.ProcessRule {
	return []internal.ProcessRule{
		{ID: "sheet-cut", Pattern: `CORTE|LASER|PLASMA|GUILHOTINA|PUNCIONA`, Category: internal.CategorySheet, Confidence: 0.9, Priority: 80, Active: true},
		{ID: "sheet-form", Pattern: `DOBRA|CALANDRA|ESTAMP|REPUXO`, Category: internal.CategorySheet, Confidence: 0.8, Priority: 70, Active: true},
		{ID: "tube-work", Pattern: `TUBO|PERFIL|SERRA FITA|CURVAMENTO`, Category: internal.CategoryTube, Confidence: 0.85, Priority: 75, Active: true},
		{ID: "purchase", Pattern: `COMPRA|COMERCIAL|TERCEIR|REVENDA`, Category: internal.CategoryPurchase, Confidence: 0.8, Priority: 60, Active: true},
		{ID: "other-ops", Pattern: `SOLDA|PINTURA|MONTAGEM|USINAGEM|ACABAMENTO`, Category: internal.CategoryOther, Confidence: 0.7, Priority: 40, Active: true},
	}
}

// NewRouter compiles the given rules; a nil or empty list falls back to
// DefaultRules. Inactive rules are skipped.
func NewRouter(rules []internal.ProcessRule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		confidence := rule.Confidence
		if confidence == 0 {
			confidence = defaultRuleConfidence
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		priority := rule.Priority
		if priority == 0 {
			priority = defaultRulePriority
		}
		compiled = append(compiled, compiledRule{
			rule:       rule,
			strategy:   compileStrategy(rule.Pattern),
			confidence: confidence,
			priority:   priority,
		})
	}
	return &Router{rules: compiled}
}

func compileStrategy(pattern string) matchStrategy {
	re, err := regexp.Compile("(?i)" + pattern)
	if err == nil {
		return regexStrategy{pattern: pattern, re: re}
	}
	parts := strings.Split(pattern, "|")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, util.NormalizeText(p))
	}
	return tokenStrategy{pattern: pattern, tokens: tokens}
}

// Route resolves one process label. With no matching rule the item lands in
// "other" with low confidence, or zero confidence when the text is blank.
func (r *Router) Route(processText string) internal.ProcessResolution {
	normalized := util.NormalizeText(processText)

	bestScore := -1.0
	var best *compiledRule
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.strategy.matches(normalized) {
			continue
		}
		score := float64(rule.priority)*1000 + rule.confidence*100
		if score > bestScore {
			bestScore = score
			best = rule
		}
	}

	if best == nil {
		confidence := 0.2
		if normalized == "" {
			confidence = 0
		}
		return internal.ProcessResolution{Category: internal.CategoryOther, Confidence: confidence}
	}

	return internal.ProcessResolution{
		Category:       best.rule.Category,
		Confidence:     best.confidence,
		MatchedPattern: util.StringPtr(best.strategy.label()),
	}
}

// LoadRulesJSON reads a custom rule list from a JSON file.
func LoadRulesJSON(path string) ([]internal.ProcessRule, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []internal.ProcessRule
	if err := json.Unmarshal(blob, &rules); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("rules file %s is empty", path)
	}
	return rules, nil
}
