package scoring

import (
	"fmt"
	"sort"
)

// =============================================================================
// SCORING RULE TABLE
// =============================================================================

// Category groups activity types for bonus rules.
type Category string

// ScoringRule is one row of the rule table.
type ScoringRule struct {
	Type             string   `json:"type"`
	Category         Category `json:"category"`
	Points           int      `json:"points"`
	SummaryKey       string   `json:"summary_key"`
	Measure          Measure  `json:"measure"`
	RequiresAPIValue bool     `json:"requires_api_value"`
}

// RuleTable is an immutable, versioned lookup from activity type to rule.
// Activities are stamped with Version so historical scores stay explainable
// after the table changes.
type RuleTable struct {
	version string
	rules   map[string]ScoringRule
	order   []string
}

// NewRuleTable builds a table. A duplicate type, negative points or a
// currency rule that doesn't require an API value is a programming error
// in a static table and panics.
func NewRuleTable(version string, rules []ScoringRule) *RuleTable {
	t := &RuleTable{
		version: version,
		rules:   make(map[string]ScoringRule, len(rules)),
		order:   make([]string, 0, len(rules)),
	}
	for _, r := range rules {
		if _, dup := t.rules[r.Type]; dup {
			panic(fmt.Sprintf("scoring: duplicate rule %q", r.Type))
		}
		if r.Points < 0 {
			panic(fmt.Sprintf("scoring: rule %q has negative points", r.Type))
		}
		if r.Measure == "" {
			r.Measure = MeasureCount
		}
		if r.Measure == MeasureCurrency && !r.RequiresAPIValue {
			panic(fmt.Sprintf("scoring: currency rule %q must require an API value", r.Type))
		}
		t.rules[r.Type] = r
		t.order = append(t.order, r.Type)
	}
	return t
}

// Version identifies the table revision.
func (t *RuleTable) Version() string { return t.version }

// Resolve looks up a rule by activity type name.
func (t *RuleTable) Resolve(activityType string) (ScoringRule, error) {
	r, ok := t.rules[activityType]
	if !ok {
		return ScoringRule{}, &UnknownActivityTypeError{Type: activityType}
	}
	return r, nil
}

// Rules returns the rules in declaration order.
func (t *RuleTable) Rules() []ScoringRule {
	out := make([]ScoringRule, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.rules[name])
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (t *RuleTable) Categories() []Category {
	seen := make(map[Category]bool)
	var out []Category
	for _, r := range t.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
