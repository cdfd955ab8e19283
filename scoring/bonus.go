package scoring

// =============================================================================
// BONUS EVALUATOR
// =============================================================================

// BonusAward is a triggered bonus.
type BonusAward struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// BonusRule is a compound predicate over one period's activities with a
// fixed award. Predicates must be pure.
type BonusRule struct {
	Name      string
	Points    int
	Qualifies func(activities []Activity) bool
}

// BonusEvaluator applies a fixed list of bonus rules.
type BonusEvaluator struct {
	rules []BonusRule
}

func NewBonusEvaluator(rules ...BonusRule) *BonusEvaluator {
	return &BonusEvaluator{rules: rules}
}

// Evaluate returns the awards triggered by the activity set, in rule order.
// Each rule fires at most once no matter how many activities qualify.
func (e *BonusEvaluator) Evaluate(activities []Activity) []BonusAward {
	awards := []BonusAward{}
	if e == nil {
		return awards
	}
	for _, r := range e.rules {
		if r.Qualifies(activities) {
			awards = append(awards, BonusAward{Name: r.Name, Points: r.Points})
		}
	}
	return awards
}

// Rules returns the configured rules.
func (e *BonusEvaluator) Rules() []BonusRule {
	return append([]BonusRule(nil), e.rules...)
}

// TotalBonus sums award points.
func TotalBonus(awards []BonusAward) int {
	total := 0
	for _, a := range awards {
		total += a.Points
	}
	return total
}

// =============================================================================
// PREDICATE BUILDERS
// =============================================================================

// CountWhere counts activities matching pred.
func CountWhere(activities []Activity, pred func(Activity) bool) int {
	n := 0
	for _, a := range activities {
		if pred(a) {
			n++
		}
	}
	return n
}

// InCategory matches activities of a category.
func InCategory(c Category) func(Activity) bool {
	return func(a Activity) bool { return a.Category == c }
}

// WithSummaryKey matches activities rolled up under key.
func WithSummaryKey(key string) func(Activity) bool {
	return func(a Activity) bool { return a.SummaryKey == key }
}
