package sales

import (
	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/scoring"
)

// Bonus thresholds.
const (
	ContactBonusCount    = 15
	ContactBonusPoints   = 10
	InterviewFFIMin      = 3
	InterviewClosingMin  = 2
	InterviewBonusPoints = 25
	BigSaleBonusPoints   = 10
)

// BigSaleThreshold is the API value a single sale must reach.
var BigSaleThreshold = decimal.NewFromInt(12000)

// Bonus rule names.
const (
	BonusContactBlitz   = "Contact Blitz"
	BonusInterviewCombo = "Interview Combo"
	BonusBigSale        = "Big Sale"
)

// BonusRules returns the fixed rules in evaluation order.
func BonusRules() []scoring.BonusRule {
	return []scoring.BonusRule{
		{
			Name:   BonusContactBlitz,
			Points: ContactBonusPoints,
			Qualifies: func(acts []scoring.Activity) bool {
				return scoring.CountWhere(acts, scoring.InCategory(CategoryContact)) >= ContactBonusCount
			},
		},
		{
			Name:   BonusInterviewCombo,
			Points: InterviewBonusPoints,
			Qualifies: func(acts []scoring.Activity) bool {
				return scoring.CountWhere(acts, scoring.WithSummaryKey(KeyFFIConducted)) >= InterviewFFIMin &&
					scoring.CountWhere(acts, scoring.WithSummaryKey(KeyClosingConducted)) >= InterviewClosingMin
			},
		},
		{
			Name:   BonusBigSale,
			Points: BigSaleBonusPoints,
			Qualifies: func(acts []scoring.Activity) bool {
				for _, a := range acts {
					if a.SummaryKey == KeySales && a.APIValue != nil && a.APIValue.GreaterThanOrEqual(BigSaleThreshold) {
						return true
					}
				}
				return false
			},
		},
	}
}

// Evaluator returns a bonus evaluator over the fixed rules.
func Evaluator() *scoring.BonusEvaluator {
	return scoring.NewBonusEvaluator(BonusRules()...)
}
