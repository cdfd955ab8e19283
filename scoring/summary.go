/*
summary.go - Daily summary compiler (clock-out rollup)

PURPOSE:
  Composes one user's end-of-day summary from today's logged activities
  and tomorrow's planned ones, using the same frozen scoring fields and
  bonus evaluator as the rest of the engine.

OUTPUT:
  - Buckets: per summary key; counts, minute sums or currency sums
    according to each activity's frozen measure
  - APITotal: sum of every API value logged today
  - Derived: differences computed after bucketing, left unclamped; a
    negative value flags a data-entry anomaly, it is not an error
  - Points, Bonuses, Tier
  - Plan: tomorrow's scheduled items with potential points and API

VALIDATION:
  A clock-out with zero points and blank notes is rejected.
*/
package scoring

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ACHIEVEMENT TIERS
// =============================================================================

const (
	TierSuperhuman = "Superhuman"
	TierExcellent  = "Excellent"
	TierGood       = "Good"
	TierNone       = "N/A"
)

// TierThresholds are inclusive minimums. Any positive total below Excellent
// is Good; zero or less is N/A.
type TierThresholds struct {
	Superhuman int
	Excellent  int
}

// DefaultTiers is the canonical 100/50/0 table.
var DefaultTiers = TierThresholds{Superhuman: 100, Excellent: 50}

// Tier names the achievement band for a point total.
func (t TierThresholds) Tier(points int) string {
	switch {
	case points >= t.Superhuman:
		return TierSuperhuman
	case points >= t.Excellent:
		return TierExcellent
	case points > 0:
		return TierGood
	default:
		return TierNone
	}
}

// =============================================================================
// COMPILER
// =============================================================================

// DerivedField is Key = Buckets[Minuend] - Buckets[Subtrahend].
type DerivedField struct {
	Key        string
	Minuend    string
	Subtrahend string
}

// SummaryInput is everything one clock-out needs.
type SummaryInput struct {
	UserID   UserID
	Date     time.Time
	Today    []Activity
	Tomorrow []Activity
	Notes    string
}

// Compiler builds DailySummary values. It has no side effects.
type Compiler struct {
	Bonuses *BonusEvaluator
	Derived []DerivedField
	Tiers   TierThresholds
}

// Compile builds the summary or returns ErrEmptySummary.
func (c *Compiler) Compile(in SummaryInput) (DailySummary, error) {
	s := DailySummary{
		UserID:   in.UserID,
		Date:     DateKey(in.Date),
		Buckets:  make(map[string]decimal.Decimal),
		APITotal: decimal.Zero,
		Derived:  make(map[string]decimal.Decimal),
		Notes:    strings.TrimSpace(in.Notes),
	}

	var logged []Activity
	for _, a := range in.Today {
		if a.IsScheduled() {
			continue
		}
		logged = append(logged, a)
		s.Buckets[a.SummaryKey] = s.Buckets[a.SummaryKey].Add(a.Contribution())
		if a.APIValue != nil {
			s.APITotal = s.APITotal.Add(*a.APIValue)
		}
		s.Points += a.Points
	}

	for _, d := range c.Derived {
		s.Derived[d.Key] = s.Buckets[d.Minuend].Sub(s.Buckets[d.Subtrahend])
	}

	if c.Bonuses != nil {
		s.Bonuses = c.Bonuses.Evaluate(logged)
	} else {
		s.Bonuses = []BonusAward{}
	}
	s.BonusPoints = TotalBonus(s.Bonuses)
	s.Tier = c.Tiers.Tier(s.Points)
	s.Plan = BuildPlan(in.Tomorrow)

	if s.Points == 0 && s.Notes == "" {
		return s, ErrEmptySummary
	}
	return s, nil
}

// BuildPlan lists planned activities in schedule order with their previews.
func BuildPlan(planned []Activity) Plan {
	p := Plan{Items: []PlanItem{}, PotentialAPI: decimal.Zero}
	for _, a := range planned {
		if a.ScheduledFor == nil {
			continue
		}
		p.Items = append(p.Items, PlanItem{
			ActivityID:   a.ID,
			Type:         a.Type,
			ScheduledFor: *a.ScheduledFor,
			Points:       a.Points,
			APIValue:     a.APIValue,
			RelatedTo:    a.RelatedTo,
		})
		p.PotentialPoints += a.Points
		if a.APIValue != nil {
			p.PotentialAPI = p.PotentialAPI.Add(*a.APIValue)
		}
	}
	sort.SliceStable(p.Items, func(i, j int) bool {
		return p.Items[i].ScheduledFor.Before(p.Items[j].ScheduledFor)
	})
	return p
}

// =============================================================================
// SUMMARY SERVICE - store-backed clock-out
// =============================================================================

// SummaryServiceStore is what clock-out reads and writes.
type SummaryServiceStore interface {
	GetUser(ctx context.Context, id UserID) (User, error)
	LoggedBetween(ctx context.Context, userID UserID, from, to time.Time) ([]Activity, error)
	ScheduledBetween(ctx context.Context, userID UserID, from, to time.Time) ([]Activity, error)
	SummaryStore
}

// SummaryService runs clock-outs and period bonus checks.
type SummaryService struct {
	Store     SummaryServiceStore
	Compiler  *Compiler
	Location  *time.Location
	WeekStart time.Weekday
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// ClockOutRequest is one clock-out submission. A zero Date means today.
type ClockOutRequest struct {
	UserID   UserID
	Date     time.Time
	Notes    string
	Resubmit bool
}

// ClockOut compiles and persists the user's summary for the day.
func (s *SummaryService) ClockOut(ctx context.Context, req ClockOutRequest) (DailySummary, error) {
	ctx, span := tracer.Start(ctx, "SummaryService.ClockOut")
	defer span.End()

	if _, err := s.Store.GetUser(ctx, req.UserID); err != nil {
		return DailySummary{}, WrapStore("get user", err)
	}

	now := s.Now().In(s.Location)
	ref := now
	if !req.Date.IsZero() {
		ref = req.Date.In(s.Location)
	}
	day := PeriodFor(PeriodDay, ref, s.WeekStart)
	next := day.NextPeriod(s.WeekStart)

	today, err := s.Store.LoggedBetween(ctx, req.UserID, day.Start, day.End)
	if err != nil {
		return DailySummary{}, WrapStore("load today", err)
	}
	tomorrow, err := s.Store.ScheduledBetween(ctx, req.UserID, next.Start, next.End)
	if err != nil {
		return DailySummary{}, WrapStore("load plan", err)
	}

	summary, err := s.Compiler.Compile(SummaryInput{
		UserID:   req.UserID,
		Date:     day.Start,
		Today:    today,
		Tomorrow: tomorrow,
		Notes:    req.Notes,
	})
	if err != nil {
		return DailySummary{}, err
	}
	summary.SubmittedAt = now.UTC()

	saved, err := s.Store.SaveDailySummary(ctx, summary, req.Resubmit)
	if err != nil {
		return DailySummary{}, WrapStore("save summary", err)
	}

	s.Log.WithFields(logrus.Fields{
		"component": "summary",
		"user_id":   saved.UserID,
		"date":      saved.Date,
		"points":    saved.Points,
		"tier":      saved.Tier,
		"revision":  saved.Revision,
	}).Info("daily summary submitted")
	return saved, nil
}

// PeriodBonuses evaluates bonus rules over the user's current period.
func (s *SummaryService) PeriodBonuses(ctx context.Context, userID UserID, kind PeriodKind) (Period, []BonusAward, error) {
	period := PeriodFor(kind, s.Now().In(s.Location), s.WeekStart)
	acts, err := s.Store.LoggedBetween(ctx, userID, period.Start, period.End)
	if err != nil {
		return period, nil, WrapStore("load period", err)
	}
	return period, s.Compiler.Bonuses.Evaluate(acts), nil
}
