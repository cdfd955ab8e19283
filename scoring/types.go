/*
Package scoring provides the activity scoring and aggregation engine.

PURPOSE:
  Turns logged sales/prospecting activities into frozen point values and
  keeps three kinds of derived state consistent with the activity log:
  goal progress (incremental, per event), leaderboard snapshots (full
  periodic recomputation) and daily summaries (end-of-day rollup).

KEY CONCEPTS IN THIS FILE (types.go):
  - Activity: an immutable logged or planned action with frozen points
  - Goal: a user target whose progress map is incremented per activity
  - LeaderboardEntry: per-user daily/weekly/monthly totals
  - DailySummary: one clock-out rollup per user and date
  - User: the set of known users the aggregator writes entries for

DESIGN PRINCIPLES:
  1. Frozen scoring: points, summary key and measure are resolved once at
     creation and never recomputed, so history does not drift
  2. Precision: currency and progress values use decimal.Decimal
  3. Recompute over patch: leaderboard entries are overwritten each cycle
  4. Idempotent fan-out: goal increments are keyed by (activity, goal)

SEE ALSO:
  - rules.go: Scoring rule table
  - goals.go: Incremental goal updater
  - leaderboard.go: Leaderboard aggregator
  - summary.go: Daily summary compiler
*/
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ActivityID string
type GoalID string

// =============================================================================
// MEASURE - How an activity contributes to its summary key
// =============================================================================

// Measure says what unit an activity adds to its summary bucket.
type Measure string

const (
	MeasureCount    Measure = "count"    // +1 per activity
	MeasureMinutes  Measure = "minutes"  // +Minutes (time-tracked types)
	MeasureCurrency Measure = "currency" // +APIValue
)

// Reserved progress keys written alongside the activity's summary key.
const (
	PointsKey = "points"
	APIKey    = "api"
)

// =============================================================================
// ACTIVITY
// =============================================================================

// Activity is a single logged (OccurredAt) or planned (ScheduledFor) action.
// Exactly one of the two timestamps is set. Points, SummaryKey, Measure and
// Category are copied from the rule table at creation.
type Activity struct {
	ID           ActivityID       `json:"id"`
	UserID       UserID           `json:"user_id"`
	Type         string           `json:"type"`
	OccurredAt   *time.Time       `json:"occurred_at,omitempty"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
	Points       int              `json:"points"`
	APIValue     *decimal.Decimal `json:"api_value,omitempty"`
	Minutes      int              `json:"minutes,omitempty"`
	SummaryKey   string           `json:"summary_key"`
	Measure      Measure          `json:"measure"`
	Category     Category         `json:"category"`
	RelatedTo    string           `json:"related_to,omitempty"`
	RuleVersion  string           `json:"rule_version"`
	CreatedAt    time.Time        `json:"created_at"`
}

// IsScheduled reports whether the activity is a plan rather than a logged action.
func (a Activity) IsScheduled() bool { return a.OccurredAt == nil }

// At returns whichever timestamp the activity carries.
func (a Activity) At() time.Time {
	if a.OccurredAt != nil {
		return *a.OccurredAt
	}
	if a.ScheduledFor != nil {
		return *a.ScheduledFor
	}
	return time.Time{}
}

// Contribution is the amount the activity adds to progress[SummaryKey].
func (a Activity) Contribution() decimal.Decimal {
	switch a.Measure {
	case MeasureMinutes:
		return decimal.NewFromInt(int64(a.Minutes))
	case MeasureCurrency:
		if a.APIValue == nil {
			return decimal.Zero
		}
		return *a.APIValue
	default:
		return decimal.NewFromInt(1)
	}
}

// =============================================================================
// USER
// =============================================================================

// User carries the display fields denormalized onto leaderboard entries.
type User struct {
	ID       UserID `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
	Role     string `json:"role,omitempty"`
}

// =============================================================================
// GOAL
// =============================================================================

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

// Goal is a user target. Progress is keyed by summary key plus PointsKey.
// A goal with Targets is completed once every target key is reached.
type Goal struct {
	ID        GoalID                     `json:"id"`
	UserID    UserID                     `json:"user_id"`
	Name      string                     `json:"name"`
	Status    GoalStatus                 `json:"status"`
	Progress  map[string]decimal.Decimal `json:"progress"`
	Targets   map[string]decimal.Decimal `json:"targets,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
}

// TargetsMet reports whether progress has reached every target.
// A goal without targets is never met.
func (g Goal) TargetsMet() bool {
	if len(g.Targets) == 0 {
		return false
	}
	for key, target := range g.Targets {
		if g.Progress[key].LessThan(target) {
			return false
		}
	}
	return true
}

// GoalIncrement is one goal's share of an activity fan-out.
type GoalIncrement struct {
	GoalID GoalID
	Deltas map[string]decimal.Decimal
}

// =============================================================================
// LEADERBOARD
// =============================================================================

// LeaderboardEntry is the per-user snapshot rewritten by every aggregation cycle.
type LeaderboardEntry struct {
	UserID     UserID    `json:"user_id"`
	Name       string    `json:"name"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Role       string    `json:"role,omitempty"`
	Daily      int       `json:"daily"`
	Weekly     int       `json:"weekly"`
	Monthly    int       `json:"monthly"`
	DayStart   time.Time `json:"day_start"`
	WeekStart  time.Time `json:"week_start"`
	MonthStart time.Time `json:"month_start"`
}

// Total returns the entry's total for a leaderboard window.
func (e LeaderboardEntry) Total(kind PeriodKind) int {
	switch kind {
	case PeriodDay:
		return e.Daily
	case PeriodWeek:
		return e.Weekly
	default:
		return e.Monthly
	}
}

// AggregationRun records one aggregator cycle.
type AggregationRun struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"` // running, completed, failed, skipped
	Users       int        `json:"users"`
	Activities  int        `json:"activities"`
	Written     int        `json:"written"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// =============================================================================
// DAILY SUMMARY
// =============================================================================

// DailySummary is the clock-out rollup for one user and one local date.
type DailySummary struct {
	UserID      UserID                     `json:"user_id"`
	Date        string                     `json:"date"` // YYYY-MM-DD
	Buckets     map[string]decimal.Decimal `json:"buckets"`
	APITotal    decimal.Decimal            `json:"api_total"`
	Derived     map[string]decimal.Decimal `json:"derived"`
	Points      int                        `json:"points"`
	Bonuses     []BonusAward               `json:"bonuses"`
	BonusPoints int                        `json:"bonus_points"`
	Tier        string                     `json:"tier"`
	Notes       string                     `json:"notes"`
	Plan        Plan                       `json:"plan"`
	Revision    int                        `json:"revision"`
	SubmittedAt time.Time                  `json:"submitted_at"`
}

// Plan previews tomorrow's scheduled activities.
type Plan struct {
	Items           []PlanItem      `json:"items"`
	PotentialPoints int             `json:"potential_points"`
	PotentialAPI    decimal.Decimal `json:"potential_api"`
}

type PlanItem struct {
	ActivityID   ActivityID       `json:"activity_id"`
	Type         string           `json:"type"`
	ScheduledFor time.Time        `json:"scheduled_for"`
	Points       int              `json:"points"`
	APIValue     *decimal.Decimal `json:"api_value,omitempty"`
	RelatedTo    string           `json:"related_to,omitempty"`
}

// DateKey formats a day the way summaries are keyed.
func DateKey(t time.Time) string { return t.Format("2006-01-02") }
