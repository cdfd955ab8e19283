/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags for shape checks
  (required, ranges, formats). Domain rules such as "this activity type
  needs an API value" are enforced by the scoring package, not here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/scoring"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateUserRequest registers or updates a known user.
type CreateUserRequest struct {
	ID       string `json:"id" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,max=256"`
	PhotoURL string `json:"photo_url" validate:"omitempty,url"`
	Role     string `json:"role" validate:"max=64"`
}

// CreateActivityRequest is the activity-create payload. Points and
// summary_key are accepted but ignored in favor of the rule table.
type CreateActivityRequest struct {
	ID           string           `json:"id" validate:"max=128"`
	UserID       string           `json:"user_id" validate:"required,max=128"`
	Type         string           `json:"type" validate:"required"`
	OccurredAt   *time.Time       `json:"occurred_at"`
	ScheduledFor *time.Time       `json:"scheduled_for"`
	APIValue     *decimal.Decimal `json:"api_value"`
	Minutes      int              `json:"minutes" validate:"gte=0,lte=1440"`
	RelatedTo    string           `json:"related_to" validate:"max=256"`
	Points       *int             `json:"points"`
	SummaryKey   string           `json:"summary_key"`
}

// CreateGoalRequest creates an active goal.
type CreateGoalRequest struct {
	ID      string                     `json:"id" validate:"max=128"`
	UserID  string                     `json:"user_id" validate:"required,max=128"`
	Name    string                     `json:"name" validate:"required,max=256"`
	Targets map[string]decimal.Decimal `json:"targets"`
}

// ClockOutRequest submits the daily summary. Date defaults to today.
type ClockOutRequest struct {
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes    string `json:"notes" validate:"max=4000"`
	Resubmit bool   `json:"resubmit"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RulesResponse lists the rule table and bonus rules.
type RulesResponse struct {
	Version    string                `json:"version"`
	Categories []scoring.Category    `json:"categories"`
	Rules      []scoring.ScoringRule `json:"rules"`
	Bonuses    []BonusRuleDTO        `json:"bonuses"`
}

// BonusRuleDTO describes a bonus rule.
type BonusRuleDTO struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// LeaderboardResponse is a ranked leaderboard for one window.
type LeaderboardResponse struct {
	Period  scoring.PeriodKind    `json:"period"`
	Source  string                `json:"source"` // cache or store
	Entries []scoring.RankedEntry `json:"entries"`
}

// RecomputeResponse reports a manual aggregation cycle.
type RecomputeResponse struct {
	Run     scoring.AggregationRun `json:"run"`
	NextRun *time.Time             `json:"next_run,omitempty"`
}

// BonusesResponse reports the bonuses earned in a period so far.
type BonusesResponse struct {
	UserID scoring.UserID       `json:"user_id"`
	Period scoring.PeriodKind   `json:"period"`
	Start  time.Time            `json:"start"`
	End    time.Time            `json:"end"`
	Awards []scoring.BonusAward `json:"awards"`
	Total  int                  `json:"total"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioResponse reports what a scenario load wrote.
type LoadScenarioResponse struct {
	Scenario   string                  `json:"scenario"`
	Status     string                  `json:"status"`
	Users      int                     `json:"users"`
	Goals      int                     `json:"goals"`
	Activities int                     `json:"activities"`
	Skipped    int                     `json:"skipped"`
	Run        *scoring.AggregationRun `json:"run,omitempty"`
}
