/*
store.go - Persistence interfaces for the scoring engine

PURPOSE:
  Defines the boundary between scoring logic and the document store.
  All durable state lives behind these interfaces; handlers and the
  aggregator keep nothing in process memory between invocations.

KEY INTERFACES:
  ActivityStore:    Append-only activity log, time-window reads
  UserStore:        Known users (display fields for leaderboard entries)
  GoalStore:        Goals and the atomic per-activity increment batch
  LeaderboardStore: Per-user snapshot documents and aggregation runs
  SummaryStore:     Create-once daily summaries

ATOMIC GOAL BATCHES:
  ApplyGoalIncrements() commits every goal's increments for one activity
  in a single transaction, together with one (activityID, goalID) marker
  per goal. A goal whose marker already exists is skipped, so redelivered
  events never double count. Increments are numeric add operations on
  individual progress keys, not a rewrite of the progress map.

BOUNDED READS:
  Every activity read carries an explicit time window.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite document store
  - scoring/store/memory.go: In-memory for testing
*/
package scoring

import (
	"context"
	"time"
)

// ActivityStore persists activities. Append-only.
type ActivityStore interface {
	// AppendActivity stores a new activity. Returns ErrDuplicateActivity if
	// the ID exists.
	AppendActivity(ctx context.Context, a Activity) error

	// GetActivity returns ErrNotFound when missing.
	GetActivity(ctx context.Context, id ActivityID) (Activity, error)

	// LoggedSince returns all users' logged activities with OccurredAt >= from.
	LoggedSince(ctx context.Context, from time.Time) ([]Activity, error)

	// LoggedBetween returns one user's logged activities in [from, to).
	LoggedBetween(ctx context.Context, userID UserID, from, to time.Time) ([]Activity, error)

	// ScheduledBetween returns one user's planned activities in [from, to).
	ScheduledBetween(ctx context.Context, userID UserID, from, to time.Time) ([]Activity, error)
}

// UserStore persists known users.
type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// GoalStore persists goals.
type GoalStore interface {
	SaveGoal(ctx context.Context, g Goal) error
	GetGoal(ctx context.Context, id GoalID) (Goal, error)
	ListGoals(ctx context.Context, userID UserID) ([]Goal, error)
	ActiveGoals(ctx context.Context, userID UserID) ([]Goal, error)
	SetGoalStatus(ctx context.Context, id GoalID, status GoalStatus) error

	// ApplyGoalIncrements atomically applies all increments for one activity.
	// Returns how many goals were newly updated (the rest were already marked).
	// On error nothing is applied.
	ApplyGoalIncrements(ctx context.Context, activityID ActivityID, incs []GoalIncrement) (int, error)
}

// LeaderboardStore persists leaderboard snapshots and the aggregation run log.
type LeaderboardStore interface {
	// PutLeaderboardEntry overwrites the user's entry.
	PutLeaderboardEntry(ctx context.Context, e LeaderboardEntry) error
	GetLeaderboardEntry(ctx context.Context, userID UserID) (LeaderboardEntry, error)
	ListLeaderboard(ctx context.Context) ([]LeaderboardEntry, error)

	SaveAggregationRun(ctx context.Context, r AggregationRun) error
	ListAggregationRuns(ctx context.Context, limit int) ([]AggregationRun, error)
}

// SummaryStore persists daily summaries.
type SummaryStore interface {
	// SaveDailySummary creates the summary, or replaces it when resubmit is
	// true (Revision is incremented). Returns ErrSummaryExists otherwise.
	SaveDailySummary(ctx context.Context, s DailySummary, resubmit bool) (DailySummary, error)
	GetDailySummary(ctx context.Context, userID UserID, date string) (DailySummary, error)
}

// Store is the full document store.
type Store interface {
	ActivityStore
	UserStore
	GoalStore
	LeaderboardStore
	SummaryStore
}
