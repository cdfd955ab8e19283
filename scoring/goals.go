/*
goals.go - Incremental goal updater

PURPOSE:
  Fans a newly created activity out to every active goal of its owner.
  Runs once per ActivityCreated event (inline or from the event bus).

CONTRACT:
  - Loads the user's goals with status = active
  - Per goal: progress[summaryKey] += contribution, progress.points += points,
    and progress.api += apiValue when a non-currency activity carries one
  - One atomic batch per activity: all matched goals update or none do
  - Idempotent per (activityID, goalID): redelivery is a no-op for goals
    already updated by a previous delivery
  - Planned (scheduled) activities are skipped until they are logged

FAILURE ISOLATION:
  A failed batch affects only this activity's owner. The caller decides
  whether to retry (event bus nack) or surface the error (replay endpoint).
*/
package scoring

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/warp/performance-engine/scoring")

// GoalUpdateResult describes one fan-out.
type GoalUpdateResult struct {
	Matched int `json:"matched"` // active goals found
	Applied int `json:"applied"` // goals updated by this call
	Skipped int `json:"skipped"` // goals already updated for this activity
}

// GoalUpdater applies activity increments to active goals.
type GoalUpdater struct {
	Store GoalStore
	Log   logrus.FieldLogger
}

func NewGoalUpdater(store GoalStore, log logrus.FieldLogger) *GoalUpdater {
	return &GoalUpdater{Store: store, Log: log}
}

// Increments computes the per-key deltas an activity contributes to a goal.
func Increments(a Activity) map[string]decimal.Decimal {
	deltas := map[string]decimal.Decimal{
		a.SummaryKey: a.Contribution(),
	}
	// a points-keyed summary would collide with the reserved key; points win
	deltas[PointsKey] = decimal.NewFromInt(int64(a.Points))
	if a.APIValue != nil && a.Measure != MeasureCurrency {
		deltas[APIKey] = deltas[APIKey].Add(*a.APIValue)
	}
	return deltas
}

// Apply fans out one activity. Safe to call repeatedly for the same activity.
func (u *GoalUpdater) Apply(ctx context.Context, a Activity) (GoalUpdateResult, error) {
	ctx, span := tracer.Start(ctx, "GoalUpdater.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("activity.id", string(a.ID)),
		attribute.String("user.id", string(a.UserID)),
	)

	var res GoalUpdateResult
	if a.IsScheduled() {
		return res, nil
	}

	goals, err := u.Store.ActiveGoals(ctx, a.UserID)
	if err != nil {
		span.RecordError(err)
		return res, WrapStore("load active goals", err)
	}
	res.Matched = len(goals)
	if len(goals) == 0 {
		return res, nil
	}

	deltas := Increments(a)
	incs := make([]GoalIncrement, 0, len(goals))
	for _, g := range goals {
		incs = append(incs, GoalIncrement{GoalID: g.ID, Deltas: deltas})
	}

	applied, err := u.Store.ApplyGoalIncrements(ctx, a.ID, incs)
	if err != nil {
		span.RecordError(err)
		return res, WrapStore("apply goal increments", err)
	}
	res.Applied = applied
	res.Skipped = res.Matched - applied

	u.Log.WithFields(logrus.Fields{
		"component":   "goals",
		"activity_id": a.ID,
		"user_id":     a.UserID,
		"matched":     res.Matched,
		"applied":     res.Applied,
		"skipped":     res.Skipped,
	}).Debug("goal fan-out committed")

	return res, nil
}
