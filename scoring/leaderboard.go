/*
leaderboard.go - Scheduled leaderboard aggregation

PURPOSE:
  Recomputes every known user's daily/weekly/monthly point totals from the
  activity log and overwrites their LeaderboardEntry documents.

DESIGN:
  - Full recomputation every cycle, never an incremental patch, so missed
    or overlapping cycles heal on the next run
  - Every known user gets exactly one entry, zero-valued when idle
  - The scan window opens at min(weekStart, monthStart): a week that
    straddles a month boundary starts before the month does
  - Per-user writes are independent; a store error ends the cycle and the
    next scheduled run supersedes it
  - No lock is required. An optional CycleGuard skips a cycle while another
    instance holds it

SEE ALSO:
  - api/scheduler.go: Runs RunCycle on a fixed interval
  - cache/redis.go: SnapshotPublisher and CycleGuard implementations
*/
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SnapshotPublisher receives the full entry set after a successful cycle
// (e.g. a read cache). Failures are logged and never fail the cycle.
type SnapshotPublisher interface {
	PublishLeaderboard(ctx context.Context, entries []LeaderboardEntry) error
}

// CycleGuard optionally serializes cycles across instances.
type CycleGuard interface {
	Acquire(ctx context.Context) (release func(context.Context), acquired bool, err error)
}

// AggregatorStore is what a cycle reads and writes.
type AggregatorStore interface {
	UserStore
	LoggedSince(ctx context.Context, from time.Time) ([]Activity, error)
	LeaderboardStore
}

// Aggregator recomputes leaderboard entries.
type Aggregator struct {
	Store     AggregatorStore
	Location  *time.Location
	WeekStart time.Weekday
	Publisher SnapshotPublisher
	Guard     CycleGuard
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func NewAggregator(store AggregatorStore, loc *time.Location, weekStart time.Weekday, log logrus.FieldLogger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{Store: store, Location: loc, WeekStart: weekStart, Log: log, Now: time.Now}
}

// Windows holds the period starts for one cycle.
type Windows struct {
	DayStart   time.Time
	WeekStart  time.Time
	MonthStart time.Time
}

// ScanFrom is the earliest instant any window needs.
func (w Windows) ScanFrom() time.Time {
	if w.WeekStart.Before(w.MonthStart) {
		return w.WeekStart
	}
	return w.MonthStart
}

// WindowsAt resolves the leaderboard windows at now.
func WindowsAt(now time.Time, weekStart time.Weekday) Windows {
	return Windows{
		DayStart:   StartOf(PeriodDay, now, weekStart),
		WeekStart:  StartOf(PeriodWeek, now, weekStart),
		MonthStart: StartOf(PeriodMonth, now, weekStart),
	}
}

// ComputeEntries sums activities into one entry per user, ordered by user ID.
// Activities of unknown users are ignored.
func ComputeEntries(users []User, activities []Activity, w Windows) []LeaderboardEntry {
	byUser := make(map[UserID]*LeaderboardEntry, len(users))
	for _, u := range users {
		byUser[u.ID] = &LeaderboardEntry{
			UserID:     u.ID,
			Name:       u.Name,
			PhotoURL:   u.PhotoURL,
			Role:       u.Role,
			DayStart:   w.DayStart.UTC(),
			WeekStart:  w.WeekStart.UTC(),
			MonthStart: w.MonthStart.UTC(),
		}
	}

	for _, a := range activities {
		e, ok := byUser[a.UserID]
		if !ok || a.OccurredAt == nil {
			continue
		}
		at := *a.OccurredAt
		if !at.Before(w.DayStart) {
			e.Daily += a.Points
		}
		if !at.Before(w.WeekStart) {
			e.Weekly += a.Points
		}
		if !at.Before(w.MonthStart) {
			e.Monthly += a.Points
		}
	}

	entries := make([]LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// RunCycle performs one full recomputation.
func (ag *Aggregator) RunCycle(ctx context.Context) (AggregationRun, error) {
	ctx, span := tracer.Start(ctx, "Aggregator.RunCycle")
	defer span.End()

	now := ag.Now().In(ag.Location)
	run := AggregationRun{ID: uuid.NewString(), Status: RunRunning, StartedAt: now.UTC()}
	log := ag.Log.WithFields(logrus.Fields{"component": "aggregator", "run_id": run.ID})

	if ag.Guard != nil {
		release, acquired, err := ag.Guard.Acquire(ctx)
		switch {
		case err != nil:
			log.WithError(err).Warn("cycle guard unavailable; running unguarded")
		case !acquired:
			log.Info("another instance holds the cycle; skipping")
			run.Status = RunSkipped
			ag.finish(ctx, log, &run)
			return run, nil
		default:
			defer release(context.WithoutCancel(ctx))
		}
	}
	ag.saveRun(ctx, log, run)

	users, err := ag.Store.ListUsers(ctx)
	if err != nil {
		return ag.fail(ctx, log, run, WrapStore("list users", err))
	}
	run.Users = len(users)

	windows := WindowsAt(now, ag.WeekStart)
	activities, err := ag.Store.LoggedSince(ctx, windows.ScanFrom())
	if err != nil {
		return ag.fail(ctx, log, run, WrapStore("scan activities", err))
	}
	run.Activities = len(activities)

	entries := ComputeEntries(users, activities, windows)
	for _, e := range entries {
		if err := ag.Store.PutLeaderboardEntry(ctx, e); err != nil {
			return ag.fail(ctx, log, run, WrapStore(fmt.Sprintf("put entry %s", e.UserID), err))
		}
		run.Written++
	}

	if ag.Publisher != nil {
		if err := ag.Publisher.PublishLeaderboard(ctx, entries); err != nil {
			log.WithError(err).Warn("leaderboard cache refresh failed")
		}
	}

	span.SetAttributes(
		attribute.Int("aggregator.users", run.Users),
		attribute.Int("aggregator.activities", run.Activities),
	)
	run.Status = RunCompleted
	ag.finish(ctx, log, &run)
	log.WithFields(logrus.Fields{
		"users":      run.Users,
		"activities": run.Activities,
		"written":    run.Written,
	}).Info("leaderboard cycle completed")
	return run, nil
}

func (ag *Aggregator) fail(ctx context.Context, log logrus.FieldLogger, run AggregationRun, err error) (AggregationRun, error) {
	run.Status = RunFailed
	run.Error = err.Error()
	ag.finish(ctx, log, &run)
	log.WithError(err).WithField("written", run.Written).Error("leaderboard cycle ended early")
	return run, err
}

func (ag *Aggregator) finish(ctx context.Context, log logrus.FieldLogger, run *AggregationRun) {
	done := ag.Now().UTC()
	run.CompletedAt = &done
	ag.saveRun(ctx, log, *run)
}

// The run log is informational; losing a row never fails a cycle.
func (ag *Aggregator) saveRun(ctx context.Context, log logrus.FieldLogger, run AggregationRun) {
	if err := ag.Store.SaveAggregationRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Warn("failed to record aggregation run")
	}
}

// =============================================================================
// RANKING - read side
// =============================================================================

// RankedEntry is an entry with its position for one window.
type RankedEntry struct {
	Rank   int `json:"rank"`
	Points int `json:"points"`
	LeaderboardEntry
}

// Rank orders entries by the window's total, descending. Ties share a rank
// and are listed by name then user ID.
func Rank(entries []LeaderboardEntry, kind PeriodKind) []RankedEntry {
	sorted := append([]LeaderboardEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Total(kind), sorted[j].Total(kind)
		if ti != tj {
			return ti > tj
		}
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	ranked := make([]RankedEntry, len(sorted))
	for i, e := range sorted {
		rank := i + 1
		if i > 0 && e.Total(kind) == ranked[i-1].Points {
			rank = ranked[i-1].Rank
		}
		ranked[i] = RankedEntry{Rank: rank, Points: e.Total(kind), LeaderboardEntry: e}
	}
	return ranked
}
