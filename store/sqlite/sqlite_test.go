package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/scoring"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var ref = time.Date(2024, 1, 17, 15, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func logged(id, user string, at time.Time, points int) scoring.Activity {
	return scoring.Activity{
		ID:          scoring.ActivityID(id),
		UserID:      scoring.UserID(user),
		Type:        "Phone Call",
		OccurredAt:  &at,
		Points:      points,
		SummaryKey:  "calls",
		Measure:     scoring.MeasureCount,
		Category:    "contact",
		RuleVersion: "test",
		CreatedAt:   at,
	}
}

func planned(id, user string, at time.Time) scoring.Activity {
	a := logged(id, user, at, 4)
	a.OccurredAt = nil
	a.ScheduledFor = &at
	return a
}

func quietLogger() logrus.FieldLogger {
	logg, _ := logtest.NewNullLogger()
	return logg
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// =============================================================================
// ACTIVITIES
// =============================================================================

func TestActivities_RoundTripAndDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := logged("a1", "u1", ref, 5)
	api := d("15000.50")
	a.APIValue = &api
	a.RelatedTo = "client-7"
	require.NoError(t, s.AppendActivity(ctx, a))

	got, err := s.GetActivity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a.Points, got.Points)
	assert.Equal(t, a.SummaryKey, got.SummaryKey)
	assert.True(t, got.OccurredAt.Equal(ref))
	assert.Nil(t, got.ScheduledFor)
	require.NotNil(t, got.APIValue)
	assert.True(t, got.APIValue.Equal(api))
	assert.Equal(t, "client-7", got.RelatedTo)

	err = s.AppendActivity(ctx, a)
	assert.True(t, errors.Is(err, scoring.ErrDuplicateActivity))

	_, err = s.GetActivity(ctx, "missing")
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
}

func TestActivities_WindowReads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendActivity(ctx, logged("old", "u1", ref.AddDate(0, 0, -3), 1)))
	require.NoError(t, s.AppendActivity(ctx, logged("b", "u1", ref, 1)))
	require.NoError(t, s.AppendActivity(ctx, logged("a", "u1", ref, 1)))
	require.NoError(t, s.AppendActivity(ctx, logged("other", "u2", ref.Add(time.Hour), 1)))
	require.NoError(t, s.AppendActivity(ctx, planned("plan", "u1", ref.Add(24*time.Hour))))

	since, err := s.LoggedSince(ctx, ref.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 3)
	// ordered by time then ID
	assert.Equal(t, []scoring.ActivityID{"a", "b", "other"}, []scoring.ActivityID{since[0].ID, since[1].ID, since[2].ID})

	dayStart := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	between, err := s.LoggedBetween(ctx, "u1", dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	tomorrow := dayStart.AddDate(0, 0, 1)
	plans, err := s.ScheduledBetween(ctx, "u1", tomorrow, tomorrow.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, scoring.ActivityID("plan"), plans[0].ID)
	assert.Nil(t, plans[0].OccurredAt)
}

func TestActivities_NonUTCTimestampsCompareChronologically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 09:00 in UTC+5 is 04:00 UTC, before 05:00 UTC
	plus5 := time.FixedZone("UTC+5", 5*3600)
	require.NoError(t, s.AppendActivity(ctx, logged("east", "u1", time.Date(2024, 1, 17, 9, 0, 0, 0, plus5), 1)))

	acts, err := s.LoggedSince(ctx, time.Date(2024, 1, 17, 5, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, acts)
}

// =============================================================================
// GOALS
// =============================================================================

func seedGoal(t *testing.T, s *Store, id, user string, targets map[string]decimal.Decimal) {
	t.Helper()
	require.NoError(t, s.SaveGoal(context.Background(), scoring.Goal{
		ID:        scoring.GoalID(id),
		UserID:    scoring.UserID(user),
		Name:      id,
		Status:    scoring.GoalActive,
		Targets:   targets,
		CreatedAt: ref,
	}))
}

func TestGoals_ApplyIncrementsOncePerActivity(t *testing.T) {
	// GIVEN: Two active goals
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", nil)
	seedGoal(t, s, "g2", "u1", nil)

	incs := []scoring.GoalIncrement{
		{GoalID: "g1", Deltas: map[string]decimal.Decimal{"sales": d("1"), "points": d("5"), "api": d("1234.5")}},
		{GoalID: "g2", Deltas: map[string]decimal.Decimal{"sales": d("1"), "points": d("5"), "api": d("1234.5")}},
	}

	// WHEN: Applying the same activity twice
	n, err := s.ApplyGoalIncrements(ctx, "a1", incs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ApplyGoalIncrements(ctx, "a1", incs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// THEN: Progress counts the activity once
	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Progress["sales"].Equal(d("1")))
	assert.True(t, g.Progress["points"].Equal(d("5")))
	assert.True(t, g.Progress["api"].Equal(d("1234.5")))
}

func TestGoals_MissingGoalRollsBackBatch(t *testing.T) {
	// GIVEN: A batch whose second goal does not exist
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", nil)

	incs := []scoring.GoalIncrement{
		{GoalID: "g1", Deltas: map[string]decimal.Decimal{"calls": d("1")}},
		{GoalID: "ghost", Deltas: map[string]decimal.Decimal{"calls": d("1")}},
	}

	// WHEN: Applying it
	_, err := s.ApplyGoalIncrements(ctx, "a1", incs)

	// THEN: The first goal's increment and marker were rolled back
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Progress["calls"].IsZero())

	n, err := s.ApplyGoalIncrements(ctx, "a1", incs[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGoals_ConcurrentIncrementsAdd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", nil)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ApplyGoalIncrements(ctx, scoring.ActivityID(fmt.Sprintf("a%d", i)),
				[]scoring.GoalIncrement{{GoalID: "g1", Deltas: map[string]decimal.Decimal{"points": d("2")}}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.Progress["points"].Equal(d("50")))
}

func TestGoals_TargetsCompleteAndStatusFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", map[string]decimal.Decimal{"points": d("10")})
	seedGoal(t, s, "g2", "u1", nil)
	require.NoError(t, s.SetGoalStatus(ctx, "g2", scoring.GoalArchived))

	_, err := s.ApplyGoalIncrements(ctx, "a1",
		[]scoring.GoalIncrement{{GoalID: "g1", Deltas: map[string]decimal.Decimal{"points": d("10")}}})
	require.NoError(t, err)

	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, scoring.GoalCompleted, g.Status)
	assert.True(t, g.Targets["points"].Equal(d("10")))

	active, err := s.ActiveGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.True(t, errors.Is(s.SetGoalStatus(ctx, "ghost", scoring.GoalArchived), scoring.ErrNotFound))
}

func TestGoals_SkipsGoalsNoLongerActive(t *testing.T) {
	// GIVEN: A goal archived after the fan-out listed it
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", nil)
	seedGoal(t, s, "g2", "u1", nil)
	require.NoError(t, s.SetGoalStatus(ctx, "g2", scoring.GoalArchived))

	incs := []scoring.GoalIncrement{
		{GoalID: "g1", Deltas: map[string]decimal.Decimal{"calls": d("1")}},
		{GoalID: "g2", Deltas: map[string]decimal.Decimal{"calls": d("1")}},
	}

	// WHEN: The batch is applied
	n, err := s.ApplyGoalIncrements(ctx, "a1", incs)
	require.NoError(t, err)

	// THEN: Only the active goal moved
	assert.Equal(t, 1, n)
	g, err := s.GetGoal(ctx, "g2")
	require.NoError(t, err)
	assert.True(t, g.Progress["calls"].IsZero())

	// AND: No marker was written, so a reactivated goal can still take it
	require.NoError(t, s.SetGoalStatus(ctx, "g2", scoring.GoalActive))
	n, err = s.ApplyGoalIncrements(ctx, "a1", incs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGoals_LargeAndFractionalValuesKeepPrecision(t *testing.T) {
	// GIVEN: A goal with a target beyond int64 range once scaled
	s := newTestStore(t)
	ctx := context.Background()
	seedGoal(t, s, "g1", "u1", map[string]decimal.Decimal{"api": d("1500000000000000")})

	// WHEN: Very large and very precise api values accumulate
	for i, v := range []string{"0.000000001", "1000000000000000", "600000000000000.123456789"} {
		_, err := s.ApplyGoalIncrements(ctx, scoring.ActivityID(fmt.Sprintf("a%d", i)),
			[]scoring.GoalIncrement{{GoalID: "g1", Deltas: map[string]decimal.Decimal{"api": d(v)}}})
		require.NoError(t, err, v)
	}

	// THEN: Reads still work and the sum is exact
	g, err := s.GetGoal(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "1600000000000000.123456790", g.Progress["api"].StringFixed(9))
	assert.Equal(t, scoring.GoalCompleted, g.Status)

	all, err := s.ListGoals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Targets["api"].Equal(d("1500000000000000")))
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func TestLeaderboard_CycleRewritesIdenticalDocuments(t *testing.T) {
	// GIVEN: Users, activities and a completed cycle
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, scoring.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, s.SaveUser(ctx, scoring.User{ID: "u2", Name: "Grace", PhotoURL: "https://example.com/g.png"}))
	require.NoError(t, s.AppendActivity(ctx, logged("a1", "u1", ref, 5)))
	require.NoError(t, s.AppendActivity(ctx, logged("a2", "u2", ref.AddDate(0, 0, -1), 3)))

	ag := scoring.NewAggregator(s, time.UTC, time.Monday, quietLogger())
	ag.Now = func() time.Time { return ref }

	_, err := ag.RunCycle(ctx)
	require.NoError(t, err)
	first, err := s.LeaderboardDocument(ctx, "u1")
	require.NoError(t, err)

	// WHEN: A second cycle runs with no new activity
	run, err := ag.RunCycle(ctx)
	require.NoError(t, err)

	// THEN: The stored document is byte-identical
	second, err := s.LeaderboardDocument(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, run.Written)

	entries, err := s.ListLeaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 5, entries[0].Daily)
	assert.Equal(t, 3, entries[1].Weekly)
	assert.Equal(t, "https://example.com/g.png", entries[1].PhotoURL)

	runs, err := s.ListAggregationRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, scoring.RunCompleted, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestLeaderboard_MissingEntry(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetLeaderboardEntry(context.Background(), "nobody")
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
}

// =============================================================================
// USERS AND SUMMARIES
// =============================================================================

func TestUsers_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, scoring.User{ID: "u1", Name: "Ada"}))
	require.NoError(t, s.SaveUser(ctx, scoring.User{ID: "u1", Name: "Ada L.", Role: "agent"}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.Name)
	assert.Equal(t, "agent", u.Role)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = s.GetUser(ctx, "ghost")
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
}

func TestDailySummary_CreateOnceThenResubmit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sum := scoring.DailySummary{
		UserID:      "u1",
		Date:        "2024-01-17",
		Buckets:     map[string]decimal.Decimal{"sales": d("1")},
		APITotal:    d("15000"),
		Derived:     map[string]decimal.Decimal{"ffi_cancelled": d("-1")},
		Points:      9,
		Tier:        scoring.TierGood,
		SubmittedAt: ref,
	}

	saved, err := s.SaveDailySummary(ctx, sum, false)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Revision)

	_, err = s.SaveDailySummary(ctx, sum, false)
	assert.True(t, errors.Is(err, scoring.ErrSummaryExists))

	sum.Points = 12
	saved, err = s.SaveDailySummary(ctx, sum, true)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Revision)

	got, err := s.GetDailySummary(ctx, "u1", "2024-01-17")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Points)
	assert.Equal(t, 2, got.Revision)
	assert.True(t, got.Derived["ffi_cancelled"].Equal(d("-1")))

	_, err = s.GetDailySummary(ctx, "u1", "2024-01-18")
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
}
