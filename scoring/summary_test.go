package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/sales"
	"github.com/warp/performance-engine/scoring"
)

func newSummaryService(e *engine, now time.Time) *scoring.SummaryService {
	logg, _ := nullLogger()
	return &scoring.SummaryService{
		Store:     e.store,
		Compiler:  sales.NewCompiler(scoring.DefaultTiers),
		Location:  time.UTC,
		WeekStart: time.Monday,
		Log:       logg,
		Now:       fixedClock(now),
	}
}

func TestClockOut_NinePointDay(t *testing.T) {
	// GIVEN: A sale (5), a conducted fact-find (3) and a call (1) today
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")
	e.logSale(t, "u1", 15000, wed17.Add(-4*time.Hour))
	e.logAt(t, "u1", sales.TypeConductedFFI, wed17.Add(-3*time.Hour))
	e.logAt(t, "u1", sales.TypePhoneCall, wed17.Add(-2*time.Hour))
	// yesterday's work is not part of today's summary
	e.logAt(t, "u1", sales.TypePhoneCall, wed17.AddDate(0, 0, -1))

	// WHEN: Clocking out
	s, err := newSummaryService(e, wed17).ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "u1"})
	require.NoError(t, err)

	// THEN: Buckets, API total, points and tier reflect today only
	assert.Equal(t, "2024-01-17", s.Date)
	assert.True(t, s.Buckets[sales.KeySales].Equal(dec(1)))
	assert.True(t, s.Buckets[sales.KeyFFIConducted].Equal(dec(1)))
	assert.True(t, s.Buckets["calls"].Equal(dec(1)))
	assert.True(t, s.APITotal.Equal(dec(15000)))
	assert.Equal(t, 9, s.Points)
	assert.Equal(t, scoring.TierGood, s.Tier)

	// AND: The big sale bonus is reported separately from points
	require.Len(t, s.Bonuses, 1)
	assert.Equal(t, sales.BonusBigSale, s.Bonuses[0].Name)
	assert.Equal(t, 10, s.BonusPoints)

	// AND: Derived counts are left unclamped
	assert.True(t, s.Derived["ffi_cancelled"].Equal(dec(-1)))
	assert.True(t, s.Derived["appointments_cancelled"].IsZero())

	assert.Equal(t, 1, s.Revision)
	assert.Equal(t, wed17, s.SubmittedAt)
}

func TestClockOut_EmptyRejected(t *testing.T) {
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")
	svc := newSummaryService(e, wed17)

	_, err := svc.ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "u1", Notes: "   "})
	assert.True(t, errors.Is(err, scoring.ErrEmptySummary))
	assert.True(t, scoring.IsClientError(err))

	_, err = e.store.GetDailySummary(context.Background(), "u1", "2024-01-17")
	assert.True(t, errors.Is(err, scoring.ErrNotFound))
}

func TestClockOut_NotesOnlyAccepted(t *testing.T) {
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")

	s, err := newSummaryService(e, wed17).ClockOut(context.Background(),
		scoring.ClockOutRequest{UserID: "u1", Notes: " Admin day. "})

	require.NoError(t, err)
	assert.Equal(t, "Admin day.", s.Notes)
	assert.Equal(t, scoring.TierNone, s.Tier)
}

func TestClockOut_SecondSubmissionNeedsResubmit(t *testing.T) {
	// GIVEN: A submitted summary
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")
	e.logAt(t, "u1", sales.TypePhoneCall, wed17.Add(-time.Hour))
	svc := newSummaryService(e, wed17)
	_, err := svc.ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "u1"})
	require.NoError(t, err)

	// WHEN: Submitting again without the resubmit flag
	_, err = svc.ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "u1"})

	// THEN: It conflicts
	assert.True(t, scoring.IsConflict(err))

	// AND: An explicit resubmission replaces it with the next revision
	e.logAt(t, "u1", sales.TypeConductedClosing, wed17.Add(-time.Minute))
	s, err := svc.ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "u1", Resubmit: true})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Revision)
	assert.Equal(t, 5, s.Points)
}

func TestClockOut_UnknownUser(t *testing.T) {
	e := newEngine(t)
	_, err := newSummaryService(e, wed17).ClockOut(context.Background(), scoring.ClockOutRequest{UserID: "ghost"})
	assert.True(t, scoring.IsNotFound(err))
}

func TestClockOut_PastDateAndTomorrowPlan(t *testing.T) {
	// GIVEN: Work on Monday and plans for Tuesday
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")
	monday := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	e.logAt(t, "u1", sales.TypePhoneCall, monday)

	for _, p := range []struct {
		typ  string
		when time.Time
		api  *int64
	}{
		{sales.TypeConductedClosing, time.Date(2024, 1, 16, 14, 0, 0, 0, time.UTC), nil},
		{sales.TypeSaleClosed, time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC), ptr64(3000)},
		// Wednesday is outside the plan window
		{sales.TypePhoneCall, time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC), nil},
	} {
		in := scoring.NewActivity{UserID: "u1", Type: p.typ, ScheduledFor: at(p.when)}
		if p.api != nil {
			in.APIValue = decPtr(*p.api)
		}
		_, err := e.recorder.Record(context.Background(), in)
		require.NoError(t, err)
	}

	// WHEN: Clocking out for Monday on Wednesday
	s, err := newSummaryService(e, wed17).ClockOut(context.Background(),
		scoring.ClockOutRequest{UserID: "u1", Date: monday})
	require.NoError(t, err)

	// THEN: The plan lists Tuesday's items in schedule order
	assert.Equal(t, "2024-01-15", s.Date)
	assert.Equal(t, 1, s.Points)
	require.Len(t, s.Plan.Items, 2)
	assert.Equal(t, sales.TypeSaleClosed, s.Plan.Items[0].Type)
	assert.Equal(t, sales.TypeConductedClosing, s.Plan.Items[1].Type)
	assert.Equal(t, 9, s.Plan.PotentialPoints)
	assert.True(t, s.Plan.PotentialAPI.Equal(dec(3000)))
}

func ptr64(v int64) *int64 { return &v }

func TestTierThresholds(t *testing.T) {
	tests := []struct {
		points int
		want   string
	}{
		{0, scoring.TierNone},
		{1, scoring.TierGood},
		{49, scoring.TierGood},
		{50, scoring.TierExcellent},
		{99, scoring.TierExcellent},
		{100, scoring.TierSuperhuman},
		{250, scoring.TierSuperhuman},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoring.DefaultTiers.Tier(tt.points), "points=%d", tt.points)
	}

	custom := scoring.TierThresholds{Superhuman: 20, Excellent: 10}
	assert.Equal(t, scoring.TierExcellent, custom.Tier(10))
}

func TestCompile_MinuteAndCurrencyBuckets(t *testing.T) {
	e := newEngine(t)
	training, err := e.recorder.Build(scoring.NewActivity{UserID: "u1", Type: "Training Session", OccurredAt: at(wed17), Minutes: 30})
	require.NoError(t, err)
	meeting, err := e.recorder.Build(scoring.NewActivity{UserID: "u1", Type: "Training Session", OccurredAt: at(wed17), Minutes: 45})
	require.NoError(t, err)
	deposit, err := e.recorder.Build(scoring.NewActivity{UserID: "u1", Type: "Premium Deposit", OccurredAt: at(wed17), APIValue: decPtr(700)})
	require.NoError(t, err)

	s, err := sales.NewCompiler(scoring.DefaultTiers).Compile(scoring.SummaryInput{
		UserID: "u1",
		Date:   wed17,
		Today:  []scoring.Activity{training, meeting, deposit},
	})
	require.NoError(t, err)

	assert.True(t, s.Buckets["training_minutes"].Equal(dec(75)))
	assert.True(t, s.Buckets["premium_deposits"].Equal(dec(700)))
	assert.True(t, s.APITotal.Equal(dec(700)))
	assert.Equal(t, 4, s.Points)
}

func TestPeriodBonuses(t *testing.T) {
	// GIVEN: Three fact-finds and two closings spread over this week
	e := newEngine(t)
	e.addUser(t, "u1", "Ada")
	for i := 0; i < 3; i++ {
		e.logAt(t, "u1", sales.TypeConductedFFI, wed17.AddDate(0, 0, -i))
	}
	e.logAt(t, "u1", sales.TypeConductedClosing, wed17.AddDate(0, 0, -1))
	e.logAt(t, "u1", sales.TypeConductedClosing, wed17.AddDate(0, 0, -2))

	svc := newSummaryService(e, wed17)

	// THEN: The weekly window qualifies, the daily one does not
	period, awards, err := svc.PeriodBonuses(context.Background(), "u1", scoring.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), period.Start)
	require.Len(t, awards, 1)
	assert.Equal(t, sales.BonusInterviewCombo, awards[0].Name)

	_, awards, err = svc.PeriodBonuses(context.Background(), "u1", scoring.PeriodDay)
	require.NoError(t, err)
	assert.Empty(t, awards)
}
