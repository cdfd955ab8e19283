package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/sales"
	"github.com/warp/performance-engine/scoring"
	"github.com/warp/performance-engine/scoring/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// wed17 is Wednesday 2024-01-17, 15:30 UTC.
var wed17 = time.Date(2024, time.January, 17, 15, 30, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func nullLogger() (*logrus.Logger, *logtest.Hook) {
	logg, hook := logtest.NewNullLogger()
	logg.SetLevel(logrus.DebugLevel)
	return logg, hook
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func at(t time.Time) *time.Time {
	return &t
}

// engine bundles a memory store with the sales-wired services.
type engine struct {
	store    *store.Memory
	recorder *scoring.Recorder
	goals    *scoring.GoalUpdater
	log      *logtest.Hook
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logg, hook := nullLogger()
	st := store.NewMemory()
	goals := scoring.NewGoalUpdater(st, logg)
	rec := scoring.NewRecorder(sales.Rules(), st, scoring.InlineDispatcher{Goals: goals}, logg)
	rec.Now = fixedClock(wed17)
	return &engine{store: st, recorder: rec, goals: goals, log: hook}
}

func (e *engine) addUser(t *testing.T, id, name string) {
	t.Helper()
	require.NoError(t, e.store.SaveUser(context.Background(), scoring.User{ID: scoring.UserID(id), Name: name}))
}

func (e *engine) addGoal(t *testing.T, id, userID string, targets map[string]decimal.Decimal) {
	t.Helper()
	require.NoError(t, e.store.SaveGoal(context.Background(), scoring.Goal{
		ID:       scoring.GoalID(id),
		UserID:   scoring.UserID(userID),
		Name:     id,
		Status:   scoring.GoalActive,
		Progress: map[string]decimal.Decimal{},
		Targets:  targets,
	}))
}

// logAt records a logged activity of the given type.
func (e *engine) logAt(t *testing.T, userID, activityType string, when time.Time) scoring.Activity {
	t.Helper()
	a, err := e.recorder.Record(context.Background(), scoring.NewActivity{
		UserID:     scoring.UserID(userID),
		Type:       activityType,
		OccurredAt: at(when),
	})
	require.NoError(t, err)
	return a
}

func (e *engine) logSale(t *testing.T, userID string, api int64, when time.Time) scoring.Activity {
	t.Helper()
	a, err := e.recorder.Record(context.Background(), scoring.NewActivity{
		UserID:     scoring.UserID(userID),
		Type:       sales.TypeSaleClosed,
		OccurredAt: at(when),
		APIValue:   decPtr(api),
	})
	require.NoError(t, err)
	return a
}
