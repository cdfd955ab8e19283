package api

import (
	"context"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/scoring"
	"github.com/warp/performance-engine/scoring/store"
)

func newSchedulerFixture(t *testing.T) (*AggregationScheduler, *store.Memory) {
	t.Helper()
	logg, _ := logtest.NewNullLogger()
	st := store.NewMemory()
	require.NoError(t, st.SaveUser(context.Background(), scoring.User{ID: "u1", Name: "Ada"}))
	ag := scoring.NewAggregator(st, time.UTC, time.Monday, logg)
	return NewAggregationScheduler(ag, time.Hour, logg), st
}

func TestScheduler_StartRunsImmediately(t *testing.T) {
	// GIVEN: A scheduler with a long interval
	s, st := newSchedulerFixture(t)

	// WHEN: Started
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	// THEN: The first cycle runs right away and the next is an interval out
	assert.Eventually(t, func() bool {
		_, err := st.GetLeaderboardEntry(context.Background(), "u1")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	next := s.NextRun()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), next, time.Minute)
}

func TestScheduler_Disabled(t *testing.T) {
	s, st := newSchedulerFixture(t)
	s.Enabled = false

	require.NoError(t, s.Start())
	assert.True(t, s.NextRun().IsZero())

	runs, err := st.ListAggregationRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// manual cycles still work
	run, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scoring.RunCompleted, run.Status)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s, _ := newSchedulerFixture(t)
	require.NoError(t, s.Start())

	s.Stop()
	s.Stop()
	assert.True(t, s.NextRun().IsZero())
}
