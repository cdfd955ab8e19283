// Package store provides Store implementations.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/scoring"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	activities  map[scoring.ActivityID]scoring.Activity
	users       map[scoring.UserID]scoring.User
	goals       map[scoring.GoalID]*scoring.Goal
	applied     map[markerKey]bool
	leaderboard map[scoring.UserID]scoring.LeaderboardEntry
	runs        []scoring.AggregationRun
	summaries   map[summaryKey]scoring.DailySummary

	// FailGoalAfter makes ApplyGoalIncrements fail after that many goals
	// have been written, to exercise rollback. Zero disables it.
	FailGoalAfter int
}

type markerKey struct {
	ActivityID scoring.ActivityID
	GoalID     scoring.GoalID
}

type summaryKey struct {
	UserID scoring.UserID
	Date   string
}

var _ scoring.Store = (*Memory)(nil)

var errInjected = errors.New("memory store: injected goal write failure")

func NewMemory() *Memory {
	return &Memory{
		activities:  make(map[scoring.ActivityID]scoring.Activity),
		users:       make(map[scoring.UserID]scoring.User),
		goals:       make(map[scoring.GoalID]*scoring.Goal),
		applied:     make(map[markerKey]bool),
		leaderboard: make(map[scoring.UserID]scoring.LeaderboardEntry),
		summaries:   make(map[summaryKey]scoring.DailySummary),
	}
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (m *Memory) AppendActivity(_ context.Context, a scoring.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.activities[a.ID]; exists {
		return scoring.ErrDuplicateActivity
	}
	m.activities[a.ID] = a
	return nil
}

func (m *Memory) GetActivity(_ context.Context, id scoring.ActivityID) (scoring.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.activities[id]
	if !ok {
		return scoring.Activity{}, scoring.ErrNotFound
	}
	return a, nil
}

func (m *Memory) LoggedSince(_ context.Context, from time.Time) ([]scoring.Activity, error) {
	return m.filter(func(a scoring.Activity) bool {
		return a.OccurredAt != nil && !a.OccurredAt.Before(from)
	}), nil
}

func (m *Memory) LoggedBetween(_ context.Context, userID scoring.UserID, from, to time.Time) ([]scoring.Activity, error) {
	return m.filter(func(a scoring.Activity) bool {
		return a.UserID == userID && a.OccurredAt != nil &&
			!a.OccurredAt.Before(from) && a.OccurredAt.Before(to)
	}), nil
}

func (m *Memory) ScheduledBetween(_ context.Context, userID scoring.UserID, from, to time.Time) ([]scoring.Activity, error) {
	return m.filter(func(a scoring.Activity) bool {
		return a.UserID == userID && a.ScheduledFor != nil &&
			!a.ScheduledFor.Before(from) && a.ScheduledFor.Before(to)
	}), nil
}

// filter returns matches ordered by time then ID.
func (m *Memory) filter(keep func(scoring.Activity) bool) []scoring.Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scoring.Activity
	for _, a := range m.activities {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At().Equal(out[j].At()) {
			return out[i].At().Before(out[j].At())
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u scoring.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id scoring.UserID) (scoring.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return scoring.User{}, scoring.ErrNotFound
	}
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]scoring.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]scoring.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// GOALS
// =============================================================================

func (m *Memory) SaveGoal(_ context.Context, g scoring.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyGoal(g)
	if cp.Progress == nil {
		cp.Progress = make(map[string]decimal.Decimal)
	}
	m.goals[g.ID] = &cp
	return nil
}

func (m *Memory) GetGoal(_ context.Context, id scoring.GoalID) (scoring.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.goals[id]
	if !ok {
		return scoring.Goal{}, scoring.ErrNotFound
	}
	return copyGoal(*g), nil
}

func (m *Memory) ListGoals(_ context.Context, userID scoring.UserID) ([]scoring.Goal, error) {
	return m.goalsWhere(func(g *scoring.Goal) bool { return g.UserID == userID }), nil
}

func (m *Memory) ActiveGoals(_ context.Context, userID scoring.UserID) ([]scoring.Goal, error) {
	return m.goalsWhere(func(g *scoring.Goal) bool {
		return g.UserID == userID && g.Status == scoring.GoalActive
	}), nil
}

func (m *Memory) goalsWhere(keep func(*scoring.Goal) bool) []scoring.Goal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scoring.Goal
	for _, g := range m.goals {
		if keep(g) {
			out = append(out, copyGoal(*g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) SetGoalStatus(_ context.Context, id scoring.GoalID, status scoring.GoalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.goals[id]
	if !ok {
		return scoring.ErrNotFound
	}
	g.Status = status
	return nil
}

// ApplyGoalIncrements applies the batch under the write lock. State is
// snapshotted first and restored if any goal fails.
func (m *Memory) ApplyGoalIncrements(_ context.Context, activityID scoring.ActivityID, incs []scoring.GoalIncrement) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotGoals()
	applied := 0
	for _, inc := range incs {
		mk := markerKey{ActivityID: activityID, GoalID: inc.GoalID}
		if m.applied[mk] {
			continue
		}
		if m.FailGoalAfter > 0 && applied >= m.FailGoalAfter {
			m.restoreGoals(snap)
			return 0, errInjected
		}
		g, ok := m.goals[inc.GoalID]
		if !ok {
			m.restoreGoals(snap)
			return 0, scoring.ErrNotFound
		}
		// archived or completed since the caller listed it
		if g.Status != scoring.GoalActive {
			continue
		}
		for key, delta := range inc.Deltas {
			g.Progress[key] = g.Progress[key].Add(delta)
		}
		if g.TargetsMet() {
			g.Status = scoring.GoalCompleted
		}
		m.applied[mk] = true
		applied++
	}
	return applied, nil
}

type goalSnapshot struct {
	goals   map[scoring.GoalID]scoring.Goal
	applied map[markerKey]bool
}

func (m *Memory) snapshotGoals() goalSnapshot {
	s := goalSnapshot{
		goals:   make(map[scoring.GoalID]scoring.Goal, len(m.goals)),
		applied: make(map[markerKey]bool, len(m.applied)),
	}
	for id, g := range m.goals {
		s.goals[id] = copyGoal(*g)
	}
	for k, v := range m.applied {
		s.applied[k] = v
	}
	return s
}

func (m *Memory) restoreGoals(s goalSnapshot) {
	m.goals = make(map[scoring.GoalID]*scoring.Goal, len(s.goals))
	for id, g := range s.goals {
		g := g
		m.goals[id] = &g
	}
	m.applied = s.applied
}

func copyGoal(g scoring.Goal) scoring.Goal {
	cp := g
	if g.Progress != nil {
		cp.Progress = make(map[string]decimal.Decimal, len(g.Progress))
		for k, v := range g.Progress {
			cp.Progress[k] = v
		}
	}
	if g.Targets != nil {
		cp.Targets = make(map[string]decimal.Decimal, len(g.Targets))
		for k, v := range g.Targets {
			cp.Targets[k] = v
		}
	}
	return cp
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func (m *Memory) PutLeaderboardEntry(_ context.Context, e scoring.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaderboard[e.UserID] = e
	return nil
}

func (m *Memory) GetLeaderboardEntry(_ context.Context, userID scoring.UserID) (scoring.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.leaderboard[userID]
	if !ok {
		return scoring.LeaderboardEntry{}, scoring.ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListLeaderboard(_ context.Context) ([]scoring.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]scoring.LeaderboardEntry, 0, len(m.leaderboard))
	for _, e := range m.leaderboard {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) SaveAggregationRun(_ context.Context, r scoring.AggregationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == r.ID {
			m.runs[i] = r
			return nil
		}
	}
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) ListAggregationRuns(_ context.Context, limit int) ([]scoring.AggregationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]scoring.AggregationRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// DAILY SUMMARIES
// =============================================================================

func (m *Memory) SaveDailySummary(_ context.Context, s scoring.DailySummary, resubmit bool) (scoring.DailySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := summaryKey{UserID: s.UserID, Date: s.Date}
	prev, exists := m.summaries[k]
	switch {
	case exists && !resubmit:
		return scoring.DailySummary{}, scoring.ErrSummaryExists
	case exists:
		s.Revision = prev.Revision + 1
	default:
		s.Revision = 1
	}
	m.summaries[k] = s
	return s, nil
}

func (m *Memory) GetDailySummary(_ context.Context, userID scoring.UserID, date string) (scoring.DailySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[summaryKey{UserID: userID, Date: date}]
	if !ok {
		return scoring.DailySummary{}, scoring.ErrNotFound
	}
	return s, nil
}
