/*
scheduler.go - Periodic leaderboard aggregation

PURPOSE:
  Runs Aggregator.RunCycle on a fixed interval (default 5 minutes).

DESIGN:
  - gocron DurationJob, first run immediately on Start
  - Singleton mode: a cycle that outlasts the interval delays the next one
    in this process. Other instances may still overlap; full recomputation
    makes that harmless
  - Stop cancels the context of a running cycle and waits for it

USAGE:
  scheduler := NewAggregationScheduler(aggregator, 5*time.Minute, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - scoring/leaderboard.go: Aggregator
  - handlers.go: RecomputeLeaderboard endpoint (manual cycle)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"github.com/warp/performance-engine/scoring"
)

// AggregationScheduler drives the leaderboard aggregator.
type AggregationScheduler struct {
	Aggregator *scoring.Aggregator
	Interval   time.Duration
	Enabled    bool
	Log        logrus.FieldLogger

	sched  gocron.Scheduler
	job    gocron.Job
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewAggregationScheduler creates a new scheduler.
func NewAggregationScheduler(ag *scoring.Aggregator, interval time.Duration, log logrus.FieldLogger) *AggregationScheduler {
	return &AggregationScheduler{
		Aggregator: ag,
		Interval:   interval,
		Enabled:    true,
		Log:        log.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (s *AggregationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("aggregation scheduler disabled, not starting")
		return nil
	}
	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	job, err := sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(s.runCycle),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		_ = sched.Shutdown()
		return err
	}

	s.sched = sched
	s.job = job
	sched.Start()

	s.Log.WithField("interval", s.Interval.String()).Info("aggregation scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running cycle.
func (s *AggregationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched == nil {
		return
	}
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		s.Log.WithError(err).Warn("aggregation scheduler shutdown")
	}
	s.sched = nil
	s.job = nil
	s.Log.Info("aggregation scheduler stopped")
}

func (s *AggregationScheduler) runCycle() {
	// errors are recorded on the run and logged by the aggregator
	_, _ = s.Aggregator.RunCycle(s.ctx)
}

// RunNow triggers an immediate cycle outside the schedule.
func (s *AggregationScheduler) RunNow(ctx context.Context) (scoring.AggregationRun, error) {
	return s.Aggregator.RunCycle(ctx)
}

// NextRun returns when the next scheduled cycle will start, or the zero
// time when the scheduler isn't running.
func (s *AggregationScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return time.Time{}
	}
	next, err := s.job.NextRun()
	if err != nil {
		return time.Time{}
	}
	return next
}
