// Package scheduler drives the contest lifecycle off the wall clock: a
// one-minute tick detects contest starts and maintenance windows and
// submits one-shot jobs against the lifecycle service.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

const (
	tickInterval = time.Minute

	// Pre-warm offsets cache participant ratings mid-contest so the
	// finalization run spends its time predicting, not crawling users.
	firstPrewarmDelay  = 25 * time.Minute
	secondPrewarmDelay = 70 * time.Minute

	// Finalization waits out the upstream's own result settling window
	// past the 90-minute contest end.
	predictDelay = 95 * time.Minute

	// Maintenance offsets within the Wed..Sat 00:00 UTC window.
	contestsRefreshDelay = 1 * time.Minute
	lastTwoRefreshDelay  = 10 * time.Minute
)

// Jobs is the slice of the lifecycle service the scheduler dispatches.
type Jobs interface {
	EnsureContest(ctx context.Context, contestName string) error
	SaveRecentAndNextTwoContests(ctx context.Context) error
	SaveLastTwoContestRecords(ctx context.Context) error
	SavePredictContestRecords(ctx context.Context, contestName string, region model.DataRegion) error
	ComposedPredict(ctx context.Context, contestName string) error
}

// Scheduler owns the tick loop and the one-shot job registry. A process
// runs exactly one; Start rejects a second call.
type Scheduler struct {
	logger *slog.Logger
	jobs   Jobs

	mu      sync.Mutex
	started bool
	running map[string]bool
	wg      sync.WaitGroup

	// Replaced in tests.
	now      func() time.Time
	schedule func(ctx context.Context, d time.Duration, fn func())
}

// New builds a stopped scheduler over the lifecycle jobs.
func New(logger *slog.Logger, jobs Jobs) *Scheduler {
	return &Scheduler{
		logger:  logger,
		jobs:    jobs,
		running: make(map[string]bool),
		now:     func() time.Time { return time.Now().UTC() },
		schedule: func(ctx context.Context, d time.Duration, fn func()) {
			// fn fires early on cancellation so Wait never blocks on a
			// timer that has up to 95 minutes left.
			go func() {
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-ctx.Done():
				case <-timer.C:
				}
				fn()
			}()
		},
	}
}

// Start launches the tick loop. It returns once the loop is running; the
// loop exits when ctx is cancelled. Starting twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errs.Logic("scheduler start", fmt.Errorf("already started"))
	}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dispatch(ctx, s.now())
			}
		}
	}()
	s.logger.Info("scheduler started")
	return nil
}

// Wait blocks until the tick loop has exited and every submitted job has
// finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// dispatch inspects one tick's wall-clock minute and submits whatever jobs
// it triggers.
func (s *Scheduler) dispatch(ctx context.Context, now time.Time) {
	switch {
	case model.WeeklyStart.Matches(now):
		s.scheduleContest(ctx, model.CurrentWeeklyContest(now))

	case model.BiweeklyStart.Matches(now):
		contestName := model.CurrentBiweeklyContest(now)
		if contestName == "" {
			s.logger.Info("off week, no biweekly contest", slog.Time("now", now))
			return
		}
		s.scheduleContest(ctx, contestName)

	case isMaintenanceWindow(now):
		s.submitAfter(ctx, contestsRefreshDelay, "save-contests", s.jobs.SaveRecentAndNextTwoContests)
		s.submitAfter(ctx, lastTwoRefreshDelay, "save-last-two-contests", s.jobs.SaveLastTwoContestRecords)
	}
}

// Maintenance runs Wed..Sat at 00:00 UTC, well clear of both contest
// windows.
func isMaintenanceWindow(now time.Time) bool {
	u := now.UTC()
	return u.Weekday() >= time.Wednesday && u.Weekday() <= time.Saturday &&
		u.Hour() == 0 && u.Minute() == 0
}

// scheduleContest seeds the contest row and queues this contest's one-shot
// jobs: two mid-contest pre-warms and the finalization pipeline.
func (s *Scheduler) scheduleContest(ctx context.Context, contestName string) {
	s.logger.Info("contest started", slog.String("contest_name", contestName))

	s.submitAfter(ctx, 0, "ensure-"+contestName, func(ctx context.Context) error {
		return s.jobs.EnsureContest(ctx, contestName)
	})

	prewarm := func(ctx context.Context) error {
		if err := s.jobs.SavePredictContestRecords(ctx, contestName, model.RegionCN); err != nil {
			return err
		}
		return s.jobs.SavePredictContestRecords(ctx, contestName, model.RegionUS)
	}
	s.submitAfter(ctx, firstPrewarmDelay, "prewarm-1-"+contestName, prewarm)
	s.submitAfter(ctx, secondPrewarmDelay, "prewarm-2-"+contestName, prewarm)

	s.submitAfter(ctx, predictDelay, "predict-"+contestName, func(ctx context.Context) error {
		return s.jobs.ComposedPredict(ctx, contestName)
	})
}

// submitAfter queues a named job to run after the delay. Jobs dedup on
// name: while one instance runs, later submissions of the same name are
// dropped. A cancelled context releases pending jobs without running them.
func (s *Scheduler) submitAfter(ctx context.Context, delay time.Duration, name string, fn errs.JobFunc) {
	s.wg.Add(1)
	s.schedule(ctx, delay, func() {
		defer s.wg.Done()
		if ctx.Err() != nil {
			return
		}
		if !s.acquire(name) {
			s.logger.Warn("job already running, skipping", slog.String("job", name))
			return
		}
		defer s.release(name)
		// The wrapper logs the failure; the tick loop never sees it.
		_ = errs.Reraise(s.logger, name, fn)(ctx)
	})
}

func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}
