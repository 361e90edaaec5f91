// Package handler implements the contest lifecycle: crawling contest
// metadata, snapshotting rankings for prediction, archiving final records,
// refreshing user ratings, and running the prediction itself. Each exported
// method is a restartable unit the scheduler runs as a job.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

const (
	// userStaleness is how fresh a User row must be to skip the
	// pre-contest rating refresh.
	userStaleness = 36 * time.Hour

	// Readiness polling for the CN ranking data.
	readinessAttempts = 25
	readinessInterval = 60 * time.Second
)

// Upstream is the slice of the leetcode client the handlers consume;
// narrowed to an interface so tests can fake the upstream without HTTP.
type Upstream interface {
	ContestInfo(ctx context.Context, region model.DataRegion, contestName string) (*leetcode.ContestInfo, error)
	TopTwoContests(ctx context.Context) ([]leetcode.ContestMeta, error)
	PastContests(ctx context.Context, pageNum int) ([]leetcode.ContestMeta, error)
	RankingSummary(ctx context.Context, region model.DataRegion, contestName string) (*leetcode.RankingSummary, error)
	RankingPages(ctx context.Context, region model.DataRegion, contestName string) ([]leetcode.RankingEntry, []map[string]leetcode.SubmissionEntry, error)
	UserRatings(ctx context.Context, region model.DataRegion, usernames []string) ([]leetcode.UserRatingOutcome, error)
}

// Service wires the upstream client to the repositories.
type Service struct {
	logger   *slog.Logger
	upstream Upstream
	repos    *repo.Repos

	// now and sleep are replaced in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds the lifecycle service.
func New(logger *slog.Logger, upstream Upstream, repos *repo.Repos) *Service {
	return &Service{
		logger:   logger,
		upstream: upstream,
		repos:    repos,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// contestStartTime prefers the stored contest row and falls back to
// calendar arithmetic for contests not crawled yet.
func (s *Service) contestStartTime(ctx context.Context, contestName string) (time.Time, error) {
	c, err := s.repos.Contest.Get(ctx, contestName)
	if err != nil {
		return time.Time{}, err
	}
	if c != nil && !c.StartTime.IsZero() {
		return c.StartTime, nil
	}
	return model.ContestStartTime(contestName)
}
