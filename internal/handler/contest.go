package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// SaveRecentAndNextTwoContests refreshes contest metadata: one page of past
// contests plus the two upcoming ones. Malformed entries are skipped with a
// logged parse error so one bad dict cannot block the calendar.
func (s *Service) SaveRecentAndNextTwoContests(ctx context.Context) error {
	past, err := s.upstream.PastContests(ctx, 1)
	if err != nil {
		return err
	}
	upcoming, err := s.upstream.TopTwoContests(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	saved := 0
	for _, meta := range append(past, upcoming...) {
		c, err := contestFromMeta(meta, now)
		if err != nil {
			s.logger.Warn("skipping malformed contest",
				slog.String("title_slug", meta.TitleSlug),
				slog.String("error", err.Error()))
			continue
		}
		if err := s.repos.Contest.Upsert(ctx, c); err != nil {
			return err
		}
		saved++
	}

	s.logger.Info("contests refreshed", slog.Int("saved", saved))
	return nil
}

func contestFromMeta(meta leetcode.ContestMeta, now time.Time) (model.Contest, error) {
	if meta.TitleSlug == "" {
		return model.Contest{}, errs.Parse("contest meta", errMissingSlug)
	}
	start := meta.StartTime.Time()
	if start.IsZero() || meta.Duration <= 0 {
		return model.Contest{}, errs.Parse("contest meta", errBadTimes)
	}
	end := start.Add(time.Duration(meta.Duration) * time.Second)
	return model.Contest{
		TitleSlug:  meta.TitleSlug,
		Title:      meta.Title,
		StartTime:  start,
		Duration:   meta.Duration,
		EndTime:    end,
		Past:       end.Before(now),
		UpdateTime: now,
	}, nil
}

var (
	errMissingSlug = errors.New("missing titleSlug")
	errBadTimes    = errors.New("missing start time or duration")
)

// EnsureContest seeds a projected contest row from calendar arithmetic when
// the metadata crawl has not stored one yet, so the prediction jobs never
// depend on crawl ordering.
func (s *Service) EnsureContest(ctx context.Context, contestName string) error {
	existing, err := s.repos.Contest.Get(ctx, contestName)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	projected, err := model.ProjectedContest(contestName, s.now())
	if err != nil {
		return errs.Logic("ensure contest", err)
	}
	s.logger.Info("seeding projected contest", slog.String("contest_name", contestName))
	return s.repos.Contest.Upsert(ctx, projected)
}
