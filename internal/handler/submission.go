package handler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/rank"
)

// saveQuestions refreshes the contest's question list from the info
// endpoint and returns the questions ordered by their contest ordinal.
func (s *Service) saveQuestions(ctx context.Context, contestName string, region model.DataRegion) ([]model.Question, error) {
	timePoint := s.now()

	info, err := s.upstream.ContestInfo(ctx, region, contestName)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(info.Questions))
	for i, q := range info.Questions {
		questions[i] = model.Question{
			QuestionID:  q.QuestionID,
			Credit:      q.Credit,
			Title:       q.Title,
			TitleSlug:   q.TitleSlug,
			UpdateTime:  timePoint,
			ContestName: contestName,
			QI:          i + 1,
		}
	}
	if err := s.repos.Question.UpsertMany(ctx, questions); err != nil {
		return nil, err
	}
	if _, err := s.repos.Question.DeleteStale(ctx, contestName, timePoint); err != nil {
		return nil, err
	}
	return questions, nil
}

// saveSubmissions stores the per-question submissions riding on a ranking
// crawl, sweeps rows the crawl did not touch, and then rebuilds the
// derived minute-resolution data.
func (s *Service) saveSubmissions(ctx context.Context, contestName string, region model.DataRegion, entries []leetcode.RankingEntry, submissions []map[string]leetcode.SubmissionEntry) error {
	timePoint := s.now()

	// Question credits join onto submission rows, so questions go first.
	questions, err := s.saveQuestions(ctx, contestName, region)
	if err != nil {
		return err
	}
	creditOf := make(map[int]int, len(questions))
	for _, q := range questions {
		creditOf[q.QuestionID] = q.Credit
	}

	var rows []model.Submission
	for i, e := range entries {
		for qidStr, sub := range submissions[i] {
			questionID := sub.QuestionID
			if questionID == 0 {
				if parsed, err := strconv.Atoi(qidStr); err == nil {
					questionID = parsed
				}
			}
			dataRegion := model.DataRegion(sub.DataRegion)
			if sub.DataRegion == "" {
				dataRegion = model.DataRegion(e.DataRegion)
			}
			rows = append(rows, model.Submission{
				ContestName:  contestName,
				Username:     e.Username,
				DataRegion:   dataRegion,
				QuestionID:   questionID,
				Date:         sub.Date.Time(),
				FailCount:    sub.FailCount,
				Credit:       creditOf[questionID],
				SubmissionID: sub.SubmissionID,
				Status:       sub.Status,
				ContestID:    sub.ContestID,
				UpdateTime:   timePoint,
			})
		}
	}
	if err := s.repos.Submission.UpsertMany(ctx, rows); err != nil {
		return err
	}
	if _, err := s.repos.Submission.DeleteStale(ctx, contestName, timePoint); err != nil {
		return err
	}
	s.logger.Info("submissions refreshed",
		slog.String("contest_name", contestName),
		slog.Int("rows", len(rows)))

	start, err := s.contestStartTime(ctx, contestName)
	if err != nil {
		return err
	}
	if err := s.saveQuestionFinishCounts(ctx, contestName, questions, start); err != nil {
		return err
	}
	return s.saveRealTimeRanks(ctx, contestName, start)
}

// saveQuestionFinishCounts rebuilds each question's cumulative finish-count
// curve over the contest's minute grid.
func (s *Service) saveQuestionFinishCounts(ctx context.Context, contestName string, questions []model.Question, start time.Time) error {
	subs, err := s.repos.Submission.FindByContest(ctx, contestName)
	if err != nil {
		return err
	}
	grid := rank.TimeGrid(start)

	for _, q := range questions {
		counts := make([]int, len(grid))
		for _, sub := range subs {
			if sub.QuestionID != q.QuestionID {
				continue
			}
			for i, at := range grid {
				if !sub.Date.After(at) {
					counts[i]++
				}
			}
		}
		if err := s.repos.Question.SetRealTimeCount(ctx, contestName, q.QuestionID, counts); err != nil {
			return err
		}
	}
	return nil
}

// saveRealTimeRanks rebuilds the rank trajectory of every scored
// participant from the stored submissions.
func (s *Service) saveRealTimeRanks(ctx context.Context, contestName string, start time.Time) error {
	participants, err := s.repos.Archive.Keys(ctx, contestName, true)
	if err != nil {
		return err
	}

	series, err := rank.Series(ctx, participants, start, func(ctx context.Context, at time.Time) ([]rank.AggRow, error) {
		return s.repos.Submission.AggregateRankAtTime(ctx, contestName, at)
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(50)
	for key, ranks := range series {
		key, ranks := key, ranks
		g.Go(func() error {
			return s.repos.Archive.SetRealTimeRank(gctx, contestName, key, ranks)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("real time ranks rebuilt",
		slog.String("contest_name", contestName),
		slog.Int("participants", len(participants)))
	return nil
}
