package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/rating"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

// PredictContest computes and stores rating deltas for every scored row of
// the contest's prediction snapshot. A contest whose predict_time is
// already stamped is left untouched, so re-running the job cannot apply
// deltas twice.
func (s *Service) PredictContest(ctx context.Context, contestName string) error {
	contest, err := s.repos.Contest.Get(ctx, contestName)
	if err != nil {
		return err
	}
	if contest != nil && contest.PredictTime != nil {
		s.logger.Info("prediction already stamped, skipping",
			slog.String("contest_name", contestName),
			slog.Time("predict_time", *contest.PredictTime))
		return nil
	}

	rows, err := s.repos.Predict.FindByContest(ctx, contestName, repo.RecordQuery{OnlyScored: true})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errs.Logic("predict contest", fmt.Errorf("no scored snapshot rows for %s", contestName))
	}

	participants := make([]rating.Participant, len(rows))
	for i, row := range rows {
		participants[i] = rating.Participant{
			Rating:   row.OldRating,
			Rank:     row.Rank,
			Attended: row.AttendedContestsCount,
		}
	}
	deltas := rating.PredictFFTDeltas(participants)

	predictTime := s.now()
	for i := range rows {
		delta := deltas[i]
		newRating := rows[i].OldRating + delta
		rows[i].DeltaRating = &delta
		rows[i].NewRating = &newRating
		rows[i].PredictTime = &predictTime
	}
	if err := s.repos.Predict.SavePredictions(ctx, rows); err != nil {
		return err
	}

	// Biweekly results apply to users immediately: the next weekly contest
	// starts before the official ratings land.
	if model.IsBiweekly(contestName) {
		if err := s.propagateRatings(ctx, rows, predictTime); err != nil {
			return err
		}
	}

	if err := s.repos.Contest.SetPredictTime(ctx, contestName, predictTime); err != nil {
		return err
	}
	s.logger.Info("prediction stored",
		slog.String("contest_name", contestName),
		slog.Int("rows", len(rows)))
	return nil
}

// propagateRatings writes the predicted ratings back to the User rows from
// the snapshot just computed.
func (s *Service) propagateRatings(ctx context.Context, rows []model.ContestRecordPredict, at time.Time) error {
	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		if row.NewRating == nil {
			continue
		}
		users = append(users, model.User{
			Username:              row.Username,
			UserSlug:              row.UserSlug,
			DataRegion:            row.DataRegion,
			AttendedContestsCount: row.AttendedContestsCount + 1,
			Rating:                *row.NewRating,
			UpdateTime:            at,
		})
	}
	return s.repos.User.UpsertMany(ctx, users)
}

// IsCNDataReady probes both regional rankings. The CN data is usable once
// it stops serving the local fallback and its participant count has caught
// up with the US site's view. Participant counts are stamped on the
// contest as a side effect, best effort.
func (s *Service) IsCNDataReady(ctx context.Context, contestName string) (bool, error) {
	cn, err := s.upstream.RankingSummary(ctx, model.RegionCN, contestName)
	if err != nil {
		return false, err
	}
	us, err := s.upstream.RankingSummary(ctx, model.RegionUS, contestName)
	if err != nil {
		return false, err
	}

	_ = errs.Silence(s.logger, "save user num", func(ctx context.Context) error {
		if err := s.repos.Contest.SetUserNum(ctx, contestName, model.RegionCN, cn.UserNum); err != nil {
			return err
		}
		return s.repos.Contest.SetUserNum(ctx, contestName, model.RegionUS, us.UserNum)
	})(ctx)

	if cn.FallbackLocal {
		return false, nil
	}
	return cn.UserNum >= us.UserNum, nil
}

// ComposedPredict is the finalization pipeline run after a contest ends:
// wait for the CN data to settle, rebuild the prediction snapshot, predict,
// then archive. Each stage appends a progress event to the contest row.
// Once the contest carries a predict_time the whole pipeline is a no-op:
// the stored snapshot is frozen and must not be rebuilt.
func (s *Service) ComposedPredict(ctx context.Context, contestName string) error {
	contest, err := s.repos.Contest.Get(ctx, contestName)
	if err != nil {
		return err
	}
	if contest != nil && contest.PredictTime != nil {
		s.logger.Info("contest already finalized, skipping",
			slog.String("contest_name", contestName),
			slog.Time("predict_time", *contest.PredictTime))
		return nil
	}

	s.progress(ctx, contestName, "readiness", "waiting for CN ranking data", model.StatusOngoing)
	ready := false
	for attempt := 0; attempt < readinessAttempts; attempt++ {
		ok, err := s.IsCNDataReady(ctx, contestName)
		if err != nil {
			s.logger.Warn("readiness probe failed",
				slog.String("contest_name", contestName),
				slog.String("error", err.Error()))
		} else if ok {
			ready = true
			break
		}
		if err := s.sleep(ctx, readinessInterval); err != nil {
			return errs.Transient("readiness poll", err)
		}
	}
	if ready {
		s.progress(ctx, contestName, "readiness", "CN ranking data ready", model.StatusPassed)
	} else {
		// Proceed on whatever data there is; waiting longer only delays
		// every participant's prediction.
		s.logger.Warn("CN data still incomplete, predicting anyway",
			slog.String("contest_name", contestName))
		s.progress(ctx, contestName, "readiness", "timed out, proceeding with partial data", model.StatusFailed)
	}

	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"snapshot", func(ctx context.Context) error {
			return s.SavePredictContestRecords(ctx, contestName, model.RegionCN)
		}},
		{"predict", func(ctx context.Context) error {
			return s.PredictContest(ctx, contestName)
		}},
		{"archive", func(ctx context.Context) error {
			return s.SaveArchiveContestRecords(ctx, contestName, model.RegionCN, false)
		}},
	}
	for _, stage := range stages {
		s.progress(ctx, contestName, stage.name, "", model.StatusOngoing)
		if err := stage.fn(ctx); err != nil {
			s.progress(ctx, contestName, stage.name, err.Error(), model.StatusFailed)
			return err
		}
		s.progress(ctx, contestName, stage.name, "", model.StatusPassed)
	}
	return nil
}

// progress appends a pipeline event to the contest row, best effort.
func (s *Service) progress(ctx context.Context, contestName, name, description string, status model.ProgressStatus) {
	ev := model.PredictionEvent{
		Name:        name,
		Description: description,
		Timestamp:   s.now(),
		Status:      status,
	}
	if err := s.repos.Contest.AppendProgress(ctx, contestName, ev); err != nil {
		s.logger.Warn("progress event not recorded",
			slog.String("contest_name", contestName),
			slog.String("stage", name),
			slog.String("error", err.Error()))
	}
}
