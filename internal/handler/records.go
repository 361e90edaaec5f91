package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

// normalizeEntries works around the US ranking API serving the stable
// handle in user_slug: US rows take user_slug as their username. Rows are
// then deduplicated on (data_region, username), keeping the first; the
// submission maps stay aligned with the surviving entries.
func normalizeEntries(entries []leetcode.RankingEntry, subs []map[string]leetcode.SubmissionEntry) ([]leetcode.RankingEntry, []map[string]leetcode.SubmissionEntry) {
	seen := make(map[model.UserKey]bool, len(entries))
	outEntries := make([]leetcode.RankingEntry, 0, len(entries))
	var outSubs []map[string]leetcode.SubmissionEntry
	if subs != nil {
		outSubs = make([]map[string]leetcode.SubmissionEntry, 0, len(subs))
	}
	for i, e := range entries {
		if e.DataRegion == string(model.RegionUS) && e.UserSlug != "" {
			e.Username = e.UserSlug
		}
		key := model.UserKey{Username: e.Username, DataRegion: model.DataRegion(e.DataRegion)}
		if seen[key] {
			continue
		}
		seen[key] = true
		outEntries = append(outEntries, e)
		if subs != nil {
			outSubs = append(outSubs, subs[i])
		}
	}
	return outEntries, outSubs
}

func recordFromEntry(contestName string, e leetcode.RankingEntry) model.ContestRecord {
	return model.ContestRecord{
		ContestName: contestName,
		ContestID:   e.ContestID,
		Username:    e.Username,
		UserSlug:    e.UserSlug,
		CountryCode: e.CountryCode,
		CountryName: e.CountryName,
		Rank:        e.Rank,
		Score:       e.Score,
		FinishTime:  e.FinishTime.Time(),
		DataRegion:  model.DataRegion(e.DataRegion),
	}
}

// SavePredictContestRecords rebuilds the prediction snapshot of a contest
// from one region's ranking: the old snapshot is dropped wholesale, fresh
// rows are inserted, user ratings are refreshed for stale participants, and
// each scored row gets its prior rating and contest count filled in.
func (s *Service) SavePredictContestRecords(ctx context.Context, contestName string, region model.DataRegion) error {
	entries, _, err := s.upstream.RankingPages(ctx, region, contestName)
	if err != nil {
		return err
	}
	entries, _ = normalizeEntries(entries, nil)

	deleted, err := s.repos.Predict.DeleteByContest(ctx, contestName)
	if err != nil {
		return err
	}

	now := s.now()
	rows := make([]model.ContestRecordPredict, len(entries))
	for i, e := range entries {
		rows[i] = model.ContestRecordPredict{
			ContestRecord: recordFromEntry(contestName, e),
			InsertTime:    now,
		}
	}
	if err := s.repos.Predict.InsertMany(ctx, rows); err != nil {
		return err
	}
	s.logger.Info("predict snapshot rebuilt",
		slog.String("contest_name", contestName),
		slog.String("region", string(region)),
		slog.Int64("deleted", deleted),
		slog.Int("inserted", len(rows)))

	if err := s.SaveUsersOfContest(ctx, contestName, true); err != nil {
		return err
	}
	return s.fillOldRatings(ctx, contestName)
}

// fillOldRatings stamps each scored snapshot row with the participant's
// stored rating, defaulting unknown users to the newcomer baseline.
func (s *Service) fillOldRatings(ctx context.Context, contestName string) error {
	rows, err := s.repos.Predict.FindByContest(ctx, contestName, repo.RecordQuery{OnlyScored: true})
	if err != nil {
		return err
	}
	keys := make([]model.UserKey, len(rows))
	for i, row := range rows {
		keys[i] = row.Key()
	}
	users, err := s.repos.User.GetMany(ctx, keys)
	if err != nil {
		return err
	}

	for i := range rows {
		if u, ok := users[rows[i].Key()]; ok {
			rows[i].OldRating = u.Rating
			rows[i].AttendedContestsCount = u.AttendedContestsCount
		} else {
			rows[i].OldRating = model.DefaultNewUserRating
			rows[i].AttendedContestsCount = model.DefaultNewUserAttendedContestsCount
		}
	}
	return s.repos.Predict.SaveUserSnapshots(ctx, rows)
}

// SaveArchiveContestRecords refreshes the canonical records of a contest
// from one region's ranking. Rows are upserted in place and rows the
// refresh did not touch are swept, clearing participants dropped by a
// rejudge. Submissions ride along on the same crawl.
func (s *Service) SaveArchiveContestRecords(ctx context.Context, contestName string, region model.DataRegion, saveUsers bool) error {
	timePoint := s.now()

	entries, submissions, err := s.upstream.RankingPages(ctx, region, contestName)
	if err != nil {
		return err
	}
	entries, submissions = normalizeEntries(entries, submissions)

	rows := make([]model.ContestRecordArchive, len(entries))
	for i, e := range entries {
		rows[i] = model.ContestRecordArchive{
			ContestRecord: recordFromEntry(contestName, e),
			UpdateTime:    timePoint,
		}
	}
	if err := s.repos.Archive.UpsertMany(ctx, rows); err != nil {
		return err
	}
	swept, err := s.repos.Archive.DeleteStale(ctx, contestName, timePoint)
	if err != nil {
		return err
	}
	s.logger.Info("archive refreshed",
		slog.String("contest_name", contestName),
		slog.String("region", string(region)),
		slog.Int("rows", len(rows)),
		slog.Int64("swept", swept))

	if saveUsers {
		if err := s.SaveUsersOfContest(ctx, contestName, false); err != nil {
			return err
		}
	}
	return s.saveSubmissions(ctx, contestName, region, entries, submissions)
}

// SaveUsersOfContest refreshes User rows for a contest's participants. In
// predict mode only scored participants whose stored rating is missing or
// older than the staleness window are fetched; otherwise every archived
// participant is.
func (s *Service) SaveUsersOfContest(ctx context.Context, contestName string, predict bool) error {
	var keys []model.UserKey
	var err error
	if predict {
		keys, err = s.repos.Predict.StaleUserKeys(ctx, contestName, s.now().Add(-userStaleness))
	} else {
		keys, err = s.repos.Archive.Keys(ctx, contestName, false)
	}
	if err != nil {
		return err
	}

	byRegion := make(map[model.DataRegion][]string)
	for _, k := range keys {
		byRegion[k.DataRegion] = append(byRegion[k.DataRegion], k.Username)
	}

	now := s.now()
	for region, usernames := range byRegion {
		outcomes, err := s.upstream.UserRatings(ctx, region, usernames)
		if err != nil {
			return err
		}

		var users []model.User
		skipped := 0
		for i, outcome := range outcomes {
			if !outcome.Fetched {
				skipped++
				continue
			}
			u := model.User{
				Username:   usernames[i],
				UserSlug:   usernames[i],
				DataRegion: region,
				UpdateTime: now,
			}
			if outcome.Ranking != nil {
				u.Rating = outcome.Ranking.Rating
				u.AttendedContestsCount = outcome.Ranking.AttendedContestsCount
			} else {
				// Null ranking means the user has no contest history;
				// store the newcomer baseline so later runs skip them.
				u.Rating = model.DefaultNewUserRating
				u.AttendedContestsCount = model.DefaultNewUserAttendedContestsCount
			}
			users = append(users, u)
		}
		if err := s.repos.User.UpsertMany(ctx, users); err != nil {
			return err
		}
		s.logger.Info("users refreshed",
			slog.String("contest_name", contestName),
			slog.String("region", string(region)),
			slog.Int("updated", len(users)),
			slog.Int("unfetched", skipped))
	}
	return nil
}

// SaveLastTwoContestRecords re-archives the most recently started weekly
// and biweekly contests, refreshing users along the way.
func (s *Service) SaveLastTwoContestRecords(ctx context.Context) error {
	now := s.now()
	for _, contestName := range []string{lastStartedWeekly(now), lastStartedBiweekly(now)} {
		if contestName == "" {
			continue
		}
		if err := s.SaveArchiveContestRecords(ctx, contestName, model.RegionCN, true); err != nil {
			return err
		}
	}
	return nil
}

func lastStartedWeekly(now time.Time) string {
	contestName := model.CurrentWeeklyContest(now)
	if start, err := model.ContestStartTime(contestName); err == nil && start.After(now) {
		contestName = model.CurrentWeeklyContest(now.AddDate(0, 0, -7))
	}
	return contestName
}

func lastStartedBiweekly(now time.Time) string {
	for i := 0; i < 3; i++ {
		at := now.AddDate(0, 0, -7*i)
		contestName := model.CurrentBiweeklyContest(at)
		if contestName == "" {
			continue
		}
		if start, err := model.ContestStartTime(contestName); err == nil && !start.After(now) {
			return contestName
		}
	}
	return ""
}
