package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/leetcode"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/rank"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

// memStore backs all fake repositories with one locked dataset.
type memStore struct {
	mu          sync.Mutex
	contests    map[string]model.Contest
	predict     []model.ContestRecordPredict
	archive     []model.ContestRecordArchive
	users       map[model.UserKey]model.User
	questions   []model.Question
	submissions []model.Submission
}

func newMemStore() *memStore {
	return &memStore{
		contests: make(map[string]model.Contest),
		users:    make(map[model.UserKey]model.User),
	}
}

func newMemRepos(st *memStore) *repo.Repos {
	return &repo.Repos{
		Contest:    &memContestRepo{st},
		Predict:    &memPredictRepo{st},
		Archive:    &memArchiveRepo{st},
		User:       &memUserRepo{st},
		Question:   &memQuestionRepo{st},
		Submission: &memSubmissionRepo{st},
	}
}

type memContestRepo struct{ st *memStore }

func (r *memContestRepo) Upsert(ctx context.Context, c model.Contest) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if old, ok := r.st.contests[c.TitleSlug]; ok {
		c.PredictTime = old.PredictTime
		c.UserNumUS = old.UserNumUS
		c.UserNumCN = old.UserNumCN
		c.PredictionProgress = old.PredictionProgress
	}
	r.st.contests[c.TitleSlug] = c
	return nil
}

func (r *memContestRepo) Get(ctx context.Context, titleSlug string) (*model.Contest, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if c, ok := r.st.contests[titleSlug]; ok {
		return &c, nil
	}
	return nil, nil
}

func (r *memContestRepo) List(ctx context.Context, predictedOnly bool, skip, limit int64) ([]model.Contest, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.Contest
	for _, c := range r.st.contests {
		if predictedOnly && c.PredictTime == nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if skip > int64(len(out)) {
		skip = int64(len(out))
	}
	out = out[skip:]
	if limit > 0 && limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memContestRepo) Count(ctx context.Context, predictedOnly bool) (int64, error) {
	all, err := r.List(ctx, predictedOnly, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (r *memContestRepo) LastUserNums(ctx context.Context, limit int64) ([]model.Contest, error) {
	all, err := r.List(ctx, false, 0, 0)
	if err != nil {
		return nil, err
	}
	var out []model.Contest
	for _, c := range all {
		if c.UserNumUS == nil || c.UserNumCN == nil {
			continue
		}
		out = append(out, c)
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (r *memContestRepo) SetPredictTime(ctx context.Context, titleSlug string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.contests[titleSlug]
	if !ok {
		return nil
	}
	c.PredictTime = &at
	r.st.contests[titleSlug] = c
	return nil
}

func (r *memContestRepo) SetUserNum(ctx context.Context, titleSlug string, region model.DataRegion, num int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.contests[titleSlug]
	if !ok {
		return nil
	}
	if region == model.RegionCN {
		c.UserNumCN = &num
	} else {
		c.UserNumUS = &num
	}
	r.st.contests[titleSlug] = c
	return nil
}

func (r *memContestRepo) AppendProgress(ctx context.Context, titleSlug string, ev model.PredictionEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.contests[titleSlug]
	if !ok {
		return nil
	}
	c.PredictionProgress = append(c.PredictionProgress, ev)
	r.st.contests[titleSlug] = c
	return nil
}

type memPredictRepo struct{ st *memStore }

func (r *memPredictRepo) DeleteByContest(ctx context.Context, contestName string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var kept []model.ContestRecordPredict
	var deleted int64
	for _, row := range r.st.predict {
		if row.ContestName == contestName {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.st.predict = kept
	return deleted, nil
}

func (r *memPredictRepo) InsertMany(ctx context.Context, rows []model.ContestRecordPredict) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.predict = append(r.st.predict, rows...)
	return nil
}

func (r *memPredictRepo) FindByContest(ctx context.Context, contestName string, q repo.RecordQuery) ([]model.ContestRecordPredict, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.ContestRecordPredict
	for _, row := range r.st.predict {
		if row.ContestName != contestName {
			continue
		}
		if q.OnlyScored && row.Score == 0 {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if q.Skip > int64(len(out)) {
		q.Skip = int64(len(out))
	}
	out = out[q.Skip:]
	if q.Limit > 0 && q.Limit < int64(len(out)) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memPredictRepo) CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error) {
	rows, _ := r.FindByContest(ctx, contestName, repo.RecordQuery{OnlyScored: onlyScored})
	return int64(len(rows)), nil
}

func (r *memPredictRepo) update(contestName string, key model.UserKey, fn func(*model.ContestRecordPredict)) {
	for i := range r.st.predict {
		row := &r.st.predict[i]
		if row.ContestName == contestName && row.Key() == key {
			fn(row)
		}
	}
}

func (r *memPredictRepo) SavePredictions(ctx context.Context, rows []model.ContestRecordPredict) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, src := range rows {
		r.update(src.ContestName, src.Key(), func(dst *model.ContestRecordPredict) {
			dst.DeltaRating = src.DeltaRating
			dst.NewRating = src.NewRating
			dst.PredictTime = src.PredictTime
		})
	}
	return nil
}

func (r *memPredictRepo) SaveUserSnapshots(ctx context.Context, rows []model.ContestRecordPredict) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, src := range rows {
		r.update(src.ContestName, src.Key(), func(dst *model.ContestRecordPredict) {
			dst.OldRating = src.OldRating
			dst.AttendedContestsCount = src.AttendedContestsCount
		})
	}
	return nil
}

func (r *memPredictRepo) StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.UserKey
	for _, row := range r.st.predict {
		if row.ContestName != contestName || row.Score == 0 {
			continue
		}
		u, ok := r.st.users[row.Key()]
		if !ok || u.UpdateTime.Before(updatedAfter) {
			out = append(out, row.Key())
		}
	}
	return out, nil
}

func (r *memPredictRepo) FindByUser(ctx context.Context, username string) ([]model.ContestRecordPredict, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.ContestRecordPredict
	for _, row := range r.st.predict {
		if row.Username == username || row.Username == strings.ToLower(username) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memPredictRepo) FindByKeys(ctx context.Context, contestName string, keys []model.UserKey) ([]model.ContestRecordPredict, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	want := make(map[model.UserKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []model.ContestRecordPredict
	for _, row := range r.st.predict {
		if row.ContestName == contestName && want[row.Key()] {
			out = append(out, row)
		}
	}
	return out, nil
}

type memArchiveRepo struct{ st *memStore }

func (r *memArchiveRepo) UpsertMany(ctx context.Context, rows []model.ContestRecordArchive) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, src := range rows {
		found := false
		for i := range r.st.archive {
			dst := &r.st.archive[i]
			if dst.ContestName == src.ContestName && dst.Key() == src.Key() {
				ranks := dst.RealTimeRank
				*dst = src
				dst.RealTimeRank = ranks
				found = true
				break
			}
		}
		if !found {
			r.st.archive = append(r.st.archive, src)
		}
	}
	return nil
}

func (r *memArchiveRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var kept []model.ContestRecordArchive
	var deleted int64
	for _, row := range r.st.archive {
		if row.ContestName == contestName && row.UpdateTime.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.st.archive = kept
	return deleted, nil
}

func (r *memArchiveRepo) FindByContest(ctx context.Context, contestName string, q repo.RecordQuery) ([]model.ContestRecordArchive, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.ContestRecordArchive
	for _, row := range r.st.archive {
		if row.ContestName != contestName {
			continue
		}
		if q.OnlyScored && row.Score == 0 {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if q.Skip > int64(len(out)) {
		q.Skip = int64(len(out))
	}
	out = out[q.Skip:]
	if q.Limit > 0 && q.Limit < int64(len(out)) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memArchiveRepo) CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error) {
	rows, _ := r.FindByContest(ctx, contestName, repo.RecordQuery{OnlyScored: onlyScored})
	return int64(len(rows)), nil
}

func (r *memArchiveRepo) FindByUser(ctx context.Context, username string) ([]model.ContestRecordArchive, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.ContestRecordArchive
	for _, row := range r.st.archive {
		if row.Username == username || row.Username == strings.ToLower(username) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memArchiveRepo) Keys(ctx context.Context, contestName string, onlyScored bool) ([]model.UserKey, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.UserKey
	for _, row := range r.st.archive {
		if row.ContestName != contestName {
			continue
		}
		if onlyScored && row.Score == 0 {
			continue
		}
		out = append(out, row.Key())
	}
	return out, nil
}

func (r *memArchiveRepo) StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.UserKey
	for _, row := range r.st.archive {
		if row.ContestName != contestName || row.Score == 0 {
			continue
		}
		u, ok := r.st.users[row.Key()]
		if !ok || u.UpdateTime.Before(updatedAfter) {
			out = append(out, row.Key())
		}
	}
	return out, nil
}

func (r *memArchiveRepo) SetRealTimeRank(ctx context.Context, contestName string, key model.UserKey, ranks []int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i := range r.st.archive {
		row := &r.st.archive[i]
		if row.ContestName == contestName && row.Key() == key {
			row.RealTimeRank = ranks
		}
	}
	return nil
}

func (r *memArchiveRepo) GetRealTimeRank(ctx context.Context, contestName string, key model.UserKey) ([]int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, row := range r.st.archive {
		if row.ContestName == contestName && row.Key() == key {
			return row.RealTimeRank, nil
		}
	}
	return nil, nil
}

type memUserRepo struct{ st *memStore }

func (r *memUserRepo) Get(ctx context.Context, key model.UserKey) (*model.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if u, ok := r.st.users[key]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetMany(ctx context.Context, keys []model.UserKey) (map[model.UserKey]model.User, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := make(map[model.UserKey]model.User)
	for _, k := range keys {
		if u, ok := r.st.users[k]; ok {
			out[k] = u
		}
	}
	return out, nil
}

func (r *memUserRepo) UpsertMany(ctx context.Context, users []model.User) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range users {
		r.st.users[model.UserKey{Username: u.Username, DataRegion: u.DataRegion}] = u
	}
	return nil
}

type memQuestionRepo struct{ st *memStore }

func (r *memQuestionRepo) UpsertMany(ctx context.Context, qs []model.Question) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, src := range qs {
		found := false
		for i := range r.st.questions {
			dst := &r.st.questions[i]
			if dst.ContestName == src.ContestName && dst.QuestionID == src.QuestionID {
				counts := dst.RealTimeCount
				*dst = src
				dst.RealTimeCount = counts
				found = true
				break
			}
		}
		if !found {
			r.st.questions = append(r.st.questions, src)
		}
	}
	return nil
}

func (r *memQuestionRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var kept []model.Question
	var deleted int64
	for _, q := range r.st.questions {
		if q.ContestName == contestName && q.UpdateTime.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, q)
	}
	r.st.questions = kept
	return deleted, nil
}

func (r *memQuestionRepo) FindByContest(ctx context.Context, contestName string) ([]model.Question, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.Question
	for _, q := range r.st.questions {
		if q.ContestName == contestName {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QI < out[j].QI })
	return out, nil
}

func (r *memQuestionRepo) FindByIDs(ctx context.Context, ids []int) ([]model.Question, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Question
	for _, q := range r.st.questions {
		if want[q.QuestionID] {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QI < out[j].QI })
	return out, nil
}

func (r *memQuestionRepo) SetRealTimeCount(ctx context.Context, contestName string, questionID int, counts []int) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i := range r.st.questions {
		q := &r.st.questions[i]
		if q.ContestName == contestName && q.QuestionID == questionID {
			q.RealTimeCount = counts
		}
	}
	return nil
}

type memSubmissionRepo struct{ st *memStore }

func (r *memSubmissionRepo) UpsertMany(ctx context.Context, subs []model.Submission) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, src := range subs {
		found := false
		for i := range r.st.submissions {
			dst := &r.st.submissions[i]
			if dst.ContestName == src.ContestName && dst.DataRegion == src.DataRegion &&
				dst.Username == src.Username && dst.QuestionID == src.QuestionID {
				*dst = src
				found = true
				break
			}
		}
		if !found {
			r.st.submissions = append(r.st.submissions, src)
		}
	}
	return nil
}

func (r *memSubmissionRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var kept []model.Submission
	var deleted int64
	for _, s := range r.st.submissions {
		if s.ContestName == contestName && s.UpdateTime.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	r.st.submissions = kept
	return deleted, nil
}

func (r *memSubmissionRepo) FindByContest(ctx context.Context, contestName string) ([]model.Submission, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.Submission
	for _, s := range r.st.submissions {
		if s.ContestName == contestName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSubmissionRepo) AggregateRankAtTime(ctx context.Context, contestName string, at time.Time) ([]rank.AggRow, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	agg := make(map[model.UserKey]*rank.AggRow)
	for _, s := range r.st.submissions {
		if s.ContestName != contestName || s.Date.After(at) {
			continue
		}
		key := model.UserKey{Username: s.Username, DataRegion: s.DataRegion}
		row, ok := agg[key]
		if !ok {
			row = &rank.AggRow{UserKey: key}
			agg[key] = row
		}
		row.CreditSum += s.Credit
		row.FailCountSum += s.FailCount
		if s.Date.After(row.PenaltyDate) {
			row.PenaltyDate = s.Date
		}
	}
	var out []rank.AggRow
	for _, row := range agg {
		row.PenaltyDate = row.PenaltyDate.Add(time.Duration(row.FailCountSum) * rank.PenaltyPerFail)
		out = append(out, *row)
	}
	rank.SortRows(out)
	return out, nil
}

// fakeUpstream serves canned upstream payloads.
type fakeUpstream struct {
	mu        sync.Mutex
	infos     map[model.DataRegion]*leetcode.ContestInfo
	topTwo    []leetcode.ContestMeta
	past      []leetcode.ContestMeta
	summaries map[model.DataRegion][]*leetcode.RankingSummary
	entries   map[model.DataRegion][]leetcode.RankingEntry
	subs      map[model.DataRegion][]map[string]leetcode.SubmissionEntry
	ratings   map[string]*leetcode.UserRanking
	unfetched map[string]bool
	newcomers map[string]bool

	ratingCalls []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		infos:     make(map[model.DataRegion]*leetcode.ContestInfo),
		summaries: make(map[model.DataRegion][]*leetcode.RankingSummary),
		entries:   make(map[model.DataRegion][]leetcode.RankingEntry),
		subs:      make(map[model.DataRegion][]map[string]leetcode.SubmissionEntry),
		ratings:   make(map[string]*leetcode.UserRanking),
		unfetched: make(map[string]bool),
		newcomers: make(map[string]bool),
	}
}

func ratingKey(region model.DataRegion, username string) string {
	return fmt.Sprintf("%s/%s", region, username)
}

func (f *fakeUpstream) ContestInfo(ctx context.Context, region model.DataRegion, contestName string) (*leetcode.ContestInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.infos[region]; ok {
		return info, nil
	}
	return &leetcode.ContestInfo{}, nil
}

func (f *fakeUpstream) TopTwoContests(ctx context.Context) ([]leetcode.ContestMeta, error) {
	return f.topTwo, nil
}

func (f *fakeUpstream) PastContests(ctx context.Context, pageNum int) ([]leetcode.ContestMeta, error) {
	return f.past, nil
}

func (f *fakeUpstream) RankingSummary(ctx context.Context, region model.DataRegion, contestName string) (*leetcode.RankingSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.summaries[region]
	if len(queue) == 0 {
		return &leetcode.RankingSummary{UserNum: len(f.entries[region])}, nil
	}
	head := queue[0]
	if len(queue) > 1 {
		f.summaries[region] = queue[1:]
	}
	return head, nil
}

func (f *fakeUpstream) RankingPages(ctx context.Context, region model.DataRegion, contestName string) ([]leetcode.RankingEntry, []map[string]leetcode.SubmissionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[region], f.subs[region], nil
}

func (f *fakeUpstream) UserRatings(ctx context.Context, region model.DataRegion, usernames []string) ([]leetcode.UserRatingOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]leetcode.UserRatingOutcome, len(usernames))
	for i, name := range usernames {
		key := ratingKey(region, name)
		f.ratingCalls = append(f.ratingCalls, key)
		switch {
		case f.unfetched[key]:
		case f.newcomers[key]:
			out[i] = leetcode.UserRatingOutcome{Fetched: true}
		default:
			out[i] = leetcode.UserRatingOutcome{Fetched: true, Ranking: f.ratings[key]}
		}
	}
	return out, nil
}
