// Package repo is the persistence layer: one typed repository per entity,
// behind interfaces so the lifecycle handlers and the read API can run
// against in-memory fakes in tests.
package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/rank"
)

// Write wave widths. Bulk writes fan out at most this many single-document
// upserts at a time.
const (
	recordWave     = 50
	submissionWave = 20
)

// RecordQuery narrows a contest-record listing. Results are always sorted
// by rank ascending.
type RecordQuery struct {
	OnlyScored bool
	Skip       int64
	Limit      int64 // 0 means no limit
}

// ContestRepo stores contest metadata.
type ContestRepo interface {
	Upsert(ctx context.Context, c model.Contest) error
	Get(ctx context.Context, titleSlug string) (*model.Contest, error)
	// List returns contests sorted by start time descending; with
	// predictedOnly set, only contests whose prediction has run.
	List(ctx context.Context, predictedOnly bool, skip, limit int64) ([]model.Contest, error)
	Count(ctx context.Context, predictedOnly bool) (int64, error)
	// LastUserNums returns the most recent contests that carry participant
	// counts from both regions.
	LastUserNums(ctx context.Context, limit int64) ([]model.Contest, error)
	SetPredictTime(ctx context.Context, titleSlug string, at time.Time) error
	SetUserNum(ctx context.Context, titleSlug string, region model.DataRegion, num int) error
	AppendProgress(ctx context.Context, titleSlug string, ev model.PredictionEvent) error
}

// PredictRepo stores the frozen prediction snapshot of each contest.
type PredictRepo interface {
	DeleteByContest(ctx context.Context, contestName string) (int64, error)
	InsertMany(ctx context.Context, rows []model.ContestRecordPredict) error
	FindByContest(ctx context.Context, contestName string, q RecordQuery) ([]model.ContestRecordPredict, error)
	CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error)
	// SavePredictions writes delta_rating, new_rating and predict_time of
	// each row, keyed by (contest_name, data_region, username).
	SavePredictions(ctx context.Context, rows []model.ContestRecordPredict) error
	// SaveUserSnapshots writes old_rating and attendedContestsCount of
	// each row, keyed like SavePredictions.
	SaveUserSnapshots(ctx context.Context, rows []model.ContestRecordPredict) error
	// StaleUserKeys returns scored participants whose User row is missing
	// or older than updatedAfter.
	StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error)
	FindByUser(ctx context.Context, username string) ([]model.ContestRecordPredict, error)
	FindByKeys(ctx context.Context, contestName string, keys []model.UserKey) ([]model.ContestRecordPredict, error)
}

// ArchiveRepo stores the mutable canonical contest records.
type ArchiveRepo interface {
	UpsertMany(ctx context.Context, rows []model.ContestRecordArchive) error
	// DeleteStale removes rows of the contest not touched since the sweep
	// started, clearing participants dropped by a rejudge.
	DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error)
	FindByContest(ctx context.Context, contestName string, q RecordQuery) ([]model.ContestRecordArchive, error)
	CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error)
	FindByUser(ctx context.Context, username string) ([]model.ContestRecordArchive, error)
	Keys(ctx context.Context, contestName string, onlyScored bool) ([]model.UserKey, error)
	// StaleUserKeys returns scored participants whose User row is missing
	// or older than updatedAfter.
	StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error)
	SetRealTimeRank(ctx context.Context, contestName string, key model.UserKey, ranks []int) error
	GetRealTimeRank(ctx context.Context, contestName string, key model.UserKey) ([]int, error)
}

// UserRepo stores per-user prior ratings.
type UserRepo interface {
	Get(ctx context.Context, key model.UserKey) (*model.User, error)
	GetMany(ctx context.Context, keys []model.UserKey) (map[model.UserKey]model.User, error)
	UpsertMany(ctx context.Context, users []model.User) error
}

// QuestionRepo stores contest questions.
type QuestionRepo interface {
	UpsertMany(ctx context.Context, qs []model.Question) error
	DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error)
	FindByContest(ctx context.Context, contestName string) ([]model.Question, error)
	FindByIDs(ctx context.Context, ids []int) ([]model.Question, error)
	SetRealTimeCount(ctx context.Context, contestName string, questionID int, counts []int) error
}

// SubmissionRepo stores accepted submissions.
type SubmissionRepo interface {
	UpsertMany(ctx context.Context, subs []model.Submission) error
	DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error)
	FindByContest(ctx context.Context, contestName string) ([]model.Submission, error)
	// AggregateRankAtTime returns per-participant standings at the time
	// point, sorted by credit descending then penalty date ascending.
	AggregateRankAtTime(ctx context.Context, contestName string, at time.Time) ([]rank.AggRow, error)
}

// Repos bundles every repository over one database.
type Repos struct {
	Contest    ContestRepo
	Predict    PredictRepo
	Archive    ArchiveRepo
	User       UserRepo
	Question   QuestionRepo
	Submission SubmissionRepo
}

// NewMongo builds the Mongo-backed repository set.
func NewMongo(database *mongo.Database) *Repos {
	return &Repos{
		Contest:    &mongoContestRepo{db: database},
		Predict:    &mongoPredictRepo{db: database},
		Archive:    &mongoArchiveRepo{db: database},
		User:       &mongoUserRepo{db: database},
		Question:   &mongoQuestionRepo{db: database},
		Submission: &mongoSubmissionRepo{db: database},
	}
}
