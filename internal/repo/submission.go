package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/rank"
)

type mongoSubmissionRepo struct {
	db *mongo.Database
}

func (r *mongoSubmissionRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollSubmission)
}

func (r *mongoSubmissionRepo) UpsertMany(ctx context.Context, subs []model.Submission) error {
	err := forEachLimited(ctx, subs, submissionWave, func(ctx context.Context, s model.Submission) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{
				"contest_name": s.ContestName,
				"data_region":  s.DataRegion,
				"username":     s.Username,
				"question_id":  s.QuestionID,
			},
			bson.M{
				"$set": bson.M{
					"date":          s.Date,
					"fail_count":    s.FailCount,
					"credit":        s.Credit,
					"submission_id": s.SubmissionID,
					"status":        s.Status,
					"contest_id":    s.ContestID,
					"update_time":   s.UpdateTime,
				},
				"$setOnInsert": bson.M{
					"contest_name": s.ContestName,
					"data_region":  s.DataRegion,
					"username":     s.Username,
					"question_id":  s.QuestionID,
				},
			},
			options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return errs.Store("upsert submissions", err)
	}
	return nil
}

func (r *mongoSubmissionRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.M{
		"contest_name": contestName,
		"update_time":  bson.M{"$lt": before},
	})
	if err != nil {
		return 0, errs.Store("delete stale submissions", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoSubmissionRepo) FindByContest(ctx context.Context, contestName string) ([]model.Submission, error) {
	cur, err := r.coll().Find(ctx, bson.M{"contest_name": contestName})
	if err != nil {
		return nil, errs.Store("find submissions", err)
	}
	var out []model.Submission
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find submissions", err)
	}
	return out, nil
}

// AggregateRankAtTime rebuilds the standings as they looked at the time
// point: per participant, sum credits and fails over submissions dated at or
// before it, push the last accept back five minutes per fail, then order by
// credit and penalty time.
func (r *mongoSubmissionRepo) AggregateRankAtTime(ctx context.Context, contestName string, at time.Time) ([]rank.AggRow, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"contest_name": contestName,
			"date":         bson.M{"$lte": at},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":            bson.M{"username": "$username", "data_region": "$data_region"},
			"credit_sum":     bson.M{"$sum": "$credit"},
			"fail_count_sum": bson.M{"$sum": "$fail_count"},
			"date_max":       bson.M{"$max": "$date"},
		}}},
		{{Key: "$addFields", Value: bson.M{
			"penalty_date": bson.M{"$dateAdd": bson.M{
				"startDate": "$date_max",
				"unit":      "minute",
				"amount":    bson.M{"$multiply": bson.A{5, "$fail_count_sum"}},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "credit_sum", Value: -1},
			{Key: "penalty_date", Value: 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":            0,
			"username":       "$_id.username",
			"data_region":    "$_id.data_region",
			"credit_sum":     1,
			"fail_count_sum": 1,
			"penalty_date":   1,
		}}},
	}

	cur, err := r.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.Store("aggregate rank", err)
	}
	var out []rank.AggRow
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("aggregate rank", err)
	}
	return out, nil
}
