package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

type mongoContestRepo struct {
	db *mongo.Database
}

func (r *mongoContestRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollContest)
}

// Upsert writes the crawled metadata fields, leaving prediction-owned
// fields (predict_time, user nums, progress) untouched.
func (r *mongoContestRepo) Upsert(ctx context.Context, c model.Contest) error {
	_, err := r.coll().UpdateOne(ctx,
		bson.M{"titleSlug": c.TitleSlug},
		bson.M{
			"$set": bson.M{
				"title":       c.Title,
				"startTime":   c.StartTime,
				"duration":    c.Duration,
				"endTime":     c.EndTime,
				"past":        c.Past,
				"update_time": c.UpdateTime,
			},
			"$setOnInsert": bson.M{"titleSlug": c.TitleSlug},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return errs.Store("upsert contest", err)
	}
	return nil
}

func (r *mongoContestRepo) Get(ctx context.Context, titleSlug string) (*model.Contest, error) {
	var c model.Contest
	err := r.coll().FindOne(ctx, bson.M{"titleSlug": titleSlug}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("get contest", err)
	}
	return &c, nil
}

func predictedFilter(predictedOnly bool) bson.M {
	if !predictedOnly {
		return bson.M{}
	}
	return bson.M{"predict_time": bson.M{"$gt": time.Unix(0, 0)}}
}

func (r *mongoContestRepo) List(ctx context.Context, predictedOnly bool, skip, limit int64) ([]model.Contest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}}).SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll().Find(ctx, predictedFilter(predictedOnly), opts)
	if err != nil {
		return nil, errs.Store("list contests", err)
	}
	var out []model.Contest
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("list contests", err)
	}
	return out, nil
}

func (r *mongoContestRepo) Count(ctx context.Context, predictedOnly bool) (int64, error) {
	n, err := r.coll().CountDocuments(ctx, predictedFilter(predictedOnly))
	if err != nil {
		return 0, errs.Store("count contests", err)
	}
	return n, nil
}

func (r *mongoContestRepo) LastUserNums(ctx context.Context, limit int64) ([]model.Contest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}}).SetLimit(limit)
	filter := bson.M{
		"user_num_us": bson.M{"$gte": 0},
		"user_num_cn": bson.M{"$gte": 0},
	}
	cur, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Store("contest user nums", err)
	}
	var out []model.Contest
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("contest user nums", err)
	}
	return out, nil
}

func (r *mongoContestRepo) SetPredictTime(ctx context.Context, titleSlug string, at time.Time) error {
	_, err := r.coll().UpdateOne(ctx,
		bson.M{"titleSlug": titleSlug},
		bson.M{"$set": bson.M{"predict_time": at}})
	if err != nil {
		return errs.Store("set predict time", err)
	}
	return nil
}

func (r *mongoContestRepo) SetUserNum(ctx context.Context, titleSlug string, region model.DataRegion, num int) error {
	field := "user_num_us"
	if region == model.RegionCN {
		field = "user_num_cn"
	}
	_, err := r.coll().UpdateOne(ctx,
		bson.M{"titleSlug": titleSlug},
		bson.M{"$set": bson.M{field: num}})
	if err != nil {
		return errs.Store("set user num", err)
	}
	return nil
}

func (r *mongoContestRepo) AppendProgress(ctx context.Context, titleSlug string, ev model.PredictionEvent) error {
	_, err := r.coll().UpdateOne(ctx,
		bson.M{"titleSlug": titleSlug},
		bson.M{"$push": bson.M{"prediction_progress": ev}})
	if err != nil {
		return errs.Store("append progress", err)
	}
	return nil
}
