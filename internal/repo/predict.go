package repo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

type mongoPredictRepo struct {
	db *mongo.Database
}

func (r *mongoPredictRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollPredict)
}

func recordFilter(contestName string, onlyScored bool) bson.M {
	filter := bson.M{"contest_name": contestName}
	if onlyScored {
		filter["score"] = bson.M{"$ne": 0}
	}
	return filter
}

func (r *mongoPredictRepo) DeleteByContest(ctx context.Context, contestName string) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.M{"contest_name": contestName})
	if err != nil {
		return 0, errs.Store("delete predict records", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoPredictRepo) InsertMany(ctx context.Context, rows []model.ContestRecordPredict) error {
	err := forEachLimited(ctx, rows, recordWave, func(ctx context.Context, row model.ContestRecordPredict) error {
		_, err := r.coll().InsertOne(ctx, row)
		return err
	})
	if err != nil {
		return errs.Store("insert predict records", err)
	}
	return nil
}

func (r *mongoPredictRepo) FindByContest(ctx context.Context, contestName string, q RecordQuery) ([]model.ContestRecordPredict, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: 1}}).SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.coll().Find(ctx, recordFilter(contestName, q.OnlyScored), opts)
	if err != nil {
		return nil, errs.Store("find predict records", err)
	}
	var out []model.ContestRecordPredict
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find predict records", err)
	}
	return out, nil
}

func (r *mongoPredictRepo) CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error) {
	n, err := r.coll().CountDocuments(ctx, recordFilter(contestName, onlyScored))
	if err != nil {
		return 0, errs.Store("count predict records", err)
	}
	return n, nil
}

func (r *mongoPredictRepo) SavePredictions(ctx context.Context, rows []model.ContestRecordPredict) error {
	err := forEachLimited(ctx, rows, recordWave, func(ctx context.Context, row model.ContestRecordPredict) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{
				"contest_name": row.ContestName,
				"data_region":  row.DataRegion,
				"username":     row.Username,
			},
			bson.M{"$set": bson.M{
				"delta_rating": row.DeltaRating,
				"new_rating":   row.NewRating,
				"predict_time": row.PredictTime,
			}})
		return err
	})
	if err != nil {
		return errs.Store("save predictions", err)
	}
	return nil
}

func (r *mongoPredictRepo) SaveUserSnapshots(ctx context.Context, rows []model.ContestRecordPredict) error {
	err := forEachLimited(ctx, rows, recordWave, func(ctx context.Context, row model.ContestRecordPredict) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{
				"contest_name": row.ContestName,
				"data_region":  row.DataRegion,
				"username":     row.Username,
			},
			bson.M{"$set": bson.M{
				"old_rating":            row.OldRating,
				"attendedContestsCount": row.AttendedContestsCount,
			}})
		return err
	})
	if err != nil {
		return errs.Store("save user snapshots", err)
	}
	return nil
}

// StaleUserKeys mirrors the archive pipeline over the predict snapshot: it
// joins scored rows against User and keeps those whose user row is missing
// or last refreshed before updatedAfter.
func (r *mongoPredictRepo) StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"contest_name": contestName,
			"score":        bson.M{"$ne": 0},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.CollUser,
			"let":  bson.M{"u": "$username", "r": "$data_region"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$username", "$$u"}},
					bson.M{"$eq": bson.A{"$data_region", "$$r"}},
					bson.M{"$gte": bson.A{"$update_time", updatedAfter}},
				}}}},
			},
			"as": "recent_updated_user",
		}}},
		{{Key: "$match", Value: bson.M{"recent_updated_user": bson.A{}}}},
		{{Key: "$project", Value: bson.M{"username": 1, "data_region": 1}}},
	}

	cur, err := r.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.Store("stale user keys", err)
	}
	var out []model.UserKey
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("stale user keys", err)
	}
	return out, nil
}

func (r *mongoPredictRepo) FindByUser(ctx context.Context, username string) ([]model.ContestRecordPredict, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"username": strings.ToLower(username)},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "contest_name", Value: -1}})
	cur, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Store("find predict records by user", err)
	}
	var out []model.ContestRecordPredict
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find predict records by user", err)
	}
	return out, nil
}

func (r *mongoPredictRepo) FindByKeys(ctx context.Context, contestName string, keys []model.UserKey) ([]model.ContestRecordPredict, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ors := make(bson.A, len(keys))
	for i, k := range keys {
		ors[i] = bson.M{"username": k.Username, "data_region": k.DataRegion}
	}
	cur, err := r.coll().Find(ctx, bson.M{"contest_name": contestName, "$or": ors})
	if err != nil {
		return nil, errs.Store("find predict records by keys", err)
	}
	var out []model.ContestRecordPredict
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find predict records by keys", err)
	}
	return out, nil
}
