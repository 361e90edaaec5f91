package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

type mongoArchiveRepo struct {
	db *mongo.Database
}

func (r *mongoArchiveRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollArchive)
}

// UpsertMany refreshes the ranking fields of each row. real_time_rank is
// never touched here so a rejudge refresh cannot wipe the trajectory.
func (r *mongoArchiveRepo) UpsertMany(ctx context.Context, rows []model.ContestRecordArchive) error {
	err := forEachLimited(ctx, rows, recordWave, func(ctx context.Context, row model.ContestRecordArchive) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{
				"contest_name": row.ContestName,
				"data_region":  row.DataRegion,
				"username":     row.Username,
			},
			bson.M{
				"$set": bson.M{
					"contest_id":   row.ContestID,
					"user_slug":    row.UserSlug,
					"country_code": row.CountryCode,
					"country_name": row.CountryName,
					"rank":         row.Rank,
					"score":        row.Score,
					"finish_time":  row.FinishTime,
					"update_time":  row.UpdateTime,
				},
				"$setOnInsert": bson.M{
					"contest_name": row.ContestName,
					"data_region":  row.DataRegion,
					"username":     row.Username,
				},
			},
			options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return errs.Store("upsert archive records", err)
	}
	return nil
}

func (r *mongoArchiveRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.M{
		"contest_name": contestName,
		"update_time":  bson.M{"$lt": before},
	})
	if err != nil {
		return 0, errs.Store("delete stale archive records", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoArchiveRepo) FindByContest(ctx context.Context, contestName string, q RecordQuery) ([]model.ContestRecordArchive, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: 1}}).SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.coll().Find(ctx, recordFilter(contestName, q.OnlyScored), opts)
	if err != nil {
		return nil, errs.Store("find archive records", err)
	}
	var out []model.ContestRecordArchive
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find archive records", err)
	}
	return out, nil
}

func (r *mongoArchiveRepo) CountByContest(ctx context.Context, contestName string, onlyScored bool) (int64, error) {
	n, err := r.coll().CountDocuments(ctx, recordFilter(contestName, onlyScored))
	if err != nil {
		return 0, errs.Store("count archive records", err)
	}
	return n, nil
}

func (r *mongoArchiveRepo) FindByUser(ctx context.Context, username string) ([]model.ContestRecordArchive, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"username": username},
		bson.M{"username": strings.ToLower(username)},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "contest_name", Value: -1}})
	cur, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Store("find archive records by user", err)
	}
	var out []model.ContestRecordArchive
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find archive records by user", err)
	}
	return out, nil
}

func (r *mongoArchiveRepo) Keys(ctx context.Context, contestName string, onlyScored bool) ([]model.UserKey, error) {
	opts := options.Find().SetProjection(bson.M{"username": 1, "data_region": 1})
	cur, err := r.coll().Find(ctx, recordFilter(contestName, onlyScored), opts)
	if err != nil {
		return nil, errs.Store("archive keys", err)
	}
	var out []model.UserKey
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("archive keys", err)
	}
	return out, nil
}

// StaleUserKeys joins scored archive rows against User and keeps those
// whose user row is missing or last refreshed before updatedAfter.
func (r *mongoArchiveRepo) StaleUserKeys(ctx context.Context, contestName string, updatedAfter time.Time) ([]model.UserKey, error) {
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

func (r *mongoArchiveRepo) SetRealTimeRank(ctx context.Context, contestName string, key model.UserKey, ranks []int) error {
	_, err := r.coll().UpdateOne(ctx,
		bson.M{
			"contest_name": contestName,
			"data_region":  key.DataRegion,
			"username":     key.Username,
		},
		bson.M{"$set": bson.M{"real_time_rank": ranks}})
	if err != nil {
		return errs.Store("set real time rank", err)
	}
	return nil
}

func (r *mongoArchiveRepo) GetRealTimeRank(ctx context.Context, contestName string, key model.UserKey) ([]int, error) {
	var row model.ContestRecordArchive
	err := r.coll().FindOne(ctx, bson.M{
		"contest_name": contestName,
		"data_region":  key.DataRegion,
		"username":     key.Username,
	}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("get real time rank", err)
	}
	return row.RealTimeRank, nil
}
