package repo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baoliay2008/lccn-predictor/internal/db"
	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// getManyChunk bounds the $or fan-out of a bulk key lookup.
const getManyChunk = 500

type mongoUserRepo struct {
	db *mongo.Database
}

func (r *mongoUserRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollUser)
}

func (r *mongoUserRepo) Get(ctx context.Context, key model.UserKey) (*model.User, error) {
	var u model.User
	err := r.coll().FindOne(ctx, bson.M{
		"username":    key.Username,
		"data_region": key.DataRegion,
	}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("get user", err)
	}
	return &u, nil
}

func (r *mongoUserRepo) GetMany(ctx context.Context, keys []model.UserKey) (map[model.UserKey]model.User, error) {
	out := make(map[model.UserKey]model.User, len(keys))
	for start := 0; start < len(keys); start += getManyChunk {
		end := start + getManyChunk
		if end > len(keys) {
			end = len(keys)
		}
		ors := make(bson.A, 0, end-start)
		for _, k := range keys[start:end] {
			ors = append(ors, bson.M{"username": k.Username, "data_region": k.DataRegion})
		}

		cur, err := r.coll().Find(ctx, bson.M{"$or": ors})
		if err != nil {
			return nil, errs.Store("get users", err)
		}
		var users []model.User
		if err := cur.All(ctx, &users); err != nil {
			return nil, errs.Store("get users", err)
		}
		for _, u := range users {
			out[model.UserKey{Username: u.Username, DataRegion: u.DataRegion}] = u
		}
	}
	return out, nil
}

func (r *mongoUserRepo) UpsertMany(ctx context.Context, users []model.User) error {
	err := forEachLimited(ctx, users, recordWave, func(ctx context.Context, u model.User) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{"username": u.Username, "data_region": u.DataRegion},
			bson.M{
				"$set": bson.M{
					"user_slug":             u.UserSlug,
					"attendedContestsCount": u.AttendedContestsCount,
					"rating":                u.Rating,
					"update_time":           u.UpdateTime,
				},
				"$setOnInsert": bson.M{
					"username":    u.Username,
					"data_region": u.DataRegion,
				},
			},
			options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return errs.Store("upsert users", err)
	}
	return nil
}
