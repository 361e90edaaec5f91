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
)

type mongoQuestionRepo struct {
	db *mongo.Database
}

func (r *mongoQuestionRepo) coll() *mongo.Collection {
	return r.db.Collection(db.CollQuestion)
}

func (r *mongoQuestionRepo) UpsertMany(ctx context.Context, qs []model.Question) error {
	err := forEachLimited(ctx, qs, recordWave, func(ctx context.Context, q model.Question) error {
		_, err := r.coll().UpdateOne(ctx,
			bson.M{"contest_name": q.ContestName, "question_id": q.QuestionID},
			bson.M{
				"$set": bson.M{
					"credit":      q.Credit,
					"title":       q.Title,
					"title_slug":  q.TitleSlug,
					"qi":          q.QI,
					"update_time": q.UpdateTime,
				},
				"$setOnInsert": bson.M{
					"contest_name": q.ContestName,
					"question_id":  q.QuestionID,
				},
			},
			options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return errs.Store("upsert questions", err)
	}
	return nil
}

func (r *mongoQuestionRepo) DeleteStale(ctx context.Context, contestName string, before time.Time) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.M{
		"contest_name": contestName,
		"update_time":  bson.M{"$lt": before},
	})
	if err != nil {
		return 0, errs.Store("delete stale questions", err)
	}
	return res.DeletedCount, nil
}

func (r *mongoQuestionRepo) FindByContest(ctx context.Context, contestName string) ([]model.Question, error) {
	opts := options.Find().SetSort(bson.D{{Key: "qi", Value: 1}})
	cur, err := r.coll().Find(ctx, bson.M{"contest_name": contestName}, opts)
	if err != nil {
		return nil, errs.Store("find questions", err)
	}
	var out []model.Question
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find questions", err)
	}
	return out, nil
}

func (r *mongoQuestionRepo) FindByIDs(ctx context.Context, ids []int) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "qi", Value: 1}})
	cur, err := r.coll().Find(ctx, bson.M{"question_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, errs.Store("find questions by ids", err)
	}
	var out []model.Question
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Store("find questions by ids", err)
	}
	return out, nil
}

func (r *mongoQuestionRepo) SetRealTimeCount(ctx context.Context, contestName string, questionID int, counts []int) error {
	_, err := r.coll().UpdateOne(ctx,
		bson.M{"contest_name": contestName, "question_id": questionID},
		bson.M{"$set": bson.M{"real_time_count": counts}})
	if err != nil {
		return errs.Store("set real time count", err)
	}
	return nil
}
