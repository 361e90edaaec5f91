// Package db bootstraps the MongoDB connection and the collection indexes.
package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
)

// Collection names, one per entity.
const (
	CollContest    = "Contest"
	CollPredict    = "ContestRecordPredict"
	CollArchive    = "ContestRecordArchive"
	CollUser       = "User"
	CollQuestion   = "Question"
	CollSubmission = "Submission"
)

// Connect dials the store and verifies the connection with a ping.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.Store("mongo connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, errs.Store("mongo ping", err)
	}
	return client.Database(dbName), nil
}

// EnsureIndexes creates the query and uniqueness indexes. Creation is
// idempotent, so it runs at every startup.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	spec := map[string][]mongo.IndexModel{
		CollContest: {
			{Keys: bson.D{{Key: "titleSlug", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "startTime", Value: -1}}},
			{Keys: bson.D{{Key: "predict_time", Value: 1}}},
		},
		CollPredict: {
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "data_region", Value: 1}, {Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "rank", Value: 1}}},
			{Keys: bson.D{{Key: "username", Value: 1}}},
			{Keys: bson.D{{Key: "user_slug", Value: 1}}},
		},
		CollArchive: {
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "data_region", Value: 1}, {Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "rank", Value: 1}}},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "update_time", Value: 1}}},
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		CollUser: {
			{Keys: bson.D{{Key: "data_region", Value: 1}, {Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "update_time", Value: 1}}},
		},
		CollQuestion: {
			{Keys: bson.D{{Key: "question_id", Value: 1}}},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "qi", Value: 1}}},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "update_time", Value: 1}}},
		},
		CollSubmission: {
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "data_region", Value: 1}, {Key: "username", Value: 1}, {Key: "question_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "contest_name", Value: 1}, {Key: "update_time", Value: 1}}},
		},
	}

	for coll, models := range spec {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errs.Store("ensure indexes "+coll, err)
		}
	}
	return nil
}
