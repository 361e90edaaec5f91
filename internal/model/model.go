// Package model defines the persisted entities of the contest rating
// predictor and the contest-calendar arithmetic shared by the scheduler and
// the lifecycle handlers.
package model

import "time"

// DataRegion identifies the upstream a record was crawled from.
type DataRegion string

const (
	RegionCN DataRegion = "CN"
	RegionUS DataRegion = "US"
)

// ProgressStatus is the state of a single prediction-pipeline stage.
type ProgressStatus string

const (
	StatusOngoing ProgressStatus = "Ongoing"
	StatusPassed  ProgressStatus = "Passed"
	StatusFailed  ProgressStatus = "Failed"
)

// Defaults applied to participants unknown to the User collection.
const (
	DefaultNewUserRating                = 1500.0
	DefaultNewUserAttendedContestsCount = 0
)

// PredictionEvent records one stage of a prediction run on the Contest row.
type PredictionEvent struct {
	Name        string         `bson:"name" json:"name"`
	Description string         `bson:"description,omitempty" json:"description,omitempty"`
	Timestamp   time.Time      `bson:"timestamp" json:"timestamp"`
	Status      ProgressStatus `bson:"status" json:"status"`
}

// Contest is the metadata row for a single contest, keyed by TitleSlug.
// EndTime is always StartTime plus Duration.
type Contest struct {
	TitleSlug          string            `bson:"titleSlug" json:"titleSlug"`
	Title              string            `bson:"title" json:"title"`
	StartTime          time.Time         `bson:"startTime" json:"startTime"`
	Duration           int64             `bson:"duration" json:"duration"` // seconds
	EndTime            time.Time         `bson:"endTime" json:"endTime"`
	Past               bool              `bson:"past" json:"past"`
	UpdateTime         time.Time         `bson:"update_time" json:"update_time"`
	PredictTime        *time.Time        `bson:"predict_time,omitempty" json:"predict_time,omitempty"`
	UserNumUS          *int              `bson:"user_num_us,omitempty" json:"user_num_us,omitempty"`
	UserNumCN          *int              `bson:"user_num_cn,omitempty" json:"user_num_cn,omitempty"`
	PredictionProgress []PredictionEvent `bson:"prediction_progress,omitempty" json:"prediction_progress,omitempty"`
}

// ContestRecord holds the ranking fields common to the predict snapshot and
// the archive. The natural key is (ContestName, DataRegion, Username).
type ContestRecord struct {
	ContestName string     `bson:"contest_name" json:"contest_name"`
	ContestID   int        `bson:"contest_id" json:"contest_id"`
	Username    string     `bson:"username" json:"username"`
	UserSlug    string     `bson:"user_slug" json:"user_slug"`
	CountryCode string     `bson:"country_code,omitempty" json:"country_code,omitempty"`
	CountryName string     `bson:"country_name,omitempty" json:"country_name,omitempty"`
	Rank        int        `bson:"rank" json:"rank"`
	Score       int        `bson:"score" json:"score"`
	FinishTime  time.Time  `bson:"finish_time" json:"finish_time"`
	DataRegion  DataRegion `bson:"data_region" json:"data_region"`
}

// Key returns the user part of the record's natural key.
func (r ContestRecord) Key() UserKey {
	return UserKey{Username: r.Username, DataRegion: r.DataRegion}
}

// ContestRecordPredict is the immutable pre-finalization snapshot used as
// prediction input and output. Rows are inserted once per contest run and
// frozen once PredictTime is stamped.
type ContestRecordPredict struct {
	ContestRecord         `bson:",inline"`
	InsertTime            time.Time  `bson:"insert_time" json:"insert_time"`
	AttendedContestsCount int        `bson:"attendedContestsCount" json:"attendedContestsCount"`
	OldRating             float64    `bson:"old_rating" json:"old_rating"`
	DeltaRating           *float64   `bson:"delta_rating,omitempty" json:"delta_rating,omitempty"`
	NewRating             *float64   `bson:"new_rating,omitempty" json:"new_rating,omitempty"`
	PredictTime           *time.Time `bson:"predict_time,omitempty" json:"predict_time,omitempty"`
}

// ContestRecordArchive is the mutable canonical record after rejudging.
// RealTimeRank is the minute-resolution rank trajectory.
type ContestRecordArchive struct {
	ContestRecord `bson:",inline"`
	UpdateTime    time.Time `bson:"update_time" json:"update_time"`
	RealTimeRank  []int     `bson:"real_time_rank,omitempty" json:"real_time_rank,omitempty"`
}

// User carries the authoritative prior rating for future predictions,
// keyed by (DataRegion, Username).
type User struct {
	Username              string     `bson:"username" json:"username"`
	UserSlug              string     `bson:"user_slug" json:"user_slug"`
	DataRegion            DataRegion `bson:"data_region" json:"data_region"`
	AttendedContestsCount int        `bson:"attendedContestsCount" json:"attendedContestsCount"`
	Rating                float64    `bson:"rating" json:"rating"`
	UpdateTime            time.Time  `bson:"update_time" json:"update_time"`
}

// UserKey is the unique key of the User collection. Never match on
// Username alone: the same name can exist in both regions.
type UserKey struct {
	Username   string     `bson:"username" json:"username"`
	DataRegion DataRegion `bson:"data_region" json:"data_region"`
}

// Question is one of the four ranked questions of a contest.
// RealTimeCount is the cumulative finish-count curve over the rank grid.
type Question struct {
	QuestionID    int       `bson:"question_id" json:"question_id"`
	Credit        int       `bson:"credit" json:"credit"`
	Title         string    `bson:"title" json:"title"`
	TitleSlug     string    `bson:"title_slug" json:"title_slug"`
	RealTimeCount []int     `bson:"real_time_count,omitempty" json:"real_time_count,omitempty"`
	UpdateTime    time.Time `bson:"update_time" json:"update_time"`
	ContestName   string    `bson:"contest_name" json:"contest_name"`
	QI            int       `bson:"qi" json:"qi"` // ordinal 1..4
}

// Submission is a participant's accepted submission for one question,
// keyed by (ContestName, DataRegion, Username, QuestionID).
type Submission struct {
	ContestName  string     `bson:"contest_name" json:"contest_name"`
	Username     string     `bson:"username" json:"username"`
	DataRegion   DataRegion `bson:"data_region" json:"data_region"`
	QuestionID   int        `bson:"question_id" json:"question_id"`
	Date         time.Time  `bson:"date" json:"date"`
	FailCount    int        `bson:"fail_count" json:"fail_count"`
	Credit       int        `bson:"credit" json:"credit"`
	SubmissionID int        `bson:"submission_id" json:"submission_id"`
	Status       int        `bson:"status" json:"status"`
	ContestID    int        `bson:"contest_id" json:"contest_id"`
	UpdateTime   time.Time  `bson:"update_time" json:"update_time"`
}
