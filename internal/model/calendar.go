package model

import (
	"fmt"
	"strings"
	"time"
)

// Contest calendar baselines. Weekly contests start Sunday 02:30 UTC,
// biweekly contests Saturday 14:30 UTC, both on a fixed cadence anchored
// at a known past contest.
var (
	WeeklyBaseTime   = time.Date(2022, time.May, 22, 2, 30, 0, 0, time.UTC)
	BiweeklyBaseTime = time.Date(2022, time.May, 14, 14, 30, 0, 0, time.UTC)
)

const (
	WeeklyBaseNum   = 294
	BiweeklyBaseNum = 78

	// ContestDuration is the fixed length of every contest.
	ContestDuration = 90 * time.Minute
)

// CronTimePoint is a weekly-recurring wall-clock point in UTC.
type CronTimePoint struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

var (
	WeeklyStart   = CronTimePoint{time.Sunday, 2, 30}
	BiweeklyStart = CronTimePoint{time.Saturday, 14, 30}
)

// Matches reports whether t (truncated to the minute, in UTC) is at the
// cron point.
func (p CronTimePoint) Matches(t time.Time) bool {
	u := t.UTC()
	return u.Weekday() == p.Weekday && u.Hour() == p.Hour && u.Minute() == p.Minute
}

// PassedWeeks is the number of whole weeks between base and t, computed on
// whole days so a few minutes of skew inside the start minute cannot change
// the result.
func PassedWeeks(t, base time.Time) int {
	days := int(t.Sub(base).Hours() / 24)
	return days / 7
}

// CurrentWeeklyContest returns the slug of the weekly contest whose start
// week contains t.
func CurrentWeeklyContest(t time.Time) string {
	return fmt.Sprintf("weekly-contest-%d", WeeklyBaseNum+PassedWeeks(t, WeeklyBaseTime))
}

// CurrentBiweeklyContest returns the slug of the biweekly contest starting
// in the week of t, or "" when t falls in an off week.
func CurrentBiweeklyContest(t time.Time) string {
	pw := PassedWeeks(t, BiweeklyBaseTime)
	if pw%2 != 0 {
		return ""
	}
	return fmt.Sprintf("biweekly-contest-%d", BiweeklyBaseNum+pw/2)
}

// IsBiweekly reports whether the contest slug names a biweekly contest.
// Biweekly ratings are applied to users right after prediction because the
// next weekly contest starts before official results are out.
func IsBiweekly(contestName string) bool {
	return strings.HasPrefix(contestName, "bi")
}

// ContestStartTime computes the scheduled start of a contest slug from the
// calendar baselines. It returns an error for slugs outside the two
// recognized families.
func ContestStartTime(contestName string) (time.Time, error) {
	var num int
	if n, err := fmt.Sscanf(contestName, "biweekly-contest-%d", &num); err == nil && n == 1 {
		return BiweeklyBaseTime.Add(time.Duration(num-BiweeklyBaseNum) * 2 * 7 * 24 * time.Hour), nil
	}
	if n, err := fmt.Sscanf(contestName, "weekly-contest-%d", &num); err == nil && n == 1 {
		return WeeklyBaseTime.Add(time.Duration(num-WeeklyBaseNum) * 7 * 24 * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized contest slug %q", contestName)
}

// ProjectedContest builds a Contest row for a slug whose metadata has not
// been crawled yet, from calendar arithmetic alone.
func ProjectedContest(contestName string, now time.Time) (Contest, error) {
	start, err := ContestStartTime(contestName)
	if err != nil {
		return Contest{}, err
	}
	words := strings.Split(contestName, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return Contest{
		TitleSlug:  contestName,
		Title:      strings.Join(words, " "),
		StartTime:  start,
		Duration:   int64(ContestDuration / time.Second),
		EndTime:    start.Add(ContestDuration),
		UpdateTime: now,
	}, nil
}
