// Package rank rebuilds minute-resolution contest standings from submission
// aggregates.
package rank

import (
	"context"
	"sort"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/model"
)

const (
	// GridLen is the number of one-minute marks tracked per contest.
	GridLen = 90

	// PenaltyPerFail is the time penalty added per wrong submission.
	PenaltyPerFail = 5 * time.Minute
)

// AggRow is one participant's aggregate standing at a time point: total
// credit earned, and the last-accept time pushed back by the fail penalty.
type AggRow struct {
	model.UserKey `bson:",inline"`
	CreditSum     int       `bson:"credit_sum"`
	FailCountSum  int       `bson:"fail_count_sum"`
	PenaltyDate   time.Time `bson:"penalty_date"`
}

// AggregateFunc returns the standings rows at time point t, sorted by
// credit descending then penalty date ascending.
type AggregateFunc func(ctx context.Context, t time.Time) ([]AggRow, error)

// SortRows orders rows by credit descending, penalty date ascending. Store
// pipelines return rows already sorted; in-memory sources use this.
func SortRows(rows []AggRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreditSum != rows[j].CreditSum {
			return rows[i].CreditSum > rows[j].CreditSum
		}
		return rows[i].PenaltyDate.Before(rows[j].PenaltyDate)
	})
}

// Ranks assigns competition-style ranks to sorted rows: the raw rank grows
// by one per row, and rows tied on (credit, penalty date) share the rank of
// the first row of their group.
func Ranks(rows []AggRow) map[model.UserKey]int {
	ranks := make(map[model.UserKey]int, len(rows))
	tie := 0
	for i, row := range rows {
		if i == 0 ||
			rows[i-1].CreditSum != row.CreditSum ||
			!rows[i-1].PenaltyDate.Equal(row.PenaltyDate) {
			tie = i + 1
		}
		ranks[row.UserKey] = tie
	}
	return ranks
}

// TimeGrid returns the grid points start+1m .. start+GridLen m.
func TimeGrid(start time.Time) []time.Time {
	grid := make([]time.Time, GridLen)
	for i := range grid {
		grid[i] = start.Add(time.Duration(i+1) * time.Minute)
	}
	return grid
}

// Series builds each participant's rank trajectory over the grid. A
// participant with no standings row at a grid point ranks one past the
// field at that point.
func Series(ctx context.Context, participants []model.UserKey, start time.Time, agg AggregateFunc) (map[model.UserKey][]int, error) {
	out := make(map[model.UserKey][]int, len(participants))
	for _, k := range participants {
		out[k] = make([]int, 0, GridLen)
	}

	for _, t := range TimeGrid(start) {
		rows, err := agg(ctx, t)
		if err != nil {
			return nil, err
		}
		ranks := Ranks(rows)
		absent := len(rows) + 1
		for _, k := range participants {
			r, ok := ranks[k]
			if !ok {
				r = absent
			}
			out[k] = append(out[k], r)
		}
	}
	return out, nil
}
