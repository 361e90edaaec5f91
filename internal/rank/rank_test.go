package rank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baoliay2008/lccn-predictor/internal/model"
)

func key(name string) model.UserKey {
	return model.UserKey{Username: name, DataRegion: model.RegionCN}
}

func TestRanksTiesShareRankAndGapFollows(t *testing.T) {
	base := time.Date(2023, 7, 2, 2, 30, 0, 0, time.UTC)
	rows := []AggRow{
		{UserKey: key("a"), CreditSum: 12, PenaltyDate: base.Add(40 * time.Minute)},
		{UserKey: key("b"), CreditSum: 8, PenaltyDate: base.Add(30 * time.Minute)},
		{UserKey: key("c"), CreditSum: 8, PenaltyDate: base.Add(30 * time.Minute)},
		{UserKey: key("d"), CreditSum: 8, PenaltyDate: base.Add(30 * time.Minute)},
		{UserKey: key("e"), CreditSum: 8, PenaltyDate: base.Add(31 * time.Minute)},
		{UserKey: key("f"), CreditSum: 3, PenaltyDate: base.Add(10 * time.Minute)},
	}

	ranks := Ranks(rows)
	assert.Equal(t, 1, ranks[key("a")])
	assert.Equal(t, 2, ranks[key("b")])
	assert.Equal(t, 2, ranks[key("c")])
	assert.Equal(t, 2, ranks[key("d")])
	assert.Equal(t, 5, ranks[key("e")], "rank after a three-way tie skips to the raw rank")
	assert.Equal(t, 6, ranks[key("f")])
}

func TestSortRows(t *testing.T) {
	base := time.Date(2023, 7, 2, 2, 30, 0, 0, time.UTC)
	rows := []AggRow{
		{UserKey: key("late"), CreditSum: 8, PenaltyDate: base.Add(50 * time.Minute)},
		{UserKey: key("top"), CreditSum: 12, PenaltyDate: base.Add(80 * time.Minute)},
		{UserKey: key("fast"), CreditSum: 8, PenaltyDate: base.Add(20 * time.Minute)},
	}
	SortRows(rows)

	assert.Equal(t, key("top"), rows[0].UserKey)
	assert.Equal(t, key("fast"), rows[1].UserKey)
	assert.Equal(t, key("late"), rows[2].UserKey)
}

func TestTimeGrid(t *testing.T) {
	start := time.Date(2023, 7, 2, 2, 30, 0, 0, time.UTC)
	grid := TimeGrid(start)

	require.Len(t, grid, GridLen)
	assert.Equal(t, start.Add(time.Minute), grid[0])
	assert.Equal(t, start.Add(90*time.Minute), grid[GridLen-1])
}

func TestSeries(t *testing.T) {
	start := time.Date(2023, 7, 2, 2, 30, 0, 0, time.UTC)
	participants := []model.UserKey{key("a"), key("b"), key("slow")}

	// "a" leads throughout, "b" joins at minute 3, "slow" never submits.
	agg := func(ctx context.Context, at time.Time) ([]AggRow, error) {
		rows := []AggRow{{UserKey: key("a"), CreditSum: 4, PenaltyDate: start.Add(time.Minute)}}
		if !at.Before(start.Add(3 * time.Minute)) {
			rows = append(rows, AggRow{UserKey: key("b"), CreditSum: 3, PenaltyDate: start.Add(3 * time.Minute)})
		}
		return rows, nil
	}

	series, err := Series(context.Background(), participants, start, agg)
	require.NoError(t, err)

	require.Len(t, series[key("a")], GridLen)
	assert.Equal(t, 1, series[key("a")][0])
	assert.Equal(t, 1, series[key("a")][GridLen-1])

	assert.Equal(t, 2, series[key("b")][0], "absent participant ranks one past the field")
	assert.Equal(t, 2, series[key("b")][2], "present from minute 3")

	assert.Equal(t, 2, series[key("slow")][0])
	assert.Equal(t, 3, series[key("slow")][5], "field of two pushes the absent rank to 3")
}

func TestSeriesPropagatesAggregateError(t *testing.T) {
	agg := func(ctx context.Context, at time.Time) ([]AggRow, error) {
		return nil, context.DeadlineExceeded
	}
	_, err := Series(context.Background(), []model.UserKey{key("a")},
		time.Date(2023, 7, 2, 2, 30, 0, 0, time.UTC), agg)
	require.Error(t, err)
}
