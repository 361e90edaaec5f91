package leetcode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/fetch"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// RankingEntry is one participant row of the ranking endpoint.
type RankingEntry struct {
	ContestID   int       `json:"contest_id"`
	Username    string    `json:"username"`
	UserSlug    string    `json:"user_slug"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	Rank        int       `json:"rank"`
	Score       int       `json:"score"`
	FinishTime  EpochTime `json:"finish_time"`
	DataRegion  string    `json:"data_region"`
}

// SubmissionEntry is one accepted submission in a participant's per-question
// submission map.
type SubmissionEntry struct {
	Date         EpochTime `json:"date"`
	FailCount    int       `json:"fail_count"`
	SubmissionID int       `json:"submission_id"`
	Status       int       `json:"status"`
	ContestID    int       `json:"contest_id"`
	QuestionID   int       `json:"question_id"`
	DataRegion   string    `json:"data_region"`
}

type rankingPage struct {
	TotalRank   []RankingEntry               `json:"total_rank"`
	Submissions []map[string]SubmissionEntry `json:"submissions"`
	UserNum     int                          `json:"user_num"`
	IsPast      bool                         `json:"is_past"`
}

// RankingSummary is the first-page probe. FallbackLocal means the CN site is
// still serving stale local data for this contest.
type RankingSummary struct {
	UserNum       int
	IsPast        bool
	FallbackLocal bool
}

func (c *Client) rankingURL(region model.DataRegion, contestName string, page int) string {
	return fmt.Sprintf("%s/contest/api/ranking/%s/?pagination=%d&region=global",
		c.baseURL(region), contestName, page)
}

// RankingSummary probes the first ranking page for the participant count and
// data-readiness signals.
func (c *Client) RankingSummary(ctx context.Context, region model.DataRegion, contestName string) (*RankingSummary, error) {
	results, err := c.queue.Do(ctx, []fetch.Request{
		{Method: "GET", URL: c.rankingURL(region, contestName, 1)},
	}, 1)
	if err != nil {
		return nil, err
	}
	if results[0] == nil {
		return nil, errs.Transient("ranking summary", fmt.Errorf("no response for %s", contestName))
	}

	var page rankingPage
	if err := json.Unmarshal(results[0].Body, &page); err != nil {
		return nil, errs.Parse("ranking summary", err)
	}

	// Key presence alone carries the signal, whatever the value.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(results[0].Body, &keys); err != nil {
		return nil, errs.Parse("ranking summary", err)
	}
	_, fallback := keys["fallback_local"]

	return &RankingSummary{
		UserNum:       page.UserNum,
		IsPast:        page.IsPast,
		FallbackLocal: fallback,
	}, nil
}

// RankingPages fetches the full ranking of a contest. The returned
// submission maps are aligned index-for-index with the entries.
func (c *Client) RankingPages(ctx context.Context, region model.DataRegion, contestName string) ([]RankingEntry, []map[string]SubmissionEntry, error) {
	summary, err := c.RankingSummary(ctx, region, contestName)
	if err != nil {
		return nil, nil, err
	}
	pages := (summary.UserNum + RankingPageSize - 1) / RankingPageSize
	if pages == 0 {
		return nil, nil, nil
	}

	concurrency := rankingConcurrencyUS
	if region == model.RegionCN {
		concurrency = rankingConcurrencyCN
	}

	reqs := make([]fetch.Request, pages)
	for i := range reqs {
		reqs[i] = fetch.Request{Method: "GET", URL: c.rankingURL(region, contestName, i+1)}
	}
	results, err := c.queue.Do(ctx, reqs, concurrency)
	if err != nil {
		return nil, nil, err
	}

	var (
		entries     []RankingEntry
		submissions []map[string]SubmissionEntry
	)
	for i, res := range results {
		if res == nil {
			// Budget-exhausted page; the remaining pages still cover
			// everyone they list.
			c.logger.Warn("ranking page missing, skipping",
				"contest_name", contestName,
				"region", string(region),
				"page", i+1)
			continue
		}
		var page rankingPage
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, nil, errs.Parse("ranking pages", err)
		}
		if len(page.Submissions) != len(page.TotalRank) {
			return nil, nil, errs.Parse("ranking pages",
				fmt.Errorf("page %d: %d submission maps for %d entries",
					i+1, len(page.Submissions), len(page.TotalRank)))
		}
		entries = append(entries, page.TotalRank...)
		submissions = append(submissions, page.Submissions...)
	}

	c.logger.Info("ranking crawled",
		"contest_name", contestName,
		"region", string(region),
		"entries", len(entries))
	return entries, submissions, nil
}
