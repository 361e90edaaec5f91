package leetcode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/fetch"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// ContestMeta is the calendar entry of one contest as the upstream lists it.
type ContestMeta struct {
	Title     string    `json:"title"`
	TitleSlug string    `json:"titleSlug"`
	StartTime EpochTime `json:"startTime"`
	Duration  int64     `json:"duration"`
}

// QuestionInfo is one contest question as listed by the info endpoint.
type QuestionInfo struct {
	QuestionID   int    `json:"question_id"`
	Credit       int    `json:"credit"`
	Title        string `json:"title"`
	EnglishTitle string `json:"english_title"`
	TitleSlug    string `json:"title_slug"`
}

// ContestInfo is the info endpoint payload.
type ContestInfo struct {
	Contest struct {
		ID        int       `json:"id"`
		Title     string    `json:"title"`
		TitleSlug string    `json:"title_slug"`
		StartTime EpochTime `json:"start_time"`
		Duration  int64     `json:"duration"`
	} `json:"contest"`
	Questions []QuestionInfo `json:"questions"`
}

// ContestInfo fetches contest metadata and its question list. CN question
// titles are replaced by their English titles when present.
func (c *Client) ContestInfo(ctx context.Context, region model.DataRegion, contestName string) (*ContestInfo, error) {
	url := fmt.Sprintf("%s/contest/api/info/%s/", c.baseURL(region), contestName)
	results, err := c.queue.Do(ctx, []fetch.Request{{Method: "GET", URL: url}}, 1)
	if err != nil {
		return nil, err
	}
	if results[0] == nil {
		return nil, errs.Transient("contest info", fmt.Errorf("no response for %s", contestName))
	}

	var info ContestInfo
	if err := json.Unmarshal(results[0].Body, &info); err != nil {
		return nil, errs.Parse("contest info", err)
	}
	if region == model.RegionCN {
		for i := range info.Questions {
			if info.Questions[i].EnglishTitle != "" {
				info.Questions[i].Title = info.Questions[i].EnglishTitle
			}
		}
	}
	return &info, nil
}

// TopTwoContests fetches the two upcoming contests from the US site.
func (c *Client) TopTwoContests(ctx context.Context) ([]ContestMeta, error) {
	const query = `{
		topTwoContests {
			title
			titleSlug
			startTime
			duration
		}
	}`
	results, err := c.queue.Do(ctx, []fetch.Request{
		graphqlRequest(c.graphqlURL(model.RegionUS), query, nil),
	}, 1)
	if err != nil {
		return nil, err
	}
	if results[0] == nil {
		return nil, errs.Transient("top two contests", fmt.Errorf("no response"))
	}

	var payload struct {
		Data struct {
			TopTwoContests []ContestMeta `json:"topTwoContests"`
		} `json:"data"`
	}
	if err := json.Unmarshal(results[0].Body, &payload); err != nil {
		return nil, errs.Parse("top two contests", err)
	}
	return payload.Data.TopTwoContests, nil
}

// PastContests fetches pageNum pages of past contests from the US site,
// newest first.
func (c *Client) PastContests(ctx context.Context, pageNum int) ([]ContestMeta, error) {
	const query = `query pastContests($pageNo: Int) {
		pastContests(pageNo: $pageNo) {
			data {
				title
				titleSlug
				startTime
				duration
			}
		}
	}`

	reqs := make([]fetch.Request, pageNum)
	for i := range reqs {
		reqs[i] = graphqlRequest(c.graphqlURL(model.RegionUS), query,
			map[string]any{"pageNo": i + 1})
	}
	results, err := c.queue.Do(ctx, reqs, pastContestsConc)
	if err != nil {
		return nil, err
	}

	var contests []ContestMeta
	for i, res := range results {
		if res == nil {
			return nil, errs.Transient("past contests", fmt.Errorf("no response for page %d", i+1))
		}
		var payload struct {
			Data struct {
				PastContests struct {
					Data []ContestMeta `json:"data"`
				} `json:"pastContests"`
			} `json:"data"`
		}
		if err := json.Unmarshal(res.Body, &payload); err != nil {
			return nil, errs.Parse("past contests", err)
		}
		contests = append(contests, payload.Data.PastContests.Data...)
	}
	return contests, nil
}
