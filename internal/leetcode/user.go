package leetcode

import (
	"context"
	"encoding/json"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
	"github.com/baoliay2008/lccn-predictor/internal/fetch"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// UserRanking is a user's global contest standing.
type UserRanking struct {
	AttendedContestsCount int     `json:"attendedContestsCount"`
	Rating                float64 `json:"rating"`
}

// UserRatingOutcome is the per-user result of a rating batch. Fetched is
// false when the retry budget ran out; a fetched outcome with a nil Ranking
// means the upstream reports no contest history for the user.
type UserRatingOutcome struct {
	Fetched bool
	Ranking *UserRanking
}

// The two sites key the query differently: username on the US site,
// userSlug on the CN site.
const (
	userRatingQueryUS = `query userContestRankingInfo($username: String!) {
		userContestRanking(username: $username) {
			attendedContestsCount
			rating
		}
	}`
	userRatingQueryCN = `query userContestRankingInfo($userSlug: String!) {
		userContestRanking(userSlug: $userSlug) {
			attendedContestsCount
			rating
		}
	}`
)

// UserRatings fetches current ratings for usernames from one region under
// the regional concurrency cap. Outcomes align index-for-index with
// usernames.
func (c *Client) UserRatings(ctx context.Context, region model.DataRegion, usernames []string) ([]UserRatingOutcome, error) {
	query, variable, concurrency := userRatingQueryUS, "username", userRatingConcUS
	if region == model.RegionCN {
		query, variable, concurrency = userRatingQueryCN, "userSlug", userRatingConcCN
	}

	reqs := make([]fetch.Request, len(usernames))
	for i, name := range usernames {
		reqs[i] = graphqlRequest(c.graphqlURL(region), query, map[string]any{variable: name})
	}
	results, err := c.queue.Do(ctx, reqs, concurrency)
	if err != nil {
		return nil, err
	}

	outcomes := make([]UserRatingOutcome, len(usernames))
	for i, res := range results {
		if res == nil {
			continue
		}
		var payload struct {
			Data struct {
				UserContestRanking *UserRanking `json:"userContestRanking"`
			} `json:"data"`
		}
		if err := json.Unmarshal(res.Body, &payload); err != nil {
			return nil, errs.Parse("user ratings", err)
		}
		outcomes[i] = UserRatingOutcome{Fetched: true, Ranking: payload.Data.UserContestRanking}
	}
	return outcomes, nil
}
