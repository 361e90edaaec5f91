// Package leetcode adapts the two upstream contest sites behind one typed
// client. All traffic goes through the fetch queue, so per-endpoint
// concurrency caps and the shared retry backoff apply uniformly.
package leetcode

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/fetch"
	"github.com/baoliay2008/lccn-predictor/internal/model"
)

const (
	defaultUSBase = "https://leetcode.com"
	defaultCNBase = "https://leetcode.cn"

	// RankingPageSize is the fixed page size of the ranking endpoint.
	RankingPageSize = 25

	// The CN site rate-limits aggressively; its caps stay near serial.
	rankingConcurrencyUS = 20
	rankingConcurrencyCN = 1
	userRatingConcUS     = 25
	userRatingConcCN     = 4
	pastContestsConc     = 10
)

// Client fetches contest data from both regional sites.
type Client struct {
	queue  *fetch.Queue
	logger *slog.Logger
	usBase string
	cnBase string
}

// Option adjusts a Client; used by tests to point at local fakes.
type Option func(*Client)

// WithBaseURLs overrides the regional site roots.
func WithBaseURLs(us, cn string) Option {
	return func(c *Client) {
		c.usBase = us
		c.cnBase = cn
	}
}

// NewClient builds a Client over the given fetch queue.
func NewClient(queue *fetch.Queue, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		queue:  queue,
		logger: logger,
		usBase: defaultUSBase,
		cnBase: defaultCNBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) baseURL(region model.DataRegion) string {
	if region == model.RegionCN {
		return c.cnBase
	}
	return c.usBase
}

// graphqlURL returns the regional GraphQL endpoint. The CN site serves
// contest queries from a separate Go backend path.
func (c *Client) graphqlURL(region model.DataRegion) string {
	if region == model.RegionCN {
		return c.cnBase + "/graphql/noj-go/"
	}
	return c.usBase + "/graphql/"
}

func graphqlRequest(url, query string, variables map[string]any) fetch.Request {
	payload, _ := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	return fetch.Request{
		Method: http.MethodPost,
		URL:    url,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   payload,
	}
}

// EpochTime decodes upstream epoch-second timestamps, integral or float.
type EpochTime time.Time

// Epoch wraps a time.Time for tests and fakes.
func Epoch(t time.Time) EpochTime {
	return EpochTime(t.UTC())
}

func (e *EpochTime) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*e = EpochTime(time.Unix(int64(v), 0).UTC())
	return nil
}

// Time converts back to time.Time.
func (e EpochTime) Time() time.Time {
	return time.Time(e)
}
