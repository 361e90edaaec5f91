// Package fetch issues batches of HTTP requests in bounded rounds with a
// shared backoff sized by the previous round's failure count. Keys that
// keep failing are retried across rounds until a per-key budget runs out;
// the whole batch slows down together when the upstream pushes back.
package fetch

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/baoliay2008/lccn-predictor/internal/errs"
)

const (
	// RetryBudget is the per-key attempt limit before the key is given up.
	RetryBudget = 10

	// RequestTimeout bounds a single HTTP exchange.
	RequestTimeout = 60 * time.Second
)

// Request describes one HTTP exchange in a batch.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Result is a successful (2xx) response body.
type Result struct {
	StatusCode int
	Body       []byte
}

// Queue issues request batches. A Queue is safe for concurrent use; each
// Do call runs its own rounds with its own backoff state.
type Queue struct {
	client *http.Client
	logger *slog.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Queue.
type Option func(*Queue)

// WithSleep replaces the backoff sleep; tests use it to skip real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) {
		q.sleep = fn
	}
}

// NewQueue builds a Queue with the standard per-request timeout.
func NewQueue(logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		client: &http.Client{Timeout: RequestTimeout},
		logger: logger,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Do issues reqs with at most concurrency in flight per round and returns
// results aligned by index. Keys whose retry budget ran out get a nil
// result. Do returns an error only when ctx is cancelled; individual
// request failures are absorbed by the retry rounds.
func (q *Queue) Do(ctx context.Context, reqs []Request, concurrency int) ([]*Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*Result, len(reqs))
	attempts := make([]int, len(reqs))

	pending := list.New()
	for i := range reqs {
		pending.PushBack(i)
	}

	waitTime := 0
	for pending.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return results, errs.Transient("fetch rounds", err)
		}

		var batch []int
		for len(batch) < concurrency && pending.Len() > 0 {
			front := pending.Front()
			pending.Remove(front)
			idx := front.Value.(int)
			if attempts[idx] >= RetryBudget {
				q.logger.Warn("request gave up",
					slog.String("url", reqs[idx].URL),
					slog.Int("attempts", attempts[idx]))
				continue
			}
			batch = append(batch, idx)
		}
		if len(batch) == 0 {
			break
		}

		if waitTime > 0 {
			q.logger.Debug("backing off before round", slog.Int("seconds", waitTime))
			if err := q.sleep(ctx, time.Duration(waitTime)*time.Second); err != nil {
				return results, errs.Transient("fetch backoff", err)
			}
		}

		outcomes := make([]*Result, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for bi, idx := range batch {
			bi, idx := bi, idx
			g.Go(func() error {
				res, err := q.do(gctx, reqs[idx])
				if err != nil {
					q.logger.Debug("request failed",
						slog.String("url", reqs[idx].URL),
						slog.String("error", err.Error()))
					return nil
				}
				outcomes[bi] = res
				return nil
			})
		}
		_ = g.Wait()

		// The wait carries only the previous round's failure count.
		waitTime = 0
		for bi, idx := range batch {
			if outcomes[bi] != nil {
				results[idx] = outcomes[bi]
				continue
			}
			attempts[idx]++
			waitTime++
			pending.PushBack(idx)
		}
	}

	return results, nil
}

// do performs one HTTP exchange and treats any non-2xx status as a failure.
func (q *Queue) do(ctx context.Context, r Request) (*Result, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, errs.Permanent("build request", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, errs.Transient("http request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient("read response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Transient("http status", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return &Result{StatusCode: resp.StatusCode, Body: data}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
