package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *[]time.Duration) {
	t.Helper()
	q := NewQueue(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var slept []time.Duration
	var mu sync.Mutex
	q.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	return q, &slept
}

func getReq(url string) Request {
	return Request{Method: http.MethodGet, URL: url}
}

func TestDoReturnsAlignedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	}))
	defer srv.Close()

	q, slept := newTestQueue(t)
	reqs := []Request{
		getReq(srv.URL + "/a"),
		getReq(srv.URL + "/b"),
		getReq(srv.URL + "/c"),
	}
	results, err := q.Do(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "/a", string(results[0].Body))
	assert.Equal(t, "/b", string(results[1].Body))
	assert.Equal(t, "/c", string(results[2].Body))
	assert.Empty(t, *slept, "clean rounds never back off")
}

func TestDoRetriesFailedKeyWithPerRoundBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/flaky" && calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	q, slept := newTestQueue(t)
	results, err := q.Do(context.Background(), []Request{
		getReq(srv.URL + "/steady"),
		getReq(srv.URL + "/flaky"),
	}, 5)
	require.NoError(t, err)

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, "ok", string(results[1].Body))

	// One key failed in each of the first two rounds, so each retry round
	// waits exactly one second.
	require.Len(t, *slept, 2)
	assert.Equal(t, time.Second, (*slept)[0])
	assert.Equal(t, time.Second, (*slept)[1])
}

func TestDoBackoffScalesWithRoundFailures(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		first := !seen[r.URL.Path]
		seen[r.URL.Path] = true
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	q, slept := newTestQueue(t)
	results, err := q.Do(context.Background(), []Request{
		getReq(srv.URL + "/a"),
		getReq(srv.URL + "/b"),
	}, 5)
	require.NoError(t, err)
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])

	// Both keys failed the first round, so the single retry round waits
	// two seconds.
	require.Len(t, *slept, 1)
	assert.Equal(t, 2*time.Second, (*slept)[0])
}

func TestDoGivesUpAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dead" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	results, err := q.Do(context.Background(), []Request{
		getReq(srv.URL + "/dead"),
		getReq(srv.URL + "/ok"),
	}, 5)
	require.NoError(t, err)

	assert.Nil(t, results[0], "exhausted key yields nil result")
	require.NotNil(t, results[1])
	assert.Equal(t, "ok", string(results[1].Body))
}

func TestDoBoundsInFlightRequests(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	reqs := make([]Request, 12)
	for i := range reqs {
		reqs[i] = getReq(fmt.Sprintf("%s/%d", srv.URL, i))
	}
	_, err := q.Do(context.Background(), reqs, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDoHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q := NewQueue(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	q.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := q.Do(ctx, []Request{getReq(srv.URL + "/x")}, 1)
	require.Error(t, err)
}

func TestDoSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s|%s|%s", r.Method, r.Header.Get("Content-Type"), body)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	results, err := q.Do(context.Background(), []Request{{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(`{"query":"x"}`),
	}}, 1)
	require.NoError(t, err)
	assert.Equal(t, `POST|application/json|{"query":"x"}`, string(results[0].Body))
}
