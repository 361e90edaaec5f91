package api

import (
	"bytes"
	"io"
	"net/http"
)

// bufferedWriter captures a handler's response so it can be cached.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) { b.status = status }

func (b *bufferedWriter) Write(p []byte) (int, error) { return b.body.Write(p) }

// cached memoizes successful POST responses keyed by path and body for the
// LRU's TTL. Error responses pass through uncached.
func (s *Server) cached(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		key := r.URL.Path + "\x00" + string(body)

		if cachedBody, ok := s.postCache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cachedBody)
			return
		}

		buf := newBufferedWriter()
		next(buf, r)

		for k, vs := range buf.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(buf.status)
		_, _ = w.Write(buf.body.Bytes())

		if buf.status == http.StatusOK {
			s.postCache.Add(key, buf.body.Bytes())
		}
	}
}
