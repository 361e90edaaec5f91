// Package api serves the read-only query surface over the persisted
// contest state. It never writes; the scheduler and handlers own all
// mutation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/baoliay2008/lccn-predictor/internal/config"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

const (
	// POST query responses are cached briefly: browser extensions poll the
	// same user sets every page load while the underlying snapshot only
	// changes when a pipeline stage completes.
	cacheSize = 1024
	cacheTTL  = 60 * time.Second

	shutdownTimeout = 10 * time.Second
)

// Server is the read API over the repositories.
type Server struct {
	logger *slog.Logger
	repos  *repo.Repos
	addr   string
	router chi.Router

	postCache *expirable.LRU[string, []byte]
}

// New wires the routes. The server is not listening yet; call Serve.
func New(logger *slog.Logger, repos *repo.Repos, cfg config.APIConfig) *Server {
	s := &Server{
		logger:    logger,
		repos:     repos,
		addr:      cfg.Addr,
		postCache: expirable.NewLRU[string, []byte](cacheSize, nil, cacheTTL),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/contests", func(r chi.Router) {
			r.Get("/", s.listContests)
			r.Get("/count", s.countContests)
			r.Get("/user-num-last-ten", s.contestUserNums)
		})
		r.Route("/contest-records", func(r chi.Router) {
			r.Get("/", s.listRecords)
			r.Get("/count", s.countRecords)
			r.Get("/user", s.recordsOfUser)
			r.Post("/predicted-rating", s.cached(s.predictedRating))
			r.Post("/real-time-rank", s.cached(s.realTimeRank))
		})
		r.Post("/questions", s.questions)
	})

	// Third-party clients still call the pre-v1 route; keep redirecting.
	r.Post("/predict_records", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/api/v1/contest-records/predicted-rating",
			http.StatusTemporaryRedirect)
	})

	s.router = r
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response write failed", slog.String("error", err.Error()))
	}
}

// writeError mirrors the {"detail": ...} error shape clients already parse.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// checkContestName rejects queries against contests the store has never
// seen, writing a 400 itself. The bool reports whether to proceed.
func (s *Server) checkContestName(w http.ResponseWriter, r *http.Request, contestName string) bool {
	if contestName == "" {
		s.writeError(w, http.StatusBadRequest, "contest_name is required")
		return false
	}
	c, err := s.repos.Contest.Get(r.Context(), contestName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if c == nil {
		s.writeError(w, http.StatusBadRequest, "contest not found for contest_name="+contestName)
		return false
	}
	return true
}
