package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/baoliay2008/lccn-predictor/internal/model"
)

// intQuery parses a bounded integer query parameter, falling back to def
// when absent. A second return of false means the value was rejected and a
// 400 already written.
func (s *Server) intQuery(w http.ResponseWriter, r *http.Request, name string, def, min, max int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < min || (max > 0 && v > max) {
		s.writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func boolQuery(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// listContests returns contests newest first. Without archived=true only
// contests whose prediction has completed are listed.
func (s *Server) listContests(w http.ResponseWriter, r *http.Request) {
	skip, ok := s.intQuery(w, r, "skip", 0, 0, 0)
	if !ok {
		return
	}
	limit, ok := s.intQuery(w, r, "limit", 10, 1, 25)
	if !ok {
		return
	}

	contests, err := s.repos.Contest.List(r.Context(), !boolQuery(r, "archived"), skip, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if contests == nil {
		contests = []model.Contest{}
	}
	s.writeJSON(w, http.StatusOK, contests)
}

func (s *Server) countContests(w http.ResponseWriter, r *http.Request) {
	n, err := s.repos.Contest.Count(r.Context(), !boolQuery(r, "archived"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

type contestUserNumRow struct {
	TitleSlug string    `json:"titleSlug"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	UserNumUS *int      `json:"user_num_us"`
	UserNumCN *int      `json:"user_num_cn"`
}

// contestUserNums serves the participant counts of the last ten contests
// that have counts from both regions.
func (s *Server) contestUserNums(w http.ResponseWriter, r *http.Request) {
	contests, err := s.repos.Contest.LastUserNums(r.Context(), 10)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows := make([]contestUserNumRow, len(contests))
	for i, c := range contests {
		rows[i] = contestUserNumRow{
			TitleSlug: c.TitleSlug,
			Title:     c.Title,
			StartTime: c.StartTime,
			UserNumUS: c.UserNumUS,
			UserNumCN: c.UserNumCN,
		}
	}
	s.writeJSON(w, http.StatusOK, rows)
}
