package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/baoliay2008/lccn-predictor/internal/model"
	"github.com/baoliay2008/lccn-predictor/internal/repo"
)

// listRecords returns a contest's scored records sorted by rank, from the
// prediction snapshot by default or from the archive with archived=true.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	contestName := r.URL.Query().Get("contest_name")
	if !s.checkContestName(w, r, contestName) {
		return
	}
	skip, ok := s.intQuery(w, r, "skip", 0, 0, 0)
	if !ok {
		return
	}
	limit, ok := s.intQuery(w, r, "limit", 25, 1, 100)
	if !ok {
		return
	}
	q := repo.RecordQuery{OnlyScored: true, Skip: skip, Limit: limit}

	if boolQuery(r, "archived") {
		rows, err := s.repos.Archive.FindByContest(r.Context(), contestName, q)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows == nil {
			rows = []model.ContestRecordArchive{}
		}
		s.writeJSON(w, http.StatusOK, rows)
		return
	}
	rows, err := s.repos.Predict.FindByContest(r.Context(), contestName, q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []model.ContestRecordPredict{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) countRecords(w http.ResponseWriter, r *http.Request) {
	contestName := r.URL.Query().Get("contest_name")
	if !s.checkContestName(w, r, contestName) {
		return
	}

	var (
		n   int64
		err error
	)
	if boolQuery(r, "archived") {
		n, err = s.repos.Archive.CountByContest(r.Context(), contestName, true)
	} else {
		n, err = s.repos.Predict.CountByContest(r.Context(), contestName, true)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

// recordsOfUser returns one user's scored records in a contest. The
// username matches exactly or lowercased, covering the US handle rename.
func (s *Server) recordsOfUser(w http.ResponseWriter, r *http.Request) {
	contestName := r.URL.Query().Get("contest_name")
	username := r.URL.Query().Get("username")
	if !s.checkContestName(w, r, contestName) {
		return
	}
	if username == "" {
		s.writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if boolQuery(r, "archived") {
		all, err := s.repos.Archive.FindByUser(r.Context(), username)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rows := []model.ContestRecordArchive{}
		for _, row := range all {
			if row.ContestName == contestName && row.Score != 0 {
				rows = append(rows, row)
			}
		}
		s.writeJSON(w, http.StatusOK, rows)
		return
	}
	all, err := s.repos.Predict.FindByUser(r.Context(), username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rows := []model.ContestRecordPredict{}
	for _, row := range all {
		if row.ContestName == contestName && row.Score != 0 {
			rows = append(rows, row)
		}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

const maxPredictedRatingUsers = 26

type predictedRatingQuery struct {
	ContestName string          `json:"contest_name"`
	Users       []model.UserKey `json:"users"`
}

type predictedRatingResult struct {
	OldRating   float64  `json:"old_rating"`
	NewRating   *float64 `json:"new_rating"`
	DeltaRating *float64 `json:"delta_rating"`
}

// predictedRating resolves up to 26 users' predicted deltas in one call.
// A user missing from the snapshot yields null, not an error.
func (s *Server) predictedRating(w http.ResponseWriter, r *http.Request) {
	var query predictedRatingQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(query.Users) == 0 || len(query.Users) > maxPredictedRatingUsers {
		s.writeError(w, http.StatusBadRequest, "users must hold 1 to 26 entries")
		return
	}
	if !s.checkContestName(w, r, query.ContestName) {
		return
	}

	rows, err := s.repos.Predict.FindByKeys(r.Context(), query.ContestName, query.Users)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byKey := make(map[model.UserKey]model.ContestRecordPredict, len(rows))
	for _, row := range rows {
		byKey[row.Key()] = row
	}

	results := make([]*predictedRatingResult, len(query.Users))
	for i, user := range query.Users {
		row, ok := byKey[user]
		if !ok {
			continue
		}
		results[i] = &predictedRatingResult{
			OldRating:   row.OldRating,
			NewRating:   row.NewRating,
			DeltaRating: row.DeltaRating,
		}
	}
	s.writeJSON(w, http.StatusOK, results)
}

type realTimeRankQuery struct {
	ContestName string        `json:"contest_name"`
	User        model.UserKey `json:"user"`
}

// realTimeRank returns one user's minute-resolution rank trajectory.
func (s *Server) realTimeRank(w http.ResponseWriter, r *http.Request) {
	var query realTimeRankQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !s.checkContestName(w, r, query.ContestName) {
		return
	}
	if strings.TrimSpace(query.User.Username) == "" {
		s.writeError(w, http.StatusBadRequest, "user.username is required")
		return
	}

	ranks, err := s.repos.Archive.GetRealTimeRank(r.Context(), query.ContestName, query.User)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"real_time_rank": ranks})
}
