package api

import (
	"encoding/json"
	"net/http"

	"github.com/baoliay2008/lccn-predictor/internal/model"
)

type questionsQuery struct {
	ContestName    string `json:"contest_name"`
	QuestionIDList []int  `json:"question_id_list"`
}

// questions serves a contest's question rows, queried either by contest
// name or by one to four question ids, never both.
func (s *Server) questions(w http.ResponseWriter, r *http.Request) {
	var query questionsQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	byContest := query.ContestName != ""
	byIDs := len(query.QuestionIDList) > 0
	if byContest == byIDs {
		s.writeError(w, http.StatusBadRequest, "contest_name OR question_id_list must be given")
		return
	}

	if byContest {
		if !s.checkContestName(w, r, query.ContestName) {
			return
		}
		rows, err := s.repos.Question.FindByContest(r.Context(), query.ContestName)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows == nil {
			rows = []model.Question{}
		}
		s.writeJSON(w, http.StatusOK, rows)
		return
	}

	if len(query.QuestionIDList) > 4 {
		s.writeError(w, http.StatusBadRequest, "question_id_list must hold 1 to 4 entries")
		return
	}
	rows, err := s.repos.Question.FindByIDs(r.Context(), query.QuestionIDList)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []model.Question{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}
