package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int                `json:"total"`
	RunsEvaluated int                `json:"runs_evaluated"`
	ByKey         map[string]int     `json:"by_key"`
	AvgScoreByKey map[string]float64 `json:"avg_score_by_key"`
	InFlight      int                `json:"in_flight"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetFeedbackStats(r.Context())
	if err != nil {
		s.logger.Error("get feedback stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		RunsEvaluated: stats.RunsEvaluated,
		ByKey:         stats.CountByKey,
		AvgScoreByKey: stats.AvgScoreByKey,
		InFlight:      s.hook.InFlight(),
	})
}
