package api

import "net/http"

// evaluatorsResponse is the JSON response for GET /v1/evaluators.
type evaluatorsResponse struct {
	Evaluators []string `json:"evaluators"`
}

func (s *Server) handleListEvaluators(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, evaluatorsResponse{
		Evaluators: s.hook.Kinds(),
	})
}
