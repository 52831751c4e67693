package api

import (
	"encoding/json"
	"net/http"
)

// healthResponse reports liveness plus a snapshot of the evaluation side:
// how many evaluators the suite dispatches to and how many tasks are in
// flight right now.
type healthResponse struct {
	Status     string `json:"status"`
	Evaluators int    `json:"evaluators"`
	InFlight   int    `json:"in_flight"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := healthResponse{
		Status:     "ok",
		Evaluators: len(s.hook.Kinds()),
		InFlight:   s.hook.InFlight(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
