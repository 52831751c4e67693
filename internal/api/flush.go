package api

import "net/http"

// flushResponse is the JSON response for POST /v1/flush.
type flushResponse struct {
	Status string `json:"status"`
}

// handleFlush blocks until every evaluation in flight at the time of the
// call has finished. Evaluations submitted while flushing are not waited on.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.hook.WaitForAll()
	s.writeJSON(w, http.StatusOK, flushResponse{Status: "drained"})
}
