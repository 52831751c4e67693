package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/arbiter/internal/model"
	"github.com/seantiz/arbiter/internal/store"
)

// feedbackResponse is the JSON response for GET /v1/runs/:id/feedback.
type feedbackResponse struct {
	RunID    string           `json:"run_id"`
	Feedback []model.Feedback `json:"feedback"`
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the run exists.
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for feedback", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	feedback, err := s.store.ListFeedbackByRun(r.Context(), id)
	if err != nil {
		s.logger.Error("list feedback", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}

	if feedback == nil {
		feedback = []model.Feedback{}
	}

	s.writeJSON(w, http.StatusOK, feedbackResponse{
		RunID:    id,
		Feedback: feedback,
	})
}

// handleStreamFeedback streams feedback for a run as server-sent events
// while its evaluations are in flight. Runs with no in-flight evaluations
// produce an immediately terminated stream; recorded feedback is served by
// the history endpoint instead.
func (s *Server) handleStreamFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Verify the run exists.
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for feedback stream", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe before writing the status line. A run whose evaluations all
	// finished (or that was never dispatched) yields a closed channel, so
	// the loop below terminates immediately with a done event.
	ch, unsub := s.hook.Broker().Subscribe(id)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case fb, ok := <-ch:
			if !ok {
				// All evaluations finished; send explicit done event.
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			payload, err := json.Marshal(fb)
			if err != nil {
				s.logger.Error("encode feedback event", "error", err)
				continue
			}
			if err := writeSSEData(w, string(payload)); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEData writes a payload as an SSE data event.
func writeSSEData(w http.ResponseWriter, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
