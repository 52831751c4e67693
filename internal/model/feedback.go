package model

import "time"

// Feedback is a single evaluator verdict recorded against a run.
type Feedback struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Key       string    `json:"key"`
	Score     *float64  `json:"score,omitempty"`
	Value     string    `json:"value,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Project   string    `json:"project,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
