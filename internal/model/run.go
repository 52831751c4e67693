package model

import "time"

// Run type constants. RunType is informational only; the dispatcher treats
// all run types identically.
const (
	RunTypeChain = "chain"
	RunTypeLLM   = "llm"
	RunTypeTool  = "tool"
)

// Run represents a completed unit of traced work submitted for evaluation.
// Runs are created and populated by the external tracing side; arbiter only
// reads them and never mutates a run it was handed.
type Run struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	RunType            string         `json:"run_type"`
	SessionName        string         `json:"session_name,omitempty"`
	Inputs             map[string]any `json:"inputs,omitempty"`
	Outputs            map[string]any `json:"outputs,omitempty"`
	Error              string         `json:"error,omitempty"`
	Tags               []string       `json:"tags,omitempty"`
	ReferenceExampleID string         `json:"reference_example_id,omitempty"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	EndedAt            *time.Time     `json:"ended_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Finished reports whether the run completed and produced outputs.
func (r *Run) Finished() bool {
	return len(r.Outputs) > 0
}

// Copy returns a shallow copy of the run. Map and slice fields are shared
// with the original; scalar fields (such as ReferenceExampleID) may be set
// on the copy without affecting the original.
func (r *Run) Copy() *Run {
	c := *r
	return &c
}
