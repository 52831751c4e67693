// Package evaluator defines the evaluator capability applied to completed
// runs, along with a registry of built-in heuristic evaluators that can be
// instantiated from suite configuration.
package evaluator

import (
	"context"

	"github.com/seantiz/arbiter/internal/model"
)

// Evaluator scores a single completed run. Implementations may fail; a
// failure affects only the (run, evaluator) pair it occurred on.
type Evaluator interface {
	// Kind returns the evaluator's declared kind, used for feedback keys
	// and error attribution.
	Kind() string

	// Evaluate produces feedback for the given run. The returned feedback
	// carries the verdict fields (Key, Score, Value, Comment); identity
	// and persistence fields are stamped by the recording client.
	Evaluate(ctx context.Context, run *model.Run) (*model.Feedback, error)
}
