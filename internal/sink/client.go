package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/arbiter/internal/evaluator"
	"github.com/seantiz/arbiter/internal/model"
	"github.com/seantiz/arbiter/internal/store"
)

// Client evaluates a run with one evaluator and records the resulting
// feedback.
type Client interface {
	EvaluateRun(ctx context.Context, run *model.Run, ev evaluator.Evaluator) (*model.Feedback, error)
}

// Compile-time interface satisfaction check.
var _ Client = (*RecordingClient)(nil)

// RecordingClient is the default Client. It invokes the evaluator, stamps
// identity and attribution fields on the feedback, and persists it to the
// store. When a reporting scope is carried on the context, feedback is
// attributed to the scope's project and tagged with the scope's tags;
// otherwise it is attributed to the run's own session.
type RecordingClient struct {
	store  store.Store
	logger *slog.Logger
}

// NewRecordingClient creates a recording client backed by the given store.
func NewRecordingClient(s store.Store, logger *slog.Logger) *RecordingClient {
	return &RecordingClient{store: s, logger: logger}
}

// EvaluateRun runs the evaluator against the run and persists its feedback.
func (c *RecordingClient) EvaluateRun(ctx context.Context, run *model.Run, ev evaluator.Evaluator) (*model.Feedback, error) {
	fb, err := ev.Evaluate(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("evaluator %s: %w", ev.Kind(), err)
	}
	if fb == nil {
		return nil, fmt.Errorf("evaluator %s returned no feedback", ev.Kind())
	}

	fb.ID = model.NewID()
	fb.RunID = run.ID
	if fb.Key == "" {
		fb.Key = ev.Kind()
	}
	fb.CreatedAt = time.Now().UTC()

	if sc, ok := ScopeFrom(ctx); ok {
		fb.Project = sc.Project
		fb.Tags = append(fb.Tags, sc.Tags...)
	} else {
		fb.Project = run.SessionName
	}

	if err := c.store.InsertFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("record feedback: %w", err)
	}

	c.logger.Debug("recorded feedback",
		"run_id", run.ID,
		"key", fb.Key,
		"project", fb.Project,
	)
	return fb, nil
}
