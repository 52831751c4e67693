package evaluator

import (
	"context"
	"fmt"
	"regexp"

	"github.com/seantiz/arbiter/internal/model"
)

// Built-in evaluator kinds.
const (
	KindRunSuccess  = "run_success"
	KindLatency     = "latency"
	KindOutputMatch = "output_match"
)

func score(v float64) *float64 { return &v }

// runSuccess scores 1.0 for runs that completed without an error, 0.0
// otherwise.
type runSuccess struct{}

func newRunSuccess(_ map[string]any) (Evaluator, error) {
	return runSuccess{}, nil
}

func (runSuccess) Kind() string { return KindRunSuccess }

func (runSuccess) Evaluate(_ context.Context, run *model.Run) (*model.Feedback, error) {
	if run.Error != "" {
		return &model.Feedback{
			Key:     KindRunSuccess,
			Score:   score(0),
			Comment: run.Error,
		}, nil
	}
	return &model.Feedback{
		Key:   KindRunSuccess,
		Score: score(1),
	}, nil
}

// latency scores 1.0 for runs that finished within threshold_ms, 0.0
// otherwise. Requires started_at and ended_at timestamps on the run.
type latency struct {
	thresholdMS float64
}

func newLatency(params map[string]any) (Evaluator, error) {
	threshold, ok, err := floatParam(params, "threshold_ms")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("latency: threshold_ms is required")
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("latency: threshold_ms must be positive, got %v", threshold)
	}
	return latency{thresholdMS: threshold}, nil
}

func (latency) Kind() string { return KindLatency }

func (l latency) Evaluate(_ context.Context, run *model.Run) (*model.Feedback, error) {
	if run.StartedAt == nil || run.EndedAt == nil {
		return nil, fmt.Errorf("run %s has no timing information", run.ID)
	}

	elapsedMS := float64(run.EndedAt.Sub(*run.StartedAt).Milliseconds())
	fb := &model.Feedback{
		Key:   KindLatency,
		Value: fmt.Sprintf("%.0fms", elapsedMS),
	}
	if elapsedMS <= l.thresholdMS {
		fb.Score = score(1)
	} else {
		fb.Score = score(0)
		fb.Comment = fmt.Sprintf("exceeded %.0fms threshold", l.thresholdMS)
	}
	return fb, nil
}

// outputMatch scores 1.0 when the configured output field matches the
// configured pattern.
type outputMatch struct {
	field   string
	pattern *regexp.Regexp
}

func newOutputMatch(params map[string]any) (Evaluator, error) {
	pat, ok, err := stringParam(params, "pattern")
	if err != nil {
		return nil, err
	}
	if !ok || pat == "" {
		return nil, fmt.Errorf("output_match: pattern is required")
	}

	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("output_match: compile pattern: %w", err)
	}

	field, ok, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	if !ok || field == "" {
		field = "output"
	}

	return outputMatch{field: field, pattern: re}, nil
}

func (outputMatch) Kind() string { return KindOutputMatch }

func (m outputMatch) Evaluate(_ context.Context, run *model.Run) (*model.Feedback, error) {
	raw, ok := run.Outputs[m.field]
	if !ok {
		return nil, fmt.Errorf("run %s has no output field %q", run.ID, m.field)
	}

	text := fmt.Sprint(raw)
	fb := &model.Feedback{
		Key:   KindOutputMatch,
		Value: m.pattern.String(),
	}
	if m.pattern.MatchString(text) {
		fb.Score = score(1)
	} else {
		fb.Score = score(0)
		fb.Comment = fmt.Sprintf("field %q did not match", m.field)
	}
	return fb, nil
}

// floatParam reads a numeric parameter. YAML decoding produces int or
// float64 depending on how the value was written.
func floatParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q: expected number, got %T", key, raw)
	}
}

// stringParam reads a string parameter.
func stringParam(params map[string]any, key string) (string, bool, error) {
	raw, ok := params[key]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("parameter %q: expected string, got %T", key, raw)
	}
	return s, true, nil
}
