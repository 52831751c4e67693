package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EvaluatorSpec selects a registered evaluator kind with its parameters.
type EvaluatorSpec struct {
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Suite is the YAML-defined evaluation suite: which evaluators run against
// incoming runs and how dispatch behaves.
type Suite struct {
	Evaluators     []EvaluatorSpec `yaml:"evaluators"`
	MaxWorkers     int             `yaml:"max_workers"`
	ProjectName    string          `yaml:"project_name"`
	ExampleID      string          `yaml:"example_id"`
	SkipUnfinished *bool           `yaml:"skip_unfinished"`
}

// LoadSuite reads and validates a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse suite file: %w", err)
	}

	if len(s.Evaluators) == 0 {
		return nil, fmt.Errorf("suite %s: at least one evaluator is required", path)
	}
	for i, spec := range s.Evaluators {
		if spec.Kind == "" {
			return nil, fmt.Errorf("suite %s: evaluator %d has no kind", path, i)
		}
	}
	if s.MaxWorkers < 0 {
		return nil, fmt.Errorf("suite %s: max_workers must not be negative", path)
	}

	return &s, nil
}

// SkipUnfinishedOrDefault returns the skip-unfinished policy, defaulting to
// true when the suite does not set it.
func (s *Suite) SkipUnfinishedOrDefault() bool {
	if s.SkipUnfinished == nil {
		return true
	}
	return *s.SkipUnfinished
}
