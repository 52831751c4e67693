package evaluator_test

import (
	"context"
	"testing"

	"github.com/seantiz/arbiter/internal/evaluator"
	"github.com/seantiz/arbiter/internal/model"
)

// stubEvaluator is a minimal Evaluator for registry tests.
type stubEvaluator struct {
	kind string
}

func (s stubEvaluator) Kind() string { return s.kind }

func (s stubEvaluator) Evaluate(_ context.Context, _ *model.Run) (*model.Feedback, error) {
	return &model.Feedback{Key: s.kind}, nil
}

func TestRegistryResolve(t *testing.T) {
	reg := evaluator.NewRegistry()
	reg.Register("stub", func(_ map[string]any) (evaluator.Evaluator, error) {
		return stubEvaluator{kind: "stub"}, nil
	})

	ev, err := reg.Resolve("stub", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ev.Kind() != "stub" {
		t.Errorf("Kind() = %q, want %q", ev.Kind(), "stub")
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg := evaluator.NewRegistry()

	if _, err := reg.Resolve("nope", nil); err == nil {
		t.Error("Resolve of unregistered kind should fail")
	}
}

func TestRegistryKindsSorted(t *testing.T) {
	reg := evaluator.NewRegistry()
	for _, k := range []string{"zeta", "alpha", "mid"} {
		kind := k
		reg.Register(kind, func(_ map[string]any) (evaluator.Evaluator, error) {
			return stubEvaluator{kind: kind}, nil
		})
	}

	kinds := reg.Kinds()
	want := []string{"alpha", "mid", "zeta"}
	if len(kinds) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Kinds()[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	reg := evaluator.DefaultRegistry()

	for _, kind := range []string{
		evaluator.KindRunSuccess,
		evaluator.KindLatency,
		evaluator.KindOutputMatch,
	} {
		found := false
		for _, k := range reg.Kinds() {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("DefaultRegistry missing %q", kind)
		}
	}
}
