package hook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/arbiter/internal/evaluator"
	"github.com/seantiz/arbiter/internal/hook"
	"github.com/seantiz/arbiter/internal/model"
	"github.com/seantiz/arbiter/internal/sink"
)

// capturedCall records one sink invocation with its scope, for assertions.
type capturedCall struct {
	runID   string
	refID   string
	kind    string
	scoped  bool
	project string
	tags    []string
}

// captureClient is a sink.Client that records calls and delegates to the
// evaluator.
type captureClient struct {
	mu    sync.Mutex
	calls []capturedCall
}

func (c *captureClient) EvaluateRun(ctx context.Context, run *model.Run, ev evaluator.Evaluator) (*model.Feedback, error) {
	call := capturedCall{runID: run.ID, refID: run.ReferenceExampleID, kind: ev.Kind()}
	if sc, ok := sink.ScopeFrom(ctx); ok {
		call.scoped = true
		call.project = sc.Project
		call.tags = sc.Tags
	}

	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()

	return ev.Evaluate(ctx, run)
}

func (c *captureClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *captureClient) callsFor(kind string) []capturedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedCall
	for _, call := range c.calls {
		if call.kind == kind {
			out = append(out, call)
		}
	}
	return out
}

// blockingEvaluator holds every Evaluate call until release is closed.
type blockingEvaluator struct {
	kind    string
	release chan struct{}
	err     error

	calls atomic.Int32
	seen  sync.Map // run ID -> *model.Run
}

func (e *blockingEvaluator) Kind() string { return e.kind }

func (e *blockingEvaluator) Evaluate(_ context.Context, run *model.Run) (*model.Feedback, error) {
	e.calls.Add(1)
	e.seen.Store(run.ID, run)
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return nil, e.err
	}
	return &model.Feedback{Key: e.kind, Score: ptr(1.0)}, nil
}

func ptr(f float64) *float64 { return &f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func makeFinishedRun() *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		Name:      "generate",
		RunType:   model.RunTypeChain,
		Outputs:   map[string]any{"text": "hello"},
		CreatedAt: time.Now().UTC(),
	}
}

func newHook(t *testing.T, client sink.Client, evs []evaluator.Evaluator, opts ...hook.Option) *hook.Hook {
	t.Helper()
	opts = append(opts, hook.WithLogger(testLogger()))
	h, err := hook.New(client, evs, opts...)
	if err != nil {
		t.Fatalf("hook.New: %v", err)
	}
	return h
}

// waitForInFlight polls until the registry holds want tasks.
func waitForInFlight(t *testing.T, h *hook.Hook, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.InFlight() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("in-flight = %d, want %d within %v", h.InFlight(), want, timeout)
}

func TestSkipUnfinishedRun(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev})

	h.OnRunPersisted(&model.Run{ID: model.NewID(), Name: "pending"})

	if got := h.InFlight(); got != 0 {
		t.Errorf("in-flight = %d, want 0", got)
	}
	h.WaitForAll()
	if client.callCount() != 0 {
		t.Errorf("sink calls = %d, want 0", client.callCount())
	}
}

func TestSkipUnfinishedDisabled(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev}, hook.WithSkipUnfinished(false))

	h.OnRunPersisted(&model.Run{ID: model.NewID(), Name: "pending"})
	h.WaitForAll()

	if client.callCount() != 1 {
		t.Errorf("sink calls = %d, want 1", client.callCount())
	}
}

func TestDispatchOneTaskPerEvaluator(t *testing.T) {
	client := &captureClient{}
	release := make(chan struct{})
	evA := &blockingEvaluator{kind: "a", release: release}
	evB := &blockingEvaluator{kind: "b", release: release}
	h := newHook(t, client, []evaluator.Evaluator{evA, evB})

	h.OnRunPersisted(makeFinishedRun())
	waitForInFlight(t, h, 2, time.Second)

	close(release)
	h.WaitForAll()

	if got := h.InFlight(); got != 0 {
		t.Errorf("in-flight after join = %d, want 0", got)
	}
	if got := evA.calls.Load(); got != 1 {
		t.Errorf("evaluator a calls = %d, want 1", got)
	}
	if got := evB.calls.Load(); got != 1 {
		t.Errorf("evaluator b calls = %d, want 1", got)
	}
}

func TestOriginalRunNotMutated(t *testing.T) {
	exampleID := model.NewID()
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev}, hook.WithExampleID(exampleID))

	run := makeFinishedRun()
	h.OnRunPersisted(run)
	h.WaitForAll()

	if run.ReferenceExampleID != "" {
		t.Errorf("original ReferenceExampleID = %q, want empty", run.ReferenceExampleID)
	}

	calls := client.callsFor("a")
	if len(calls) != 1 {
		t.Fatalf("sink calls = %d, want 1", len(calls))
	}
	if calls[0].refID != exampleID {
		t.Errorf("dispatched copy ReferenceExampleID = %q, want %q", calls[0].refID, exampleID)
	}
}

func TestEvaluatorSeesCopyNotOriginal(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev})

	run := makeFinishedRun()
	h.OnRunPersisted(run)
	h.WaitForAll()

	raw, ok := ev.seen.Load(run.ID)
	if !ok {
		t.Fatal("evaluator never saw the run")
	}
	seen := raw.(*model.Run)
	if seen == run {
		t.Error("evaluator received the original run, want a copy")
	}
	if seen.ID != run.ID {
		t.Errorf("copy ID = %q, want %q", seen.ID, run.ID)
	}
}

func TestFailureIsolation(t *testing.T) {
	client := &captureClient{}
	evA := &blockingEvaluator{kind: "a", err: errors.New("scoring backend down")}
	evB := &blockingEvaluator{kind: "b"}
	h := newHook(t, client, []evaluator.Evaluator{evA, evB})

	h.OnRunPersisted(makeFinishedRun())
	h.WaitForAll()

	if got := h.InFlight(); got != 0 {
		t.Errorf("in-flight after join = %d, want 0", got)
	}
	if got := evA.calls.Load(); got != 1 {
		t.Errorf("failing evaluator calls = %d, want 1", got)
	}
	if got := evB.calls.Load(); got != 1 {
		t.Errorf("succeeding evaluator calls = %d, want 1", got)
	}
}

func TestFailureDoesNotBlockOtherRuns(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a", err: errors.New("always fails")}
	h := newHook(t, client, []evaluator.Evaluator{ev})

	h.OnRunPersisted(makeFinishedRun())
	h.OnRunPersisted(makeFinishedRun())
	h.WaitForAll()

	if got := ev.calls.Load(); got != 2 {
		t.Errorf("evaluator calls = %d, want 2", got)
	}
}

func TestWaitForAllEmptyRegistry(t *testing.T) {
	client := &captureClient{}
	h := newHook(t, client, []evaluator.Evaluator{&blockingEvaluator{kind: "a"}})

	done := make(chan struct{})
	go func() {
		h.WaitForAll()
		h.WaitForAll() // repeat calls are safe
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForAll on empty registry did not return")
	}
}

func TestWaitForAllConcurrent(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.OnRunPersisted(makeFinishedRun())
				h.WaitForAll()
			}
		}()
	}
	wg.Wait()

	h.WaitForAll()
	if got := h.InFlight(); got != 0 {
		t.Errorf("in-flight after final join = %d, want 0", got)
	}
	if got := ev.calls.Load(); got != 40 {
		t.Errorf("evaluator calls = %d, want 40", got)
	}
}

func TestProjectScope(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev}, hook.WithProjectName("eval-project"))

	h.OnRunPersisted(makeFinishedRun())
	h.WaitForAll()

	calls := client.callsFor("a")
	if len(calls) != 1 {
		t.Fatalf("sink calls = %d, want 1", len(calls))
	}
	if !calls[0].scoped {
		t.Fatal("sink call was not scoped")
	}
	if calls[0].project != "eval-project" {
		t.Errorf("scope project = %q, want eval-project", calls[0].project)
	}
	if len(calls[0].tags) != 1 || calls[0].tags[0] != "eval" {
		t.Errorf("scope tags = %v, want [eval]", calls[0].tags)
	}
}

func TestNoProjectScopeByDefault(t *testing.T) {
	client := &captureClient{}
	ev := &blockingEvaluator{kind: "a"}
	h := newHook(t, client, []evaluator.Evaluator{ev})

	h.OnRunPersisted(makeFinishedRun())
	h.WaitForAll()

	calls := client.callsFor("a")
	if len(calls) != 1 {
		t.Fatalf("sink calls = %d, want 1", len(calls))
	}
	if calls[0].scoped {
		t.Error("sink call was scoped, want unscoped")
	}
}

// concurrencyProbe counts the maximum number of simultaneous Evaluate calls.
type concurrencyProbe struct {
	kind    string
	current atomic.Int32
	max     atomic.Int32
}

func (p *concurrencyProbe) Kind() string { return p.kind }

func (p *concurrencyProbe) Evaluate(_ context.Context, _ *model.Run) (*model.Feedback, error) {
	cur := p.current.Add(1)
	for {
		prev := p.max.Load()
		if cur <= prev || p.max.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	p.current.Add(-1)
	return &model.Feedback{Key: p.kind}, nil
}

func TestMaxWorkersBoundsConcurrency(t *testing.T) {
	client := &captureClient{}
	probe := &concurrencyProbe{kind: "probe"}
	h := newHook(t, client, []evaluator.Evaluator{probe}, hook.WithMaxWorkers(1))

	for i := 0; i < 8; i++ {
		h.OnRunPersisted(makeFinishedRun())
	}
	h.WaitForAll()

	if got := probe.max.Load(); got > 1 {
		t.Errorf("max concurrent evaluations = %d, want <= 1", got)
	}
}

func TestSubmissionDoesNotBlockOnSaturatedPool(t *testing.T) {
	client := &captureClient{}
	release := make(chan struct{})
	ev := &blockingEvaluator{kind: "a", release: release}
	h := newHook(t, client, []evaluator.Evaluator{ev}, hook.WithMaxWorkers(1))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 16; i++ {
			h.OnRunPersisted(makeFinishedRun())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submission blocked on saturated pool")
	}

	close(release)
	h.WaitForAll()
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := hook.New(nil, []evaluator.Evaluator{&blockingEvaluator{kind: "a"}})
	if err == nil {
		t.Error("New with nil client should fail")
	}
}

func TestNewRejectsInvalidExampleID(t *testing.T) {
	_, err := hook.New(&captureClient{}, nil, hook.WithExampleID("not-a-ulid"))
	if err == nil {
		t.Error("New with invalid example ID should fail")
	}
}

func TestKindsOrder(t *testing.T) {
	client := &captureClient{}
	h := newHook(t, client, []evaluator.Evaluator{
		&blockingEvaluator{kind: "zeta"},
		&blockingEvaluator{kind: "alpha"},
	})

	kinds := h.Kinds()
	if len(kinds) != 2 || kinds[0] != "zeta" || kinds[1] != "alpha" {
		t.Errorf("Kinds() = %v, want [zeta alpha] in dispatch order", kinds)
	}
}

func TestTwoEvaluatorScenario(t *testing.T) {
	client := &captureClient{}
	release := make(chan struct{})
	evA := &blockingEvaluator{kind: "a", release: release}
	evB := &blockingEvaluator{kind: "b", release: release}
	h := newHook(t, client, []evaluator.Evaluator{evA, evB})

	run := makeFinishedRun()
	h.OnRunPersisted(run)
	waitForInFlight(t, h, 2, time.Second)

	close(release)
	h.WaitForAll()

	if got := h.InFlight(); got != 0 {
		t.Errorf("in-flight after join = %d, want 0", got)
	}
	for _, ev := range []*blockingEvaluator{evA, evB} {
		if got := ev.calls.Load(); got != 1 {
			t.Errorf("evaluator %s calls = %d, want 1", ev.kind, got)
		}
		raw, ok := ev.seen.Load(run.ID)
		if !ok {
			t.Fatalf("evaluator %s never saw run %s", ev.kind, run.ID)
		}
		if raw.(*model.Run) == run {
			t.Errorf("evaluator %s received the original run, want a copy", ev.kind)
		}
	}
}
