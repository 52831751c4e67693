// Package hook implements the run-completion hook: completed runs are fanned
// out to the configured evaluators on a bounded worker pool, with per-task
// failure isolation and an explicit join over in-flight work.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/arbiter/internal/evaluator"
	"github.com/seantiz/arbiter/internal/model"
	"github.com/seantiz/arbiter/internal/sink"
)

// evalTag marks feedback produced under a project override.
const evalTag = "eval"

// Task is the in-flight handle for one (run, evaluator) evaluation.
type Task struct {
	RunID         string
	EvaluatorKind string

	done chan struct{}
	err  error
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's failure, if any. Valid only after Done is closed.
func (t *Task) Err() error { return t.err }

// Hook dispatches persisted runs to evaluators. The evaluator sequence and
// configuration are immutable after construction; the in-flight task set is
// the only shared mutable state and is guarded by mu.
type Hook struct {
	client     sink.Client
	evaluators []evaluator.Evaluator
	logger     *slog.Logger
	broker     *Broker

	exampleID      string
	skipUnfinished bool
	projectName    string

	// sem bounds the number of concurrently executing evaluations.
	// Admission happens inside the task goroutine so that submission
	// never blocks on a saturated pool.
	sem chan struct{}

	mu      sync.Mutex
	tasks   map[*Task]struct{}
	pending map[string]int // outstanding tasks per run, drives broker close
}

// Option configures a Hook.
type Option func(*options)

type options struct {
	maxWorkers     int
	exampleID      string
	skipUnfinished bool
	projectName    string
	logger         *slog.Logger
}

// WithMaxWorkers overrides the worker pool size. Defaults to the number of
// configured evaluators, minimum 1.
func WithMaxWorkers(n int) Option {
	return func(o *options) { o.maxWorkers = n }
}

// WithExampleID associates dispatched runs with a reference example. The ID
// must be a valid ULID.
func WithExampleID(id string) Option {
	return func(o *options) { o.exampleID = id }
}

// WithSkipUnfinished controls whether runs without outputs are skipped.
// Defaults to true.
func WithSkipUnfinished(skip bool) Option {
	return func(o *options) { o.skipUnfinished = skip }
}

// WithProjectName redirects eval-time feedback to an alternate project.
func WithProjectName(name string) Option {
	return func(o *options) { o.projectName = name }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a hook that dispatches runs to the given evaluators through the
// given sink client. The client is required: every task calls it, so a nil
// client would only surface later as a panic on a worker goroutine.
func New(client sink.Client, evaluators []evaluator.Evaluator, opts ...Option) (*Hook, error) {
	if client == nil {
		return nil, errors.New("sink client is required")
	}

	o := options{skipUnfinished: true}
	for _, opt := range opts {
		opt(&o)
	}

	exampleID := ""
	if o.exampleID != "" {
		parsed, err := model.ParseID(o.exampleID)
		if err != nil {
			return nil, fmt.Errorf("parse example id %q: %w", o.exampleID, err)
		}
		exampleID = parsed
	}

	workers := o.maxWorkers
	if workers <= 0 {
		workers = len(evaluators)
	}
	if workers < 1 {
		workers = 1
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hook{
		client:         client,
		evaluators:     evaluators,
		logger:         logger,
		broker:         NewBroker(),
		exampleID:      exampleID,
		skipUnfinished: o.skipUnfinished,
		projectName:    o.projectName,
		sem:            make(chan struct{}, workers),
		tasks:          make(map[*Task]struct{}),
		pending:        make(map[string]int),
	}, nil
}

// Broker returns the hook's feedback broker for live subscription.
func (h *Hook) Broker() *Broker { return h.broker }

// Kinds returns the configured evaluator kinds in dispatch order.
func (h *Hook) Kinds() []string {
	kinds := make([]string, len(h.evaluators))
	for i, ev := range h.evaluators {
		kinds[i] = ev.Kind()
	}
	return kinds
}

// InFlight returns the number of tasks currently tracked.
func (h *Hook) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

// OnRunPersisted submits a run for evaluation. Unfinished runs are skipped
// when the skip-unfinished policy is active. Eligible runs produce one task
// per configured evaluator; each task operates on a shallow copy of the run
// carrying the configured reference example ID, so the caller's run is never
// mutated. The call returns as soon as all tasks are enqueued; it never
// waits for evaluation itself.
func (h *Hook) OnRunPersisted(run *model.Run) {
	if h.skipUnfinished && !run.Finished() {
		h.logger.Debug("skipping unfinished run", "run_id", run.ID)
		runsSkippedTotal.Inc()
		return
	}
	if len(h.evaluators) == 0 {
		return
	}

	c := run.Copy()
	c.ReferenceExampleID = h.exampleID

	h.broker.Open(c.ID)

	h.mu.Lock()
	h.pending[c.ID] += len(h.evaluators)
	for _, ev := range h.evaluators {
		t := &Task{
			RunID:         c.ID,
			EvaluatorKind: ev.Kind(),
			done:          make(chan struct{}),
		}
		h.tasks[t] = struct{}{}
		inflightTasks.Inc()
		go h.runTask(t, c, ev)
	}
	h.mu.Unlock()
}

// WaitForAll blocks until every task tracked at the moment of the call has
// reached a terminal state, then drops those tasks from the registry. Tasks
// submitted while waiting are not waited on; removal of tasks already gone
// is a no-op. Safe to call repeatedly and concurrently with submissions.
//
// WaitForAll must not be called from an evaluator or sink client running on
// the pool: with the pool saturated the waiter would be waiting on itself.
func (h *Hook) WaitForAll() {
	h.mu.Lock()
	snapshot := make([]*Task, 0, len(h.tasks))
	for t := range h.tasks {
		snapshot = append(snapshot, t)
	}
	h.mu.Unlock()

	for _, t := range snapshot {
		<-t.done
	}

	h.mu.Lock()
	for _, t := range snapshot {
		delete(h.tasks, t)
	}
	h.mu.Unlock()
}

// runTask executes one evaluation on the pool and retires the task handle.
func (h *Hook) runTask(t *Task, run *model.Run, ev evaluator.Evaluator) {
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	start := time.Now()
	fb, err := h.evaluateInProject(run, ev)
	evaluationDuration.WithLabelValues(t.EvaluatorKind).Observe(time.Since(start).Seconds())

	if err != nil {
		h.logger.Error("run evaluation failed",
			"run_id", t.RunID,
			"evaluator", t.EvaluatorKind,
			"error", err,
		)
		evaluationsTotal.WithLabelValues(t.EvaluatorKind, statusFailed).Inc()
	} else {
		evaluationsTotal.WithLabelValues(t.EvaluatorKind, statusCompleted).Inc()
		h.broker.Publish(t.RunID, fb)
	}

	t.err = err

	h.mu.Lock()
	delete(h.tasks, t)
	inflightTasks.Dec()
	h.pending[t.RunID]--
	last := h.pending[t.RunID] <= 0
	if last {
		delete(h.pending, t.RunID)
	}
	h.mu.Unlock()

	close(t.done)
	if last {
		h.broker.Close(t.RunID)
	}
}

// evaluateInProject invokes the sink for one (run, evaluator) pair. When a
// project override is configured the call happens under a reporting scope
// carrying the override and the eval tag; otherwise the sink is called with
// no scope. The call is made exactly once either way.
func (h *Hook) evaluateInProject(run *model.Run, ev evaluator.Evaluator) (*model.Feedback, error) {
	ctx := context.Background()
	if h.projectName != "" {
		ctx = sink.WithScope(ctx, sink.Scope{
			Project: h.projectName,
			Tags:    []string{evalTag},
		})
	}
	return h.client.EvaluateRun(ctx, run, ev)
}
