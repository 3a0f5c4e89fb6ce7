// Package orchestrator runs submitted goals through the plan, execute and
// review stages in the background and tracks every task by id.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/becomeliminal/nim-pipeline/agents"
	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/memory"
)

const tracerName = "github.com/becomeliminal/nim-pipeline/orchestrator"

var (
	// ErrEmptyGoal is returned by Submit for a blank goal.
	ErrEmptyGoal = errors.New("goal must not be empty")

	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("orchestrator is shut down")

	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = errors.New("task not found")
)

// Orchestrator owns the task registry and schedules pipeline runs.
type Orchestrator struct {
	backend      llm.Backend
	buffer       *memory.Buffer
	recall       memory.Manager
	templates    agents.Templates
	judge        agents.Judge
	stepDelay    time.Duration
	contextSize  int
	concurrency  int
	stageTimeout time.Duration
	maxTokens    int
	tracer       trace.Tracer
	newID        func() string

	planner  *agents.Planner
	executor *agents.Executor
	reviewer *agents.Reviewer

	registry *registry
	sem      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithBuffer shares an existing memory buffer.
func WithBuffer(b *memory.Buffer) Option {
	return func(o *Orchestrator) {
		o.buffer = b
	}
}

// WithRecall enables retrieval of related prior tasks before planning and
// recording of finished tasks.
func WithRecall(m memory.Manager) Option {
	return func(o *Orchestrator) {
		o.recall = m
	}
}

// WithTemplates replaces the stage prompts.
func WithTemplates(t agents.Templates) Option {
	return func(o *Orchestrator) {
		o.templates = t
	}
}

// WithJudge replaces the review pass/fail rule.
func WithJudge(j agents.Judge) Option {
	return func(o *Orchestrator) {
		o.judge = j
	}
}

// WithStepDelay paces consecutive execute steps.
func WithStepDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stepDelay = d
	}
}

// WithContextSize sets how many recent memory entries prompts include.
func WithContextSize(n int) Option {
	return func(o *Orchestrator) {
		o.contextSize = n
	}
}

// WithConcurrency bounds how many pipelines run at once. Zero is unbounded.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithStageTimeout limits each stage. Zero disables the limit.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stageTimeout = d
	}
}

// WithMaxTokens sets the response limit passed to the backend.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		o.maxTokens = n
	}
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithIDGenerator replaces uuid-based task ids.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		o.newID = f
	}
}

// New creates an orchestrator over backend.
func New(backend llm.Backend, opts ...Option) (*Orchestrator, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	o := &Orchestrator{
		backend:     backend,
		templates:   agents.DefaultTemplates(),
		contextSize: agents.DefaultContextSize,
		maxTokens:   llm.DefaultMaxTokens,
		newID:       func() string { return uuid.New().String() },
		registry:    newRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.buffer == nil {
		o.buffer = memory.NewBuffer()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.contextSize <= 0 {
		o.contextSize = agents.DefaultContextSize
	}
	if o.concurrency > 0 {
		o.sem = make(chan struct{}, o.concurrency)
	}

	prompts, err := o.templates.Compile()
	if err != nil {
		return nil, err
	}
	o.planner = agents.NewPlanner(backend, prompts.Plan, o.maxTokens)
	o.executor = agents.NewExecutor(backend, o.buffer, prompts.Execute, o.maxTokens)
	o.executor.SetContextSize(o.contextSize)
	o.executor.StepDelay = o.stepDelay
	o.reviewer = agents.NewReviewer(backend, prompts.Review, o.judge, o.maxTokens)

	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o, nil
}

// Buffer returns the shared memory buffer.
func (o *Orchestrator) Buffer() *memory.Buffer {
	return o.buffer
}

// Submit registers a queued task for goal and starts its pipeline in the
// background. It never waits on the pipeline.
func (o *Orchestrator) Submit(goal string) (string, error) {
	if strings.TrimSpace(goal) == "" {
		return "", ErrEmptyGoal
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrClosed
	}

	now := time.Now().UTC()
	task := core.Task{
		ID:        o.newID(),
		Goal:      goal,
		Status:    core.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e, ok := o.registry.create(task)
	if !ok {
		return "", fmt.Errorf("duplicate task id %q", task.ID)
	}

	log.Printf("[ORCHESTRATOR] Task %s queued: %s", task.ID, truncate(goal, 80))
	o.wg.Add(1)
	go o.run(o.ctx, e)
	return task.ID, nil
}

// Get returns the latest snapshot of a task.
func (o *Orchestrator) Get(id string) (core.Task, bool) {
	e, ok := o.registry.get(id)
	if !ok {
		return core.Task{}, false
	}
	return e.load(), true
}

// List returns snapshots of all tasks, newest first.
func (o *Orchestrator) List() []core.Task {
	return o.registry.list()
}

// Watch returns the current snapshot of a task and a channel that is
// closed when the task next changes.
func (o *Orchestrator) Watch(id string) (core.Task, <-chan struct{}, error) {
	e, ok := o.registry.get(id)
	if !ok {
		return core.Task{}, nil, ErrNotFound
	}
	t, ch := e.watch()
	return t, ch, nil
}

// Wait blocks until the task reaches a terminal state or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string) (core.Task, error) {
	for {
		t, changed, err := o.Watch(id)
		if err != nil {
			return core.Task{}, err
		}
		if t.Status.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-changed:
		}
	}
}

// Shutdown rejects new submissions, cancels in-flight runs and waits for
// them to finish publishing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one task through its stages. It is the only writer of e.
func (o *Orchestrator) run(ctx context.Context, e *entry) {
	defer o.wg.Done()

	task := e.load()
	ctx, span := o.tracer.Start(ctx, "pipeline.task",
		trace.WithNewRoot(),
		trace.WithAttributes(attribute.String("task.id", task.ID)),
	)
	defer span.End()
	span.AddEvent("task.queued")

	defer func() {
		if r := recover(); r != nil {
			o.fail(span, e, &task, fmt.Errorf("panic: %v", r))
		}
	}()

	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			o.fail(span, e, &task, fmt.Errorf("cancelled while queued: %w", ctx.Err()))
			return
		}
	}

	// === PLAN ===
	o.transition(span, e, &task, core.StatusPlanning)
	task.Related = o.retrieve(ctx, task.Goal)

	var steps []core.Step
	err := o.stage(ctx, "pipeline.plan", func(ctx context.Context, span trace.Span) error {
		var err error
		steps, err = o.planner.Plan(ctx, task.Goal, o.buffer.Recent(o.contextSize), task.Related)
		span.SetAttributes(attribute.Int("plan.steps", len(steps)))
		return err
	})
	if err != nil {
		o.fail(span, e, &task, err)
		return
	}
	task.Plan = steps

	// === EXECUTE ===
	o.transition(span, e, &task, core.StatusExecuting)

	var results []core.ExecutionResult
	err = o.stage(ctx, "pipeline.execute", func(ctx context.Context, _ trace.Span) error {
		results = o.executor.ExecutePlan(ctx, steps)
		return stageErr(ctx, "execute")
	})
	task.Execution = results
	if err != nil {
		o.fail(span, e, &task, err)
		return
	}

	// === REVIEW ===
	o.transition(span, e, &task, core.StatusReviewing)

	var verdict core.Verdict
	err = o.stage(ctx, "pipeline.review", func(ctx context.Context, span trace.Span) error {
		var err error
		verdict, err = o.reviewer.Review(ctx, results)
		span.SetAttributes(attribute.Bool("review.passed", verdict.Passed))
		return err
	})
	if err != nil {
		o.fail(span, e, &task, err)
		return
	}
	task.Review = &verdict

	// === DONE ===
	task.Result = &core.Result{Plan: task.Plan, Execution: task.Execution, Review: verdict}
	task.Status = core.StatusDone
	// recorded before publishing so a caller that sees done can recall it
	o.record(ctx, task)
	o.transition(span, e, &task, core.StatusDone)
	span.SetStatus(codes.Ok, "")
	log.Printf("[ORCHESTRATOR] Task %s done (passed=%v)", task.ID, verdict.Passed)
}

func (o *Orchestrator) transition(span trace.Span, e *entry, task *core.Task, status core.Status) {
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	e.publish(*task)
	span.AddEvent("task." + string(status))
}

func (o *Orchestrator) fail(span trace.Span, e *entry, task *core.Task, err error) {
	log.Printf("[ORCHESTRATOR] Task %s failed during %s: %v", task.ID, task.Status, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	task.Error = err.Error()
	o.transition(span, e, task, core.StatusFailed)
}

// stage runs fn under its own span and stage deadline. A panic in fn is
// returned as an error so the span is always ended.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context, trace.Span) error) (err error) {
	ctx, span := o.tracer.Start(ctx, name)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		endSpan(span, err)
	}()

	ctx, cancel := o.stageContext(ctx)
	defer cancel()
	return fn(ctx, span)
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout > 0 {
		return context.WithTimeout(ctx, o.stageTimeout)
	}
	return context.WithCancel(ctx)
}

// retrieve fetches related prior tasks. Failures are non-fatal.
func (o *Orchestrator) retrieve(ctx context.Context, goal string) string {
	if o.recall == nil {
		return ""
	}
	related, err := o.recall.Retrieve(ctx, goal)
	if err != nil {
		log.Printf("[MEMORY] Retrieval failed: %v", err)
		return ""
	}
	return related
}

func (o *Orchestrator) record(ctx context.Context, task core.Task) {
	if o.recall == nil {
		return
	}
	if err := o.recall.Record(ctx, task); err != nil {
		log.Printf("[MEMORY] Failed to record task %s: %v", task.ID, err)
	}
}

// stageErr reports why a stage context ended early, if it did.
func stageErr(ctx context.Context, stage string) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return fmt.Errorf("%s stage timed out", stage)
	default:
		return fmt.Errorf("%s stage cancelled", stage)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
