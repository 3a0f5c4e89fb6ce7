package agents

import (
	"context"
	"fmt"
	"text/template"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/memory"
)

// DefaultContextSize is how many recent memory entries prompts include.
const DefaultContextSize = 5

// Executor carries out plan steps one at a time.
type Executor struct {
	backend     llm.Backend
	buffer      *memory.Buffer
	prompt      *template.Template
	maxTokens   int
	contextSize int

	// StepDelay paces consecutive steps. Zero disables pacing.
	StepDelay time.Duration
}

// NewExecutor creates an executor writing results to buffer.
func NewExecutor(backend llm.Backend, buffer *memory.Buffer, prompt *template.Template, maxTokens int) *Executor {
	if prompt == nil {
		prompt = DefaultTemplates().MustCompile().Execute
	}
	return &Executor{
		backend:     backend,
		buffer:      buffer,
		prompt:      prompt,
		maxTokens:   maxTokens,
		contextSize: DefaultContextSize,
	}
}

// SetContextSize overrides how many recent entries each prompt includes.
func (e *Executor) SetContextSize(n int) {
	if n > 0 {
		e.contextSize = n
	}
}

// ExecuteInput is the data the execute template renders.
type ExecuteInput struct {
	Instruction string
	Memory      []core.MemoryEntry
}

// ExecuteStep runs a single step and records its output in the buffer.
func (e *Executor) ExecuteStep(ctx context.Context, step core.Step) (core.ExecutionResult, error) {
	prompt, err := render(e.prompt, ExecuteInput{
		Instruction: step.Instruction,
		Memory:      e.buffer.Recent(e.contextSize),
	})
	if err != nil {
		return core.ExecutionResult{}, err
	}
	result, err := e.backend.Generate(ctx, prompt, e.maxTokens)
	if err != nil {
		return core.ExecutionResult{}, err
	}
	e.buffer.Add(memory.RoleExecutor, result)
	return core.ExecutionResult{Instruction: step.Instruction, Result: result}, nil
}

// ExecutePlan runs steps in order. A failing step is recorded with an
// error marker and never stops the remaining steps.
func (e *Executor) ExecutePlan(ctx context.Context, steps []core.Step) []core.ExecutionResult {
	tracer := trace.SpanFromContext(ctx).TracerProvider().Tracer(tracerName)

	results := make([]core.ExecutionResult, 0, len(steps))
	for i, step := range steps {
		stepCtx, span := tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
			attribute.Int("step.index", i),
		))
		res, err := e.safeExecute(stepCtx, step)
		if err != nil {
			res = core.ExecutionResult{
				Instruction: step.Instruction,
				Result:      core.ErrorMarker + err.Error(),
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		results = append(results, res)

		if i < len(steps)-1 {
			e.pause(ctx)
		}
	}
	return results
}

// safeExecute converts a panic inside a step into that step's error.
func (e *Executor) safeExecute(ctx context.Context, step core.Step) (res core.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.ExecuteStep(ctx, step)
}

func (e *Executor) pause(ctx context.Context) {
	if e.StepDelay <= 0 {
		return
	}
	t := time.NewTimer(e.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
