// Package agents implements the plan, execute and review stages. Each stage
// wraps backend calls with a stage-specific prompt and post-processing.
package agents

import (
	"context"
	"fmt"
	"text/template"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
)

// Planner turns a goal into an ordered list of steps.
type Planner struct {
	backend   llm.Backend
	prompt    *template.Template
	maxTokens int
}

// NewPlanner creates a planner. A nil prompt uses the default template.
func NewPlanner(backend llm.Backend, prompt *template.Template, maxTokens int) *Planner {
	if prompt == nil {
		prompt = DefaultTemplates().MustCompile().Plan
	}
	return &Planner{backend: backend, prompt: prompt, maxTokens: maxTokens}
}

// planInput is the data the plan template renders.
type planInput struct {
	Goal    string
	Context []core.MemoryEntry
	Related string
}

// Plan makes one backend call and parses the response into steps.
// recent is conversational memory; related is formatted recall of
// prior tasks and may be empty.
func (p *Planner) Plan(ctx context.Context, goal string, recent []core.MemoryEntry, related string) ([]core.Step, error) {
	prompt, err := render(p.prompt, planInput{Goal: goal, Context: recent, Related: related})
	if err != nil {
		return nil, err
	}
	raw, err := p.backend.Generate(ctx, prompt, p.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return ParseSteps(raw), nil
}

const tracerName = "github.com/becomeliminal/nim-pipeline/agents"
