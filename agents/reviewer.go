package agents

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/becomeliminal/nim-pipeline/llm"
)

// Judge decides whether a review text passes.
type Judge func(review string) bool

// KeywordJudge passes reviews that do not mention keyword, ignoring case.
func KeywordJudge(keyword string) Judge {
	keyword = strings.ToLower(keyword)
	return func(review string) bool {
		return !strings.Contains(strings.ToLower(review), keyword)
	}
}

// Reviewer critiques execution results and renders a verdict.
type Reviewer struct {
	backend   llm.Backend
	prompt    *template.Template
	judge     Judge
	maxTokens int
}

// NewReviewer creates a reviewer. A nil judge uses KeywordJudge("error").
func NewReviewer(backend llm.Backend, prompt *template.Template, judge Judge, maxTokens int) *Reviewer {
	if prompt == nil {
		prompt = DefaultTemplates().MustCompile().Review
	}
	if judge == nil {
		judge = KeywordJudge("error")
	}
	return &Reviewer{backend: backend, prompt: prompt, judge: judge, maxTokens: maxTokens}
}

type reviewInput struct {
	Results []core.ExecutionResult
}

// Review makes one backend call over all results.
func (r *Reviewer) Review(ctx context.Context, results []core.ExecutionResult) (core.Verdict, error) {
	prompt, err := render(r.prompt, reviewInput{Results: results})
	if err != nil {
		return core.Verdict{}, err
	}
	text, err := r.backend.Generate(ctx, prompt, r.maxTokens)
	if err != nil {
		return core.Verdict{}, fmt.Errorf("review: %w", err)
	}
	return core.Verdict{Passed: r.judge(text), Review: text}, nil
}
