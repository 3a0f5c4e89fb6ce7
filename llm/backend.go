// Package llm defines the generative text backend the pipeline stages call,
// with an Anthropic implementation and a deterministic local mock.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxTokens is used when a caller passes a non-positive limit.
const DefaultMaxTokens = 256

// Backend turns a prompt into a response.
// Implementations may block for arbitrary latency and may fail.
type Backend interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f Func) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Config selects and configures a backend.
type Config struct {
	// Provider is "mock" or "anthropic".
	Provider string

	// AnthropicKey authenticates against the Claude API.
	AnthropicKey string

	// Model is the Claude model name.
	Model string

	// MockLatency simulates backend latency for the mock provider.
	MockLatency int // milliseconds

	// Seed makes the mock provider's choices reproducible.
	Seed int64
}

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		return NewMock(MockConfig{LatencyMS: cfg.MockLatency, Seed: cfg.Seed}), nil
	case "anthropic", "claude":
		return NewAnthropic(AnthropicConfig{APIKey: cfg.AnthropicKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
