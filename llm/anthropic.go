package llm

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures the Claude backend.
type AnthropicConfig struct {
	APIKey string
	Model  string

	// SystemPrompt is sent with every request. Optional.
	SystemPrompt string
}

// Anthropic generates text with the Claude Messages API.
type Anthropic struct {
	client       *anthropic.Client
	model        string
	systemPrompt string
}

// NewAnthropic creates a Claude-backed Backend.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Anthropic{
		client:       &client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Generate sends prompt as a single user message and returns the
// concatenated text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: a.systemPrompt},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("[LLM] Claude API error: %v", err)
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	log.Printf("[LLM] Claude responded: in=%d out=%d tokens", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return text, nil
}
