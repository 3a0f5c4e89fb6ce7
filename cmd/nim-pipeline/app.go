package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-pipeline/agents"
	"github.com/becomeliminal/nim-pipeline/config"
	"github.com/becomeliminal/nim-pipeline/llm"
	"github.com/becomeliminal/nim-pipeline/memory"
	"github.com/becomeliminal/nim-pipeline/memory/embedder/cache"
	"github.com/becomeliminal/nim-pipeline/memory/store/chromem"
	"github.com/becomeliminal/nim-pipeline/memory/store/simstore"
	"github.com/becomeliminal/nim-pipeline/orchestrator"
	"github.com/becomeliminal/nim-pipeline/similarity"
	"github.com/becomeliminal/nim-pipeline/telemetry"
)

// app is the wired pipeline shared by every subcommand.
type app struct {
	cfg          config.Config
	orchestrator *orchestrator.Orchestrator

	closers []func(context.Context) error
}

// loadConfig resolves the config file, .env and environment, then applies
// command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	res := config.Load(path)
	if res.ParseError != nil {
		return config.Config{}, fmt.Errorf("load %s: %w", res.Path, res.ParseError)
	}
	if res.Found {
		log.Printf("[CONFIG] Loaded %s", res.Path)
	}

	cfg := res.Config
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.LLM.Provider = backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	backend, err := llm.New(llm.Config{
		Provider:     cfg.LLM.Provider,
		AnthropicKey: cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		MockLatency:  cfg.LLM.MockLatencyMS,
		Seed:         cfg.LLM.Seed,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	log.Printf("[CONFIG] Using %s backend", cfg.LLM.Provider)

	opts := []orchestrator.Option{
		orchestrator.WithStepDelay(time.Duration(cfg.Pipeline.StepDelayMS) * time.Millisecond),
		orchestrator.WithContextSize(cfg.Pipeline.ContextSize),
		orchestrator.WithConcurrency(cfg.Pipeline.Concurrency),
		orchestrator.WithStageTimeout(time.Duration(cfg.Pipeline.StageTimeoutMS) * time.Millisecond),
		orchestrator.WithMaxTokens(cfg.LLM.MaxTokens),
	}

	if cfg.Pipeline.Templates != "" {
		tmpl, err := agents.LoadTemplates(cfg.Pipeline.Templates)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		opts = append(opts, orchestrator.WithTemplates(tmpl))
	}

	if cfg.Memory.On() {
		recall, err := a.newRecall(cfg.Memory)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		opts = append(opts, orchestrator.WithRecall(recall))
	}

	o, err := orchestrator.New(backend, opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.orchestrator = o
	return a, nil
}

// newRecall builds the related-task memory from config.
func (a *app) newRecall(cfg config.MemoryConfig) (*memory.SimpleManager, error) {
	base, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := base.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	embedder, err := cache.New(base, cache.Config{MaxEntries: int64(cfg.CacheEntries)})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		embedder.Close()
		return nil
	})

	var store memory.Store
	switch cfg.Store {
	case "chromem":
		store, err = chromem.New()
		if err != nil {
			return nil, err
		}
	default:
		index, err := similarity.NewStore(embedder.Dimensions())
		if err != nil {
			return nil, err
		}
		store = simstore.New(index)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	log.Printf("[MEMORY] Recall enabled (%s store, %d dims)", cfg.Store, embedder.Dimensions())
	return memory.NewSimpleManager(store, embedder, &memory.Config{
		Enabled:    true,
		MaxResults: cfg.MaxResults,
	}), nil
}

// close shuts down the orchestrator and releases everything newApp opened,
// in reverse order.
func (a *app) close(ctx context.Context) {
	if a.orchestrator != nil {
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			log.Printf("[ORCHESTRATOR] Shutdown: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Printf("[APP] Close: %v", err)
		}
	}
}
