// Package config loads nim-pipeline settings from a TOML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "nim-pipeline.toml"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Memory    MemoryConfig    `toml:"memory"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	GRPCPort       int      `toml:"grpc_port"` // 0 disables gRPC
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LLMConfig struct {
	Provider      string `toml:"provider"` // mock | anthropic
	APIKey        string `toml:"api_key"`
	Model         string `toml:"model"`
	MaxTokens     int    `toml:"max_tokens"`
	MockLatencyMS int    `toml:"mock_latency_ms"`
	Seed          int64  `toml:"seed"`
}

type PipelineConfig struct {
	StepDelayMS    int    `toml:"step_delay_ms"`
	ContextSize    int    `toml:"context_size"`
	Concurrency    int    `toml:"concurrency"`
	StageTimeoutMS int    `toml:"stage_timeout_ms"`
	Templates      string `toml:"templates"` // optional YAML prompt overrides
}

type MemoryConfig struct {
	Enabled       *bool  `toml:"enabled"`
	Store         string `toml:"store"`    // simstore | chromem
	Embedder      string `toml:"embedder"` // mock | onnx
	Dimensions    int    `toml:"dimensions"`
	MaxResults    int    `toml:"max_results"`
	CacheEntries  int    `toml:"cache_entries"`
	ONNXModel     string `toml:"onnx_model"`
	ONNXTokenizer string `toml:"onnx_tokenizer"`
	ONNXLibrary   string `toml:"onnx_library"`
}

// On reports whether recall is enabled.
func (m MemoryConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

type TelemetryConfig struct {
	ServiceName  string `toml:"service_name"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

func Default() Config {
	enabled := true
	return Config{
		Server:   ServerConfig{Port: 8000, GRPCPort: 0, AllowedOrigins: []string{"*"}},
		LLM:      LLMConfig{Provider: "mock", MaxTokens: 256, MockLatencyMS: 100},
		Pipeline: PipelineConfig{StepDelayMS: 50, ContextSize: 5},
		Memory: MemoryConfig{
			Enabled:      &enabled,
			Store:        "simstore",
			Embedder:     "mock",
			Dimensions:   128,
			MaxResults:   3,
			CacheEntries: 1024,
		},
		Telemetry: TelemetryConfig{ServiceName: "nim-pipeline"},
	}
}

var (
	ErrInvalid = errors.New("invalid config")
)

type LoadResult struct {
	Config     Config
	Found      bool
	Path       string
	ParseError error
}

// Load reads path (DefaultPath when empty) over the defaults. A missing
// file is not an error. Environment overrides are applied last, after any
// .env file in the working directory has been loaded.
func Load(path string) LoadResult {
	if path == "" {
		path = DefaultPath
	}
	res := LoadResult{Config: Default(), Path: path}

	// .env is optional
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		res.ParseError = err
	default:
		res.Found = true
		// keys absent from the file keep their defaults; explicit zeros stick
		if err := toml.Unmarshal(b, &res.Config); err != nil {
			res.ParseError = fmt.Errorf("%w: %v", ErrInvalid, err)
			res.Config = Default()
		}
	}

	res.Config = ApplyEnv(res.Config, os.Getenv)
	res.Config.LLM.Provider = strings.ToLower(strings.TrimSpace(res.Config.LLM.Provider))
	return res
}

// ApplyEnv overrides cfg from environment variables read through getenv.
// Unparseable numbers are ignored.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := getenv("NIM_BACKEND"); v != "" {
		cfg.LLM.Provider = strings.ToLower(v)
	}
	if v := getenv("NIM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if n, err := strconv.Atoi(getenv("PORT")); err == nil {
		cfg.Server.Port = n
	}
	if n, err := strconv.Atoi(getenv("GRPC_PORT")); err == nil {
		cfg.Server.GRPCPort = n
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	return cfg
}

// Validate reports the first setting the pipeline cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "mock":
	case "anthropic", "claude":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: llm provider %q requires ANTHROPIC_API_KEY", ErrInvalid, c.LLM.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalid, c.LLM.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("%w: grpc_port %d out of range", ErrInvalid, c.Server.GRPCPort)
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("%w: grpc_port must differ from port", ErrInvalid)
	}
	if c.Pipeline.ContextSize <= 0 {
		return fmt.Errorf("%w: context_size must be positive", ErrInvalid)
	}
	if c.Pipeline.Concurrency < 0 || c.Pipeline.StepDelayMS < 0 || c.Pipeline.StageTimeoutMS < 0 {
		return fmt.Errorf("%w: pipeline settings must not be negative", ErrInvalid)
	}
	switch c.Memory.Store {
	case "simstore", "chromem":
	default:
		return fmt.Errorf("%w: unknown memory store %q", ErrInvalid, c.Memory.Store)
	}
	switch c.Memory.Embedder {
	case "mock":
		if c.Memory.Dimensions <= 0 {
			return fmt.Errorf("%w: memory dimensions must be positive", ErrInvalid)
		}
	case "onnx":
		if c.Memory.ONNXModel == "" || c.Memory.ONNXTokenizer == "" {
			return fmt.Errorf("%w: onnx embedder needs onnx_model and onnx_tokenizer", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown embedder %q", ErrInvalid, c.Memory.Embedder)
	}
	return nil
}
