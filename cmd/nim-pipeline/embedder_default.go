//go:build !onnx

package main

import (
	"fmt"

	"github.com/becomeliminal/nim-pipeline/config"
	"github.com/becomeliminal/nim-pipeline/memory"
	"github.com/becomeliminal/nim-pipeline/memory/embedder/mock"
)

func newEmbedder(cfg config.MemoryConfig) (memory.Embedder, error) {
	if cfg.Embedder == "onnx" {
		return nil, fmt.Errorf("onnx embedder requires building with -tags onnx")
	}
	return mock.New(cfg.Dimensions), nil
}
