//go:build onnx

package main

import (
	"github.com/becomeliminal/nim-pipeline/config"
	"github.com/becomeliminal/nim-pipeline/memory"
	"github.com/becomeliminal/nim-pipeline/memory/embedder/mock"
	"github.com/becomeliminal/nim-pipeline/memory/embedder/onnx"
)

func newEmbedder(cfg config.MemoryConfig) (memory.Embedder, error) {
	if cfg.Embedder != "onnx" {
		return mock.New(cfg.Dimensions), nil
	}
	e, err := onnx.New(onnx.Config{
		ModelPath:         cfg.ONNXModel,
		TokenizerPath:     cfg.ONNXTokenizer,
		SharedLibraryPath: cfg.ONNXLibrary,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
