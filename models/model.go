// Package models defines the model adapter contract, the name-to-adapter
// registry with parent chaining, and descriptor-file loading.
package models

import (
	"context"

	"github.com/verdictlab/verdict/dag"
)

// Message is one chat message handed to a model adapter.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Model is the adapter contract. Infer runs one inference; the per-case
// context carries adapter inputs (audio, settings) and receives adapter
// outputs (event logs). Metadata describes the adapter configuration and
// must never include secrets.
type Model interface {
	Infer(ctx context.Context, messages []Message, c *dag.Context) (string, error)
	Metadata() map[string]any
}

// InferFunc adapts a plain function into a Model with empty metadata.
// It is the building block for in-process test doubles.
type InferFunc func(ctx context.Context, messages []Message, c *dag.Context) (string, error)

// Infer calls the wrapped function.
func (f InferFunc) Infer(ctx context.Context, messages []Message, c *dag.Context) (string, error) {
	return f(ctx, messages, c)
}

// Metadata returns an empty mapping; function models carry no config.
func (InferFunc) Metadata() map[string]any {
	return map[string]any{}
}

// AudioCapableTypes lists the adapter types that can consume audio cases.
// The director refuses audio suites configured with any other type.
var AudioCapableTypes = map[string]bool{
	"AZURE_OPEN_AI_REALTIME": true,
	"OPEN_AI_REALTIME":       true,
}
