// Package llm defines the text generation and embedding ports the engine depends on.
package llm

import "context"

// Request is one completion call.
type Request struct {
	SystemPrompt     string
	UserPrompt       string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
}

// Client generates text. An empty or filtered completion is returned as a
// content-rejected error, never as an empty string with a nil error.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
