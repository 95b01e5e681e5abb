// Package models contains shared data models used across the FinSight codebase.
package models

import "context"

// AIProvider is the core interface that all inference integrations must
// implement. Never call specific AI providers directly — always inject this
// interface.
type AIProvider interface {
	// Complete sends a single prompt to the model and returns its text reply.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the configured model identifier.
	Model() string
}

// CompletionRequest is the input to an inference call.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}
