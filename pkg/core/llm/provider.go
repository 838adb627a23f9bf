// Package llm hosts the model provider used by the ticker-resolution
// fallback. The pipeline has exactly one LLM call site, but keeping a
// Provider interface lets the cascade run against a fake in tests.
package llm

import "context"

// Provider is the interface for completion providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
}
