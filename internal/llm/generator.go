// Package llm provides answer generation through a locally running Ollama service.
package llm

import "context"

// Generator produces a free-text answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
