package interfaces

import "context"

// GeminiClient is the LLM backend used for letter generation and refinement.
type GeminiClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}
