// Package llm talks to text-generation providers used to explain cached intelligence.
package llm

import "context"

// Message is one turn of chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single generation.
type GenerateOptions struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Generation is the provider's reply.
type Generation struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []Message, opts GenerateOptions) (*Generation, error)
}
