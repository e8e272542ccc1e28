// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService completes prompts with a language model.
//
// Implementations map provider failures onto domain errors the same way
// EmbeddingService does; invalid requests become domain.ErrInvalidInput.
//
// Implementations may include:
//   - OpenAI (GPT-4o)
//   - Anthropic (Claude)
//   - Gemini
//   - Ollama (local models)
type LLMService interface {
	// Complete sends one system + user exchange and returns the model reply.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	// System is the system instruction. May be empty.
	System string

	// Messages is the conversation, usually a single user message.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate. Zero uses the backend default.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Roles used in ChatMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completion is the model reply plus token accounting.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Model            string
}
