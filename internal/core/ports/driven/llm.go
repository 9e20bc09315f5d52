package driven

import "context"

// LLMService provides language model completion.
// This is an optional service - only the llm extraction backend needs it.
//
// Implementations include:
//   - Ollama (local models)
//   - OpenAI (and OpenAI-compatible servers)
//   - Anthropic (Claude)
type LLMService interface {
	// Generate produces text completion from a prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// System is an optional system instruction.
	System string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// JSON asks the model for a JSON-only response where supported.
	JSON bool
}

// Prompt names known to the PromptStore.
const (
	// PromptEntityExtraction asks for a JSON array of entities. The chunk
	// text replaces the {text} placeholder.
	PromptEntityExtraction = "entity_extraction"

	// PromptEntitySystem is the system instruction for entity extraction.
	PromptEntitySystem = "entity_system"
)

// PromptStore provides user-customisable prompt templates.
type PromptStore interface {
	// Load returns the template for name, falling back to the built-in
	// default when the user has not customised it.
	Load(name string) (string, error)
}
