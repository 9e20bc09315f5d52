// Package llm is an entity backend that prompts a language model for a JSON
// list of entities found in a chunk.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.EntityBackend = (*Backend)(nil)

const (
	// DefaultParseAttempts bounds how often malformed output is regenerated.
	DefaultParseAttempts = 3

	// DefaultMaxTokens bounds the response length.
	DefaultMaxTokens = 2048

	textPlaceholder = "{text}"
)

// Backend extracts entities through an LLMService.
type Backend struct {
	llm           driven.LLMService
	prompts       driven.PromptStore
	limiter       *rate.Limiter
	maxTokens     int
	parseAttempts int
	logger        *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(b *Backend) {
		if perSecond > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithPromptStore loads templates from store instead of the built-ins.
func WithPromptStore(store driven.PromptStore) Option {
	return func(b *Backend) { b.prompts = store }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// WithParseAttempts sets how many generations are tried when the response
// is not valid JSON.
func WithParseAttempts(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.parseAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an LLM backend.
func New(service driven.LLMService, opts ...Option) (*Backend, error) {
	if service == nil {
		return nil, domain.ErrLLMUnavailable
	}
	b := &Backend{
		llm:           service,
		maxTokens:     DefaultMaxTokens,
		parseAttempts: DefaultParseAttempts,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "llm_backend", "model", service.ModelName())
	return b, nil
}

// Name returns "llm:<model>".
func (b *Backend) Name() string {
	return "llm:" + b.llm.ModelName()
}

// Scan prompts the model with the chunk text and parses its entities.
// Transport failures wrap domain.ErrLLMUnavailable; output that never
// parses wraps domain.ErrBackendOutput.
func (b *Backend) Scan(ctx context.Context, chunk domain.TextChunk) ([]domain.MentionCandidate, error) {
	text := strings.TrimSpace(chunk.Text)
	if text == "" {
		return nil, nil
	}

	prompt, system := b.render(text)
	opts := driven.GenerateOptions{
		System:      system,
		MaxTokens:   b.maxTokens,
		Temperature: 0,
		JSON:        true,
	}

	var lastErr error
	for attempt := 1; attempt <= b.parseAttempts; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		output, err := b.llm.Generate(ctx, prompt, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, domain.ErrLLMUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
		}

		entities, err := parseEntities(output)
		if err != nil {
			lastErr = err
			b.logger.Warn("unparseable entity output",
				"attempt", attempt, "content_id", chunk.ContentID, "chunk", chunk.ChunkIndex, "err", err)
			continue
		}
		return toCandidates(entities), nil
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrBackendOutput, lastErr)
}

// render fills the extraction template with text. A template without the
// placeholder gets the text appended.
func (b *Backend) render(text string) (prompt, system string) {
	template := b.load(driven.PromptEntityExtraction, defaultPrompt)
	system = b.load(driven.PromptEntitySystem, defaultSystem)

	if strings.Contains(template, textPlaceholder) {
		return strings.ReplaceAll(template, textPlaceholder, text), system
	}
	return strings.TrimRight(template, " \n") + "\n\nText:\n" + text, system
}

func (b *Backend) load(name, fallback string) string {
	if b.prompts == nil {
		return fallback
	}
	prompt, err := b.prompts.Load(name)
	if err != nil || strings.TrimSpace(prompt) == "" {
		return fallback
	}
	return prompt
}
