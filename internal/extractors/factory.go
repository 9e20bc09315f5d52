package extractors

import (
	"fmt"
	"log/slog"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/extractors/llm"
	"github.com/custodia-labs/jarvis/internal/extractors/rules"
)

// Backend kinds accepted by New.
const (
	KindRules = "rules"
	KindLLM   = "llm"
)

// Config selects and tunes the entity backend.
type Config struct {
	Backend   string
	Ruleset   string
	RateLimit float64
	MaxTokens int
}

// New builds the configured entity backend. The LLM service and prompt
// store are only used by the llm backend and may be nil otherwise.
func New(
	cfg Config,
	service driven.LLMService,
	prompts driven.PromptStore,
	logger *slog.Logger,
) (driven.EntityBackend, error) {
	switch cfg.Backend {
	case "", KindRules:
		return rules.New(cfg.Ruleset)
	case KindLLM:
		if service == nil {
			return nil, fmt.Errorf("llm backend: %w", domain.ErrLLMUnavailable)
		}
		return llm.New(service,
			llm.WithRateLimit(cfg.RateLimit),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithPromptStore(prompts),
			llm.WithLogger(logger),
		)
	default:
		return nil, fmt.Errorf("%w: entity backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}
