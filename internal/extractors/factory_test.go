package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

type fakeLLM struct{}

func (fakeLLM) Generate(context.Context, string, driven.GenerateOptions) (string, error) {
	return "[]", nil
}
func (fakeLLM) ModelName() string          { return "qwen2.5" }
func (fakeLLM) Ping(context.Context) error { return nil }
func (fakeLLM) Close() error               { return nil }

func TestNew_Rules(t *testing.T) {
	backend, err := New(Config{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rules:default", backend.Name())

	backend, err = New(Config{Backend: KindRules, Ruleset: "medical"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "rules:medical", backend.Name())

	_, err = New(Config{Backend: KindRules, Ruleset: "nope"}, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNew_LLM(t *testing.T) {
	backend, err := New(Config{Backend: KindLLM, RateLimit: 2}, fakeLLM{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "llm:qwen2.5", backend.Name())

	_, err = New(Config{Backend: KindLLM}, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "spacy"}, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}
