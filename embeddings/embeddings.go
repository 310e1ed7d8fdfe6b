// Package embeddings turns query text into vectors for semantic passage search.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fabfab/contract-agent/config"
	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
)

// ErrDimensionMismatch means a provider returned vectors that do not fit the
// configured pgvector column.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// OptionsFromConfig reads the embedding section. The OpenAI key falls back
// to the documents agent key so a single per-agent credential is enough.
func OptionsFromConfig(cfg config.Config) Options {
	key := cfg.OpenAIAPIKey
	if key == "" {
		key = cfg.DocumentsLLM.APIKey
	}
	return Options{
		Provider:      strings.ToLower(strings.TrimSpace(cfg.Embeddings.Provider)),
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  key,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := OptionsFromConfig(cfg)
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("embedding dimension %d: %w", opts.Dimension, contract.ErrInvalidInput)
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set: %w", contract.ErrAgentUnavailable)
		}
		return NewOpenAIEmbedder(opts), nil
	case config.ProviderNone:
		return nil, fmt.Errorf("embeddings disabled: %w", contract.ErrAgentUnavailable)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

func checkDimension(provider string, want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%s: %w: expected %d, got %d", provider, ErrDimensionMismatch, want, len(vec))
	}
	return nil
}

// providerError classifies a failed embedding call the same way agent calls
// are classified, so callers can tell timeouts from provider faults.
func providerError(provider string, err error) error {
	return llm.Classify(fmt.Errorf("%s embeddings: %w", provider, err))
}
