// Package llm wraps the model providers behind a single Generate call and
// classifies their failures into upstream timeout or provider errors.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/fabfab/contract-agent/config"
	"github.com/fabfab/contract-agent/contract"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Options struct {
	Provider string
	Model    string
	Timeout  float64

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewClient builds the client for one agent. A missing OpenAI credential is
// reported as contract.ErrAgentUnavailable so callers can treat it as
// unavailability rather than failure.
func NewClient(cfg config.Config, agent config.LLMConfig) (Client, error) {
	apiKey := agent.APIKey
	if apiKey == "" {
		apiKey = cfg.OpenAIAPIKey
	}
	opts := Options{
		Provider:      agent.Provider,
		Model:         agent.Model,
		Timeout:       agent.Timeout.Seconds(),
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  apiKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	var client Client
	switch opts.Provider {
	case config.ProviderOllama:
		client = NewOllamaClient(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set: %w", contract.ErrAgentUnavailable)
		}
		client = NewOpenAIClient(opts)
	case config.ProviderNone, "":
		return nil, fmt.Errorf("llm provider disabled: %w", contract.ErrAgentUnavailable)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}

	if agent.RequestsPerSecond > 0 {
		client = NewRateLimited(client, agent.RequestsPerSecond, 1)
	}
	return client, nil
}

// Classify maps a provider failure onto contract.ErrUpstreamTimeout or
// contract.ErrUpstreamProvider, keeping the original error in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, contract.ErrUpstreamTimeout) || errors.Is(err, contract.ErrUpstreamProvider) ||
		errors.Is(err, contract.ErrAgentUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", contract.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", contract.ErrUpstreamTimeout, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Errorf("%w: %w", contract.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", contract.ErrUpstreamProvider, err)
}
