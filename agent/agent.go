// Package agent implements the two specialist agents. Each one retrieves
// passages from its own knowledge domain and asks a language model for an
// analysis grounded strictly in those passages.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
)

const (
	maxConfidence       = 0.9
	baseConfidence      = 0.5
	perPassageIncrement = 0.02
	// UngroundedConfidence is reported when retrieval found nothing.
	UngroundedConfidence = 0.2
)

// Request is one question addressed to an agent.
type Request struct {
	Query      string
	ContractID string
	History    []llm.Message
}

// Generation is the output of an agent's generation step.
type Generation struct {
	Analysis  string
	Citations []contract.Citation
	Conflicts []string
}

// Agent is a retrieval plus generation unit scoped to one knowledge domain.
type Agent interface {
	Name() string
	Domain() contract.Domain
	// Available returns a non-nil error wrapping contract.ErrAgentUnavailable
	// when the agent lacks a credential or client.
	Available() error
	Retrieve(ctx context.Context, req Request) ([]contract.Passage, error)
	Generate(ctx context.Context, req Request, passages []contract.Passage) (Generation, error)
	Confidence(passages []contract.Passage) float64
}

// GroundedConfidence implements the shared confidence contract.
func GroundedConfidence(passageCount int) float64 {
	if passageCount <= 0 {
		return UngroundedConfidence
	}
	c := math.Min(maxConfidence, baseConfidence+perPassageIncrement*float64(passageCount))
	return math.Round(c*1e6) / 1e6
}

// Invoke runs a full agent turn. It never returns an error: every failure is
// reported on AgentResponse.Err with a zero confidence so that one agent
// failing cannot abort its sibling.
func Invoke(ctx context.Context, a Agent, req Request) contract.AgentResponse {
	resp := contract.AgentResponse{Agent: a.Name(), Domain: a.Domain()}

	if err := a.Available(); err != nil {
		resp.Err = err
		return resp
	}
	if err := ctx.Err(); err != nil {
		resp.Err = err
		return resp
	}

	passages, err := a.Retrieve(ctx, req)
	if err != nil {
		resp.Err = fmt.Errorf("retrieve passages: %w", err)
		return resp
	}

	gen, err := a.Generate(ctx, req, passages)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Err = err
		} else {
			resp.Err = llm.Classify(fmt.Errorf("generate analysis: %w", err))
		}
		return resp
	}

	resp.Analysis = gen.Analysis
	resp.Sources = gen.Citations
	resp.Conflicts = gen.Conflicts
	resp.Confidence = contract.ClampConfidence(a.Confidence(passages))
	return resp
}

func unavailable(name string, reason error) error {
	if reason == nil {
		return fmt.Errorf("%s: llm client not configured: %w", name, contract.ErrAgentUnavailable)
	}
	if errors.Is(reason, contract.ErrAgentUnavailable) {
		return fmt.Errorf("%s: %w", name, reason)
	}
	return fmt.Errorf("%s: %w: %w", name, contract.ErrAgentUnavailable, reason)
}
