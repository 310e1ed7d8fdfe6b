// Package orchestrator routes a query to the specialist agents, runs them
// concurrently and hands their responses to the synthesizer.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fabfab/contract-agent/agent"
	"github.com/fabfab/contract-agent/classifier"
	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/llm"
	"github.com/fabfab/contract-agent/synth"
)

const unavailableMessage = "No specialist agent is available to answer this question:"

// ClauseResolver resolves the effective version of one clause.
type ClauseResolver interface {
	ResolveEffectiveClause(ctx context.Context, contractID, clause string) (*contract.EffectiveClauseView, error)
}

type Request struct {
	Query      string
	ContractID string
	History    []llm.Message
}

type Options struct {
	// AlwaysBoth invokes every available agent regardless of classification.
	AlwaysBoth bool
	Threshold  float64
	Logger     *zap.Logger
}

type Orchestrator struct {
	agents     []agent.Agent
	resolver   ClauseResolver
	synth      *synth.Synthesizer
	classify   func(string) contract.QueryClassification
	alwaysBoth bool
	logger     *zap.Logger
}

func New(agents []agent.Agent, resolver ClauseResolver, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		agents:     agents,
		resolver:   resolver,
		synth:      synth.New(opts.Threshold),
		classify:   classifier.Classify,
		alwaysBoth: opts.AlwaysBoth,
		logger:     logger,
	}
}

// Orchestrate answers req. Agent failures never surface as an error: they are
// carried on the per-agent responses and reflected in the final answer.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*contract.SynthesizedResponse, error) {
	resp, _, err := o.OrchestrateTraced(ctx, req)
	return resp, err
}

// OrchestrateTraced is Orchestrate plus the request's state transitions.
func (o *Orchestrator) OrchestrateTraced(ctx context.Context, req Request) (*contract.SynthesizedResponse, *Trace, error) {
	trace := NewTrace()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, trace, fmt.Errorf("query cannot be empty: %w", contract.ErrInvalidInput)
	}

	requestID := uuid.NewString()
	logger := o.logger.With(zap.String("request_id", requestID), zap.String("contract_id", req.ContractID))

	trace.enter(StateClassifying)
	classification := o.classify(query)
	logger.Debug("query classified",
		zap.Bool("documents", classification.RequiresDocumentsAgent),
		zap.Bool("conditions", classification.RequiresConditionsAgent),
		zap.Float64("documents_relevance", classification.DocumentRelevance),
		zap.Float64("conditions_relevance", classification.ConditionsRelevance),
		zap.Strings("topics", classification.DetectedTopics))

	responses := make(map[contract.Domain]*contract.AgentResponse, len(o.agents))
	var runnable []agent.Agent
	var causes []string
	for _, a := range o.agents {
		if !o.alwaysBoth && !classification.Requires(a.Domain()) {
			continue
		}
		if err := a.Available(); err != nil {
			responses[a.Domain()] = &contract.AgentResponse{Agent: a.Name(), Domain: a.Domain(), Err: err}
			causes = append(causes, fmt.Sprintf("- %s: %s", a.Domain().Label(), err))
			logger.Warn("agent unavailable", zap.String("agent", a.Name()), zap.Error(err))
			continue
		}
		runnable = append(runnable, a)
	}

	if len(runnable) == 0 {
		trace.enter(StateDone)
		if len(causes) == 0 {
			causes = append(causes, "- no agent is configured")
		}
		return &contract.SynthesizedResponse{
			RequestID:      requestID,
			FinalAnswer:    unavailableMessage + "\n" + strings.Join(causes, "\n"),
			Documents:      responses[contract.DomainDocuments],
			Conditions:     responses[contract.DomainConditions],
			Rationale:      "No specialist agent was available.",
			Classification: classification,
		}, trace, nil
	}

	trace.enter(StateAgentsInFlight)
	results := o.fanOut(ctx, runnable, agent.Request{Query: query, ContractID: req.ContractID, History: req.History}, trace, logger)
	for i, a := range runnable {
		responses[a.Domain()] = results[i]
	}

	if err := ctx.Err(); err != nil {
		return nil, trace, fmt.Errorf("orchestrate: %w", err)
	}

	trace.enter(StateSynthesizing)
	out := o.synth.Synthesize(classification, responses[contract.DomainDocuments], responses[contract.DomainConditions])
	out.RequestID = requestID
	trace.enter(StateDone)

	logger.Info("request answered", zap.Any("agents_used", out.AgentsUsed), zap.Int("cross_references", len(out.CrossReferences)))
	return &out, trace, nil
}

// fanOut runs each agent in its own goroutine and waits for all of them.
// Each goroutine writes only its own slot.
func (o *Orchestrator) fanOut(ctx context.Context, agents []agent.Agent, req agent.Request, trace *Trace, logger *zap.Logger) []*contract.AgentResponse {
	results := make([]*contract.AgentResponse, len(agents))
	var g errgroup.Group
	for i, a := range agents {
		i, a := i, a
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					results[i] = &contract.AgentResponse{
						Agent:  a.Name(),
						Domain: a.Domain(),
						Err:    fmt.Errorf("%s agent panicked: %v", a.Name(), r),
					}
					trace.agentFailed(a.Name(), results[i].Err)
					logger.Error("agent panicked", zap.String("agent", a.Name()), zap.Any("panic", r))
				}
			}()
			resp := agent.Invoke(ctx, a, req)
			if resp.Err != nil {
				trace.agentFailed(a.Name(), resp.Err)
				logger.Warn("agent failed", zap.String("agent", a.Name()), zap.Error(resp.Err))
			} else {
				logger.Debug("agent answered", zap.String("agent", a.Name()),
					zap.Float64("confidence", resp.Confidence), zap.Int("sources", len(resp.Sources)))
			}
			results[i] = &resp
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AgentAvailability reports which agents hold the credentials they need.
func (o *Orchestrator) AgentAvailability() contract.Availability {
	var out contract.Availability
	for _, a := range o.agents {
		ready := a.Available() == nil
		switch a.Domain() {
		case contract.DomainDocuments:
			out.DocumentsAgentReady = out.DocumentsAgentReady || ready
		case contract.DomainConditions:
			out.ConditionsAgentReady = out.ConditionsAgentReady || ready
		}
	}
	return out
}

// ResolveEffectiveClause exposes the precedence resolver.
func (o *Orchestrator) ResolveEffectiveClause(ctx context.Context, contractID, clause string) (*contract.EffectiveClauseView, error) {
	if o.resolver == nil {
		return nil, fmt.Errorf("precedence resolver is not configured")
	}
	return o.resolver.ResolveEffectiveClause(ctx, contractID, clause)
}
