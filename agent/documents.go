package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/llm"
	"github.com/fabfab/contract-agent/store"
)

// Source is the read-only store access the agents need.
type Source interface {
	store.PassageReader
	store.DocumentReader
}

// Options configures retrieval for an agent.
type Options struct {
	RetrievalLimit      int
	SimilarityThreshold float64
}

const documentsRefusal = "I could not find any contract document passages (Agreement, Letter of Acceptance, Addendums, Bill of Quantities or Schedules) relevant to this question. Please check that the contract documents have been loaded."

// DocumentsAgent answers from groups A, B, D, I and N.
type DocumentsAgent struct {
	source Source
	llm    llm.Client
	llmErr error
	search retriever
	logger *zap.Logger
}

// NewDocumentsAgent builds the documents agent. llmErr is the error returned
// when the client was constructed, if any, and makes the agent unavailable.
func NewDocumentsAgent(source Source, embedder embeddings.Embedder, client llm.Client, llmErr error, opts Options, logger *zap.Logger) *DocumentsAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("agent", "documents"))
	return &DocumentsAgent{
		source: source,
		llm:    client,
		llmErr: llmErr,
		search: retriever{
			passages:  source,
			embedder:  embedder,
			limit:     opts.RetrievalLimit,
			threshold: opts.SimilarityThreshold,
			logger:    logger,
		},
		logger: logger,
	}
}

func (a *DocumentsAgent) Name() string            { return "documents" }
func (a *DocumentsAgent) Domain() contract.Domain { return contract.DomainDocuments }

func (a *DocumentsAgent) Available() error {
	if a.llm == nil || a.llmErr != nil {
		return unavailable(a.Name(), a.llmErr)
	}
	return nil
}

func (a *DocumentsAgent) Retrieve(ctx context.Context, req Request) ([]contract.Passage, error) {
	return a.search.search(ctx, req, contract.DocumentsGroups, nil)
}

func (a *DocumentsAgent) Generate(ctx context.Context, req Request, passages []contract.Passage) (Generation, error) {
	if len(passages) == 0 {
		a.logger.Info("no passages retrieved, refusing", zap.String("contract_id", req.ContractID))
		return Generation{Analysis: documentsRefusal}, nil
	}

	titles := documentTitles(ctx, a.source, req.ContractID, a.logger)
	sources := make([]source, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, source{Passage: p, Title: titleFor(titles, p)})
	}

	user := formatUserPrompt(req.Query, buildContextPrompt(sources), nil)
	answer, err := a.llm.Generate(ctx, buildMessages(documentsSystemPrompt(), req.History, user))
	if err != nil {
		return Generation{}, fmt.Errorf("llm generate: %w", err)
	}
	return Generation{
		Analysis:  strings.TrimSpace(answer),
		Citations: citations(sources),
	}, nil
}

func (a *DocumentsAgent) Confidence(passages []contract.Passage) float64 {
	return GroundedConfidence(len(passages))
}

var _ Agent = (*DocumentsAgent)(nil)

func documentTitles(ctx context.Context, src store.DocumentReader, contractID string, logger *zap.Logger) map[string]contract.Document {
	docs, err := src.Documents(ctx, contractID)
	if err != nil {
		logger.Warn("load document titles", zap.Error(err))
		return nil
	}
	out := make(map[string]contract.Document, len(docs))
	for _, d := range docs {
		out[d.ID] = d
	}
	return out
}

func titleFor(docs map[string]contract.Document, p contract.Passage) string {
	if d, ok := docs[p.DocumentID]; ok {
		return d.DisplayName()
	}
	return contract.Document{ID: p.DocumentID, Group: p.Group}.DisplayName()
}
