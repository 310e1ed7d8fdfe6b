package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/llm"
)

// ClauseResolver resolves the effective version of several clauses at once.
type ClauseResolver interface {
	ResolveMany(ctx context.Context, contractID string, clauses []string) (map[string]*contract.EffectiveClauseView, error)
}

const conditionsRefusal = "I could not find any General or Particular Conditions clauses relevant to this question. Please check that the conditions of contract have been loaded."

var conditionsSearchGroups = []contract.Group{contract.GroupConditions, contract.GroupAddendum}

// ConditionsAgent answers from the conditions of contract and the addendum
// passages that amend numbered clauses. Every clause it cites is passed
// through the precedence resolver first.
type ConditionsAgent struct {
	source   Source
	resolver ClauseResolver
	llm      llm.Client
	llmErr   error
	search   retriever
	logger   *zap.Logger
}

func NewConditionsAgent(source Source, resolver ClauseResolver, embedder embeddings.Embedder, client llm.Client, llmErr error, opts Options, logger *zap.Logger) *ConditionsAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("agent", "conditions"))
	return &ConditionsAgent{
		source:   source,
		resolver: resolver,
		llm:      client,
		llmErr:   llmErr,
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

func (a *ConditionsAgent) Name() string            { return "conditions" }
func (a *ConditionsAgent) Domain() contract.Domain { return contract.DomainConditions }

func (a *ConditionsAgent) Available() error {
	if a.llm == nil || a.llmErr != nil {
		return unavailable(a.Name(), a.llmErr)
	}
	return nil
}

// Retrieve searches the conditions plus clause-numbered addendum passages,
// then adds every passage for clauses named explicitly in the query.
func (a *ConditionsAgent) Retrieve(ctx context.Context, req Request) ([]contract.Passage, error) {
	found, err := a.search.search(ctx, req, conditionsSearchGroups, conditionsPassage)
	if err != nil {
		return nil, err
	}
	for _, clause := range contract.ExtractClauseNumbers(req.Query) {
		named, err := a.source.PassagesByClauseNumber(ctx, req.ContractID, clause)
		if err != nil {
			return nil, fmt.Errorf("load clause %s: %w", clause, err)
		}
		found = mergePassages(found, filter(named, conditionsPassage)...)
	}
	return found, nil
}

func (a *ConditionsAgent) Generate(ctx context.Context, req Request, passages []contract.Passage) (Generation, error) {
	if len(passages) == 0 {
		a.logger.Info("no passages retrieved, refusing", zap.String("contract_id", req.ContractID))
		return Generation{Analysis: conditionsRefusal}, nil
	}

	views := map[string]*contract.EffectiveClauseView{}
	if a.resolver != nil {
		var err error
		views, err = a.resolver.ResolveMany(ctx, req.ContractID, clauseNumbers(passages))
		if err != nil {
			return Generation{}, fmt.Errorf("resolve clause precedence: %w", err)
		}
	}

	// The effective text must be in front of the model even when retrieval
	// only surfaced a superseded version.
	for _, key := range sortedKeys(views) {
		for _, e := range views[key].EffectiveEntries() {
			passages = mergePassages(passages, e.Passage)
		}
	}

	titles := documentTitles(ctx, a.source, req.ContractID, a.logger)
	sources := make([]source, 0, len(passages))
	for _, p := range passages {
		src := source{Passage: p, Title: titleFor(titles, p)}
		if view := views[contract.NormalizeClause(p.ClauseNumber)]; view != nil {
			annotate(&src, view, titles)
		}
		sources = append(sources, src)
	}

	notes, conflicts := precedenceNotes(views, titles)
	user := formatUserPrompt(req.Query, buildContextPrompt(sources), notes)
	answer, err := a.llm.Generate(ctx, buildMessages(conditionsSystemPrompt(), req.History, user))
	if err != nil {
		return Generation{}, fmt.Errorf("llm generate: %w", err)
	}
	return Generation{
		Analysis:  strings.TrimSpace(answer),
		Citations: citations(sources),
		Conflicts: conflicts,
	}, nil
}

func (a *ConditionsAgent) Confidence(passages []contract.Passage) float64 {
	return GroundedConfidence(len(passages))
}

var _ Agent = (*ConditionsAgent)(nil)

func conditionsPassage(p contract.Passage) bool {
	switch p.Group {
	case contract.GroupConditions:
		return true
	case contract.GroupAddendum:
		return p.HasClause()
	default:
		return false
	}
}

func clauseNumbers(passages []contract.Passage) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range passages {
		key := contract.NormalizeClause(p.ClauseNumber)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p.ClauseNumber)
	}
	return out
}

func annotate(src *source, view *contract.EffectiveClauseView, titles map[string]contract.Document) {
	entry, ok := view.Entry(src.Passage.DocumentID)
	if !ok {
		return
	}
	if entry.Effective {
		src.Contested = view.Conflict != nil && len(view.EffectiveEntries()) > 1
		return
	}
	src.Superseded = true
	names := make([]string, 0, len(entry.SupersededBy))
	for _, id := range entry.SupersededBy {
		names = append(names, displayName(view, titles, id))
	}
	src.SupersededBy = strings.Join(names, ", ")
}

// precedenceNotes returns prompt notes for every resolved clause and the
// user-facing conflict messages.
func precedenceNotes(views map[string]*contract.EffectiveClauseView, titles map[string]contract.Document) (notes, conflicts []string) {
	for _, key := range sortedKeys(views) {
		view := views[key]
		if view.Conflict != nil {
			msg := conflictMessage(view.Conflict)
			conflicts = append(conflicts, msg)
			notes = append(notes, msg)
		}
		effective, ok := view.Effective()
		if !ok || len(effective.Supersedes) == 0 {
			continue
		}
		var overridden []string
		for _, id := range effective.Supersedes {
			overridden = append(overridden, displayName(view, titles, id))
		}
		notes = append(notes, fmt.Sprintf("For clause %s, %s overrides %s.",
			view.ClauseNumber, effective.Document.DisplayName(), strings.Join(overridden, ", ")))
	}
	return notes, conflicts
}

func conflictMessage(c *contract.PrecedenceConflict) string {
	return fmt.Sprintf("Clause %s is contested between %s.", c.ClauseNumber, strings.Join(c.Documents, " and "))
}

func displayName(view *contract.EffectiveClauseView, titles map[string]contract.Document, id string) string {
	if e, ok := view.Entry(id); ok {
		return e.Document.DisplayName()
	}
	if d, ok := titles[id]; ok {
		return d.DisplayName()
	}
	return id
}

func sortedKeys(views map[string]*contract.EffectiveClauseView) []string {
	keys := make([]string, 0, len(views))
	for k := range views {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
