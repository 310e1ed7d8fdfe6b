// Package precedence decides which document's text is legally effective for a
// clause. Documents are ranked by their fixed group order, lifted by explicit
// override records, and tie-broken within a group by sequence, effective date
// and creation time. Contradictory overrides are reported, not resolved.
package precedence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/store"
)

// overrideLift separates override depths so that any overriding document
// outranks every document that overrides nothing, whatever their groups.
const overrideLift = 10

// Source is the read-only data the resolver needs.
type Source interface {
	store.PassageReader
	store.DocumentReader
	store.OverrideReader
}

type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// ResolveEffectiveClause builds the ranked view for clause. It returns a
// *contract.NotFoundError when no passage references the clause.
func (r *Resolver) ResolveEffectiveClause(ctx context.Context, contractID, clause string) (*contract.EffectiveClauseView, error) {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, fmt.Errorf("clause number is required: %w", contract.ErrInvalidInput)
	}
	if r.source == nil {
		return nil, fmt.Errorf("precedence source is not configured")
	}

	passages, err := r.source.PassagesByClauseNumber(ctx, contractID, clause)
	if err != nil {
		return nil, fmt.Errorf("load clause passages: %w", err)
	}
	if len(passages) == 0 {
		return nil, &contract.NotFoundError{ContractID: contractID, ClauseNumber: clause}
	}

	docs, err := r.source.Documents(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	overrides, err := r.source.Overrides(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	return Resolve(contractID, clause, passages, docs, overrides), nil
}

// ResolveMany resolves each clause, skipping clauses that no passage
// references. Results are keyed by normalized clause number.
func (r *Resolver) ResolveMany(ctx context.Context, contractID string, clauses []string) (map[string]*contract.EffectiveClauseView, error) {
	views := make(map[string]*contract.EffectiveClauseView, len(clauses))
	for _, clause := range clauses {
		key := contract.NormalizeClause(clause)
		if key == "" {
			continue
		}
		if _, done := views[key]; done {
			continue
		}
		view, err := r.ResolveEffectiveClause(ctx, contractID, clause)
		if err != nil {
			var nf *contract.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		views[key] = view
	}
	return views, nil
}

// IsOverridden reports whether any override names documentID as the
// overridden side for a scope containing clause, or with no clause scope.
func (r *Resolver) IsOverridden(ctx context.Context, contractID, documentID, clause string) (bool, error) {
	if r.source == nil {
		return false, fmt.Errorf("precedence source is not configured")
	}
	overrides, err := r.source.Overrides(ctx, contractID)
	if err != nil {
		return false, fmt.Errorf("load overrides: %w", err)
	}
	return IsOverridden(overrides, documentID, clause), nil
}

// IsOverridden is the pure form of Resolver.IsOverridden.
func IsOverridden(overrides []contract.Override, documentID, clause string) bool {
	for _, o := range overrides {
		if o.OverriddenID == documentID && o.Covers(clause) {
			return true
		}
	}
	return false
}

// Resolve computes the view from an already loaded snapshot. It is
// deterministic: the same inputs always yield the same entries in the same
// order.
func Resolve(contractID, clause string, passages []contract.Passage, docs []contract.Document, overrides []contract.Override) *contract.EffectiveClauseView {
	view := &contract.EffectiveClauseView{ContractID: contractID, ClauseNumber: clause}

	byID := make(map[string]contract.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	// One entry per document; the first passage wins.
	index := make(map[string]int)
	for _, p := range passages {
		if _, seen := index[p.DocumentID]; seen {
			continue
		}
		doc, ok := byID[p.DocumentID]
		if !ok {
			doc = contract.Document{ID: p.DocumentID, Group: p.Group}
		}
		index[p.DocumentID] = len(view.Entries)
		view.Entries = append(view.Entries, contract.ClauseEntry{
			Document: doc,
			Passage:  p,
			BaseRank: contract.BaseRank(doc.Group),
		})
	}

	g := buildGraph(view.Entries, overrides, clause)
	depth, component := g.depth, g.component

	for i := range view.Entries {
		view.Entries[i].Priority = float64(overrideLift*depth[i] + view.Entries[i].BaseRank)
	}
	// Members of a contradictory cycle share the highest priority among them
	// so that none is preferred over the other.
	for _, members := range g.cycles() {
		best := 0.0
		for _, m := range members {
			if view.Entries[m].Priority > best {
				best = view.Entries[m].Priority
			}
		}
		for _, m := range members {
			view.Entries[m].Priority = best
		}
	}

	superseded := make([]bool, len(view.Entries))
	for from, targets := range g.edges {
		for _, to := range targets {
			if component[from] != component[to] {
				superseded[to] = true
			}
		}
	}

	order := make([]int, len(view.Entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ranksBefore(view.Entries[order[a]], view.Entries[order[b]])
	})

	effective := pickEffective(order, superseded, g)
	if len(effective) > 1 {
		conflict := &contract.PrecedenceConflict{ClauseNumber: clause}
		for _, idx := range effective {
			conflict.DocumentIDs = append(conflict.DocumentIDs, view.Entries[idx].Document.ID)
			conflict.Documents = append(conflict.Documents, view.Entries[idx].Document.DisplayName())
		}
		view.Conflict = conflict
	} else if members := g.cycles(); len(members) > 0 {
		// A contradiction that does not reach the top is still reported.
		conflict := &contract.PrecedenceConflict{ClauseNumber: clause}
		for _, m := range members[0] {
			conflict.DocumentIDs = append(conflict.DocumentIDs, view.Entries[m].Document.ID)
			conflict.Documents = append(conflict.Documents, view.Entries[m].Document.DisplayName())
		}
		view.Conflict = conflict
	}

	isEffective := make(map[int]bool, len(effective))
	var effectiveIDs []string
	for _, idx := range effective {
		isEffective[idx] = true
		view.Entries[idx].Effective = true
		effectiveIDs = append(effectiveIDs, view.Entries[idx].Document.ID)
	}

	for i := range view.Entries {
		if isEffective[i] {
			for _, j := range order {
				if !isEffective[j] {
					view.Entries[i].Supersedes = append(view.Entries[i].Supersedes, view.Entries[j].Document.ID)
				}
			}
			continue
		}
		if direct := g.overriders(i); len(direct) > 0 {
			for _, from := range direct {
				view.Entries[i].SupersededBy = append(view.Entries[i].SupersededBy, view.Entries[from].Document.ID)
			}
		} else {
			view.Entries[i].SupersededBy = append([]string(nil), effectiveIDs...)
		}
	}

	sorted := make([]contract.ClauseEntry, len(order))
	for pos, idx := range order {
		sorted[pos] = view.Entries[idx]
	}
	view.Entries = sorted
	return view
}

func pickEffective(order []int, superseded []bool, g *graph) []int {
	component := g.component
	top := -1
	for _, idx := range order {
		if !superseded[idx] {
			top = idx
			break
		}
	}
	if top < 0 {
		// Every entry is overridden from outside its own component; only
		// possible with malformed data. Fall back to the highest ranked entry.
		return []int{order[0]}
	}
	if !g.cyclic[component[top]] {
		return []int{top}
	}
	var contested []int
	for _, idx := range order {
		if component[idx] == component[top] && !superseded[idx] {
			contested = append(contested, idx)
		}
	}
	return contested
}

// ranksBefore orders by priority, then sequence, then effective date, then
// creation time, all descending, then by document ID for a total order.
func ranksBefore(a, b contract.ClauseEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Document.Sequence != b.Document.Sequence {
		return a.Document.Sequence > b.Document.Sequence
	}
	ad, bd := a.Document.EffectiveDate, b.Document.EffectiveDate
	switch {
	case ad != nil && bd == nil:
		return true
	case ad == nil && bd != nil:
		return false
	case ad != nil && bd != nil && !ad.Equal(*bd):
		return ad.After(*bd)
	}
	if !a.Document.CreatedAt.Equal(b.Document.CreatedAt) {
		return a.Document.CreatedAt.After(b.Document.CreatedAt)
	}
	return a.Document.ID < b.Document.ID
}
