package agent

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/contract"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/store"
)

const (
	defaultRetrievalLimit      = 15
	defaultSimilarityThreshold = 0.3
)

// retriever searches one domain: semantic search first, then keyword search,
// then a plain group listing.
type retriever struct {
	passages  store.PassageReader
	embedder  embeddings.Embedder
	limit     int
	threshold float64
	logger    *zap.Logger
}

func (r *retriever) search(ctx context.Context, req Request, groups []contract.Group, keep func(contract.Passage) bool) ([]contract.Passage, error) {
	if r.passages == nil {
		return nil, fmt.Errorf("passage store is not configured")
	}
	if keep == nil {
		keep = func(contract.Passage) bool { return true }
	}
	limit := r.limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	if searcher, ok := r.passages.(store.PassageSearcher); ok && r.embedder != nil {
		found, err := r.semantic(ctx, searcher, req, groups, keep, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("semantic retrieval failed, falling back", zap.Error(err))
		} else if len(found) > 0 {
			return found, nil
		}
	}

	if ts, ok := r.passages.(store.TextSearcher); ok {
		found, err := ts.SearchPassagesByText(ctx, req.ContractID, req.Query, groups, limit*2)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("keyword retrieval failed, falling back", zap.Error(err))
		} else if found = filter(found, keep); len(found) > 0 {
			return truncatePassages(found, limit), nil
		}
	}

	listed, err := r.passages.PassagesByDocumentGroups(ctx, req.ContractID, groups)
	if err != nil {
		return nil, fmt.Errorf("list passages by group: %w", err)
	}
	return truncatePassages(filter(listed, keep), limit), nil
}

func (r *retriever) semantic(ctx context.Context, searcher store.PassageSearcher, req Request, groups []contract.Group, keep func(contract.Passage) bool, limit int) ([]contract.Passage, error) {
	vectors, err := r.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	threshold := r.threshold
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	// Over-fetch since the store search is not group aware.
	hits, err := searcher.SearchPassagesByEmbedding(ctx, req.ContractID, vectors[0], limit*3, threshold)
	if err != nil {
		return nil, fmt.Errorf("search passages by embedding: %w", err)
	}

	var out []contract.Passage
	for _, p := range hits {
		if contract.ContainsGroup(groups, p.Group) && keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return similarity(out[i]) > similarity(out[j])
	})
	return truncatePassages(out, limit), nil
}

func filter(passages []contract.Passage, keep func(contract.Passage) bool) []contract.Passage {
	out := passages[:0:0]
	for _, p := range passages {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func truncatePassages(passages []contract.Passage, limit int) []contract.Passage {
	if limit > 0 && len(passages) > limit {
		return passages[:limit]
	}
	return passages
}

func similarity(p contract.Passage) float64 {
	if p.Similarity == nil {
		return 0
	}
	return *p.Similarity
}

// mergePassages appends extra passages whose IDs are not already present.
func mergePassages(base []contract.Passage, extra ...contract.Passage) []contract.Passage {
	seen := make(map[string]struct{}, len(base))
	for _, p := range base {
		seen[p.ID] = struct{}{}
	}
	for _, p := range extra {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		base = append(base, p)
	}
	return base
}
