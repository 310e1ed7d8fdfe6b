// Package store provides read access to a contract's passages, documents and
// override records. The orchestration core never writes through these
// interfaces.
package store

import (
	"context"

	"github.com/fabfab/contract-agent/contract"
)

type PassageReader interface {
	PassagesByDocumentGroups(ctx context.Context, contractID string, groups []contract.Group) ([]contract.Passage, error)
	PassagesByClauseNumber(ctx context.Context, contractID, clause string) ([]contract.Passage, error)
}

// PassageSearcher ranks passages by cosine similarity to a query vector.
type PassageSearcher interface {
	SearchPassagesByEmbedding(ctx context.Context, contractID string, vector []float32, limit int, threshold float64) ([]contract.Passage, error)
}

// TextSearcher is the keyword fallback used when no embedder is configured.
type TextSearcher interface {
	SearchPassagesByText(ctx context.Context, contractID, query string, groups []contract.Group, limit int) ([]contract.Passage, error)
}

type DocumentReader interface {
	Documents(ctx context.Context, contractID string) ([]contract.Document, error)
}

type OverrideReader interface {
	Overrides(ctx context.Context, contractID string) ([]contract.Override, error)
}

// Store bundles every read capability a backend offers.
type Store interface {
	PassageReader
	PassageSearcher
	DocumentReader
	OverrideReader
}

// Composite serves passages and documents from one backend and overrides from
// another, e.g. Postgres passages with the Neo4j override graph.
type Composite struct {
	Store
	OverrideSource OverrideReader
}

func (c Composite) Overrides(ctx context.Context, contractID string) ([]contract.Override, error) {
	if c.OverrideSource != nil {
		return c.OverrideSource.Overrides(ctx, contractID)
	}
	return c.Store.Overrides(ctx, contractID)
}

// SearchPassagesByText forwards to the wrapped store when it supports keyword
// search.
func (c Composite) SearchPassagesByText(ctx context.Context, contractID, query string, groups []contract.Group, limit int) ([]contract.Passage, error) {
	if ts, ok := c.Store.(TextSearcher); ok {
		return ts.SearchPassagesByText(ctx, contractID, query, groups, limit)
	}
	return nil, nil
}

var (
	_ Store        = Composite{}
	_ TextSearcher = Composite{}
)

func groupStrings(groups []contract.Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = string(g)
	}
	return out
}
