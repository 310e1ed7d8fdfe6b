package store

import (
	"context"
	"errors"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/contract-agent/contract"
)

func sampleSnapshot(id string) contract.Snapshot {
	return contract.Snapshot{
		ContractID: id,
		Documents: []contract.Document{
			{ID: "agr", Title: "Contract Agreement", Group: contract.GroupAgreement},
			{ID: "gc", Title: "General Conditions", Group: contract.GroupConditions},
		},
		Passages: []contract.Passage{
			{ID: "agr-1", DocumentID: "agr", Group: contract.GroupAgreement, Text: "The Contract Price is payable in monthly instalments."},
			{ID: "gc-14.1", DocumentID: "gc", Group: contract.GroupConditions, ClauseNumber: "14.1", ClauseTitle: "The Contract Price", Text: "The Contract Price shall be the lump sum."},
			{ID: "gc-8.1", DocumentID: "gc", Group: contract.GroupConditions, ClauseNumber: "8.1", Text: "The Contractor shall commence the Works."},
		},
		Overrides: []contract.Override{{ID: "o1", OverridingID: "agr", OverriddenID: "gc", Scope: "price"}},
	}
}

func newLoadedStore(t *testing.T, snapshots ...contract.Snapshot) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	for _, snap := range snapshots {
		require.NoError(t, s.Load(snap, map[string][]float32{
			"agr-1":   {1, 0},
			"gc-14.1": {0.8, 0.6},
			"gc-8.1":  {0, 1},
		}))
	}
	return s
}

func TestMemoryStoreRequiresContractID(t *testing.T) {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	defer s.Close()
	assert.ErrorIs(t, s.Load(contract.Snapshot{}, nil), contract.ErrInvalidInput)
}

func TestMemoryStoreLookups(t *testing.T) {
	s := newLoadedStore(t, sampleSnapshot("c1"))
	ctx := context.Background()

	byGroup, err := s.PassagesByDocumentGroups(ctx, "c1", []contract.Group{contract.GroupConditions})
	require.NoError(t, err)
	assert.Len(t, byGroup, 2)

	byClause, err := s.PassagesByClauseNumber(ctx, "c1", "Clause 14.1")
	require.NoError(t, err)
	require.Len(t, byClause, 1)
	assert.Equal(t, "gc-14.1", byClause[0].ID)

	docs, err := s.Documents(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	overrides, err := s.Overrides(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, overrides, 1)

	unknown, err := s.PassagesByClauseNumber(ctx, "missing", "14.1")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestMemoryStoreEmbeddingSearch(t *testing.T) {
	s := newLoadedStore(t, sampleSnapshot("c1"))

	hits, err := s.SearchPassagesByEmbedding(context.Background(), "c1", []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "agr-1", hits[0].ID)
	assert.Equal(t, "gc-14.1", hits[1].ID)
	assert.InDelta(t, 0.8, *hits[1].Similarity, 1e-6)

	hits, err = s.SearchPassagesByEmbedding(context.Background(), "c1", []float32{1, 0}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.SearchPassagesByEmbedding(context.Background(), "c1", nil, 1, 0)
	assert.Error(t, err)
}

func TestMemoryStoreTextSearchIsScopedToContract(t *testing.T) {
	other := sampleSnapshot("c2")
	s := newLoadedStore(t, sampleSnapshot("c1"), other)
	ctx := context.Background()

	hits, err := s.SearchPassagesByText(ctx, "c1", "contract price", []contract.Group{contract.GroupConditions}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "gc-14.1", hits[0].ID)
	assert.NotNil(t, hits[0].Similarity)

	hits, err = s.SearchPassagesByText(ctx, "c1", "contract price", []contract.Group{contract.GroupAgreement, contract.GroupConditions}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMemoryStoreReloadReplacesIndex(t *testing.T) {
	s := newLoadedStore(t, sampleSnapshot("c1"))
	ctx := context.Background()

	snap := sampleSnapshot("c1")
	snap.Passages = snap.Passages[2:]
	require.NoError(t, s.Load(snap, nil))

	hits, err := s.SearchPassagesByText(ctx, "c1", "price", []contract.Group{contract.GroupAgreement, contract.GroupConditions}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchPassagesByText(ctx, "c1", "commence", []contract.Group{contract.GroupConditions}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

// bleveIndex lets failingBatchIndex embed bleve.Index without the field name
// shadowing the interface's Index method.
type bleveIndex = bleve.Index

type failingBatchIndex struct {
	bleveIndex
}

func (failingBatchIndex) Batch(*bleve.Batch) error {
	return errors.New("index closed")
}

func TestMemoryStoreFailedReloadKeepsPreviousIndex(t *testing.T) {
	s := newLoadedStore(t, sampleSnapshot("c1"))
	ctx := context.Background()
	healthy := s.index
	s.index = failingBatchIndex{bleveIndex: healthy}

	snap := sampleSnapshot("c1")
	snap.Passages = snap.Passages[2:]
	err := s.Load(snap, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit passage index")

	s.index = healthy
	hits, err := s.SearchPassagesByText(ctx, "c1", "price", []contract.Group{contract.GroupAgreement, contract.GroupConditions}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	docs, err := s.Documents(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

type fixedOverrides []contract.Override

func (f fixedOverrides) Overrides(context.Context, string) ([]contract.Override, error) {
	return f, nil
}

func TestCompositeOverrideSource(t *testing.T) {
	s := newLoadedStore(t, sampleSnapshot("c1"))
	ctx := context.Background()

	c := Composite{Store: s}
	got, err := c.Overrides(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	c.OverrideSource = fixedOverrides{}
	got, err = c.Overrides(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got)

	hits, err := c.SearchPassagesByText(ctx, "c1", "commence", []contract.Group{contract.GroupConditions}, 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
