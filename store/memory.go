package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/fabfab/contract-agent/contract"
)

// MemoryStore keeps whole contract snapshots in memory. Keyword search runs
// on an in-memory bleve index; embedding search is brute-force cosine.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]*memoryContract
	index     bleve.Index
}

type memoryContract struct {
	snapshot contract.Snapshot
	vectors  map[string][]float32
	byID     map[string]contract.Passage
}

type indexedPassage struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Clause  string `json:"clause"`
}

func NewMemoryStore() (*MemoryStore, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return &MemoryStore{
		contracts: make(map[string]*memoryContract),
		index:     index,
	}, nil
}

// Load replaces the snapshot stored for snapshot.ContractID. vectors maps
// passage IDs to embeddings and may be nil.
func (s *MemoryStore) Load(snapshot contract.Snapshot, vectors map[string][]float32) error {
	if strings.TrimSpace(snapshot.ContractID) == "" {
		return fmt.Errorf("load snapshot: contract id is required: %w", contract.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mc := &memoryContract{
		snapshot: snapshot,
		vectors:  make(map[string][]float32, len(vectors)),
		byID:     make(map[string]contract.Passage, len(snapshot.Passages)),
	}
	for id, vec := range vectors {
		mc.vectors[id] = vec
	}

	batch := s.index.NewBatch()
	for _, p := range snapshot.Passages {
		mc.byID[p.ID] = p
		if err := batch.Index(indexKey(snapshot.ContractID, p.ID), indexedPassage{
			Content: p.Text,
			Title:   p.ClauseTitle,
			Clause:  p.ClauseNumber,
		}); err != nil {
			return fmt.Errorf("index passage %s: %w", p.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit passage index: %w", err)
	}

	previous := s.contracts[snapshot.ContractID]
	s.contracts[snapshot.ContractID] = mc

	// Stale keys are invisible to searches once the new snapshot is in place,
	// so a failed delete leaves the store consistent.
	if previous != nil {
		stale := s.index.NewBatch()
		for id := range previous.byID {
			if _, kept := mc.byID[id]; !kept {
				stale.Delete(indexKey(snapshot.ContractID, id))
			}
		}
		if stale.Size() > 0 {
			if err := s.index.Batch(stale); err != nil {
				return fmt.Errorf("remove stale passages: %w", err)
			}
		}
	}
	return nil
}

func (s *MemoryStore) get(contractID string) *memoryContract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contracts[contractID]
}

func (s *MemoryStore) PassagesByDocumentGroups(_ context.Context, contractID string, groups []contract.Group) ([]contract.Passage, error) {
	mc := s.get(contractID)
	if mc == nil {
		return nil, nil
	}
	var out []contract.Passage
	for _, p := range mc.snapshot.Passages {
		if contract.ContainsGroup(groups, p.Group) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) PassagesByClauseNumber(_ context.Context, contractID, clause string) ([]contract.Passage, error) {
	mc := s.get(contractID)
	if mc == nil {
		return nil, nil
	}
	want := contract.NormalizeClause(clause)
	var out []contract.Passage
	for _, p := range mc.snapshot.Passages {
		if p.HasClause() && contract.NormalizeClause(p.ClauseNumber) == want {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) SearchPassagesByEmbedding(_ context.Context, contractID string, vector []float32, limit int, threshold float64) ([]contract.Passage, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	mc := s.get(contractID)
	if mc == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var out []contract.Passage
	for _, p := range mc.snapshot.Passages {
		vec, ok := mc.vectors[p.ID]
		if !ok {
			continue
		}
		score := cosine(vector, vec)
		if score < threshold {
			continue
		}
		hit := p
		hit.Similarity = &score
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SearchPassagesByText(_ context.Context, contractID, query string, groups []contract.Group, limit int) ([]contract.Passage, error) {
	mc := s.get(contractID)
	if mc == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// The index is shared by every contract, so ask for all hits and filter.
	total, err := s.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("count memory index: %w", err)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), int(total), 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search memory index: %w", err)
	}

	prefix := contractID + "/"
	var out []contract.Passage
	for _, hit := range res.Hits {
		if !strings.HasPrefix(hit.ID, prefix) {
			continue
		}
		p, ok := mc.byID[strings.TrimPrefix(hit.ID, prefix)]
		if !ok || !contract.ContainsGroup(groups, p.Group) {
			continue
		}
		score := hit.Score
		p.Similarity = &score
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Documents(_ context.Context, contractID string) ([]contract.Document, error) {
	mc := s.get(contractID)
	if mc == nil {
		return nil, nil
	}
	return append([]contract.Document(nil), mc.snapshot.Documents...), nil
}

func (s *MemoryStore) Overrides(_ context.Context, contractID string) ([]contract.Override, error) {
	mc := s.get(contractID)
	if mc == nil {
		return nil, nil
	}
	return append([]contract.Override(nil), mc.snapshot.Overrides...), nil
}

// Close releases the keyword index.
func (s *MemoryStore) Close() error {
	return s.index.Close()
}

func indexKey(contractID, passageID string) string {
	return contractID + "/" + passageID
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ TextSearcher = (*MemoryStore)(nil)
)
