package embeddings

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Cached memoises query embeddings. Both specialist agents embed the same
// query for every request, so the second lookup is usually a hit.
type Cached struct {
	next     Embedder
	capacity int

	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List
}

type cacheEntry struct {
	key   string
	value []float32
}

func NewCached(next Embedder, capacity int) *Cached {
	if capacity <= 0 {
		capacity = 512
	}
	return &Cached{
		next:     next,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missing    []string
		missingIdx []int
	)

	c.mu.Lock()
	for i, text := range texts {
		if elem, ok := c.items[text]; ok {
			c.lru.MoveToFront(elem)
			results[i] = elem.Value.(*cacheEntry).value
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: asked %d, got %d", len(missing), len(vectors))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, vec := range vectors {
		results[missingIdx[j]] = vec
		c.set(missing[j], vec)
	}
	return results, nil
}

func (c *Cached) set(key string, value []float32) {
	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}
	if c.lru.Len() >= c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, value: value})
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

var _ Embedder = (*Cached)(nil)
