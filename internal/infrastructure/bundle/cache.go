package bundle

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
	"github.com/kirillkom/readmate-rag/internal/core/ports"
)

// CachedStore is a read-through cache over a BundleStore keyed by doc id.
// Concurrent misses for one document share a single load, and a Save through
// this store drops the cached entry. Saves made by other processes are not
// observed until the entry is evicted.
type CachedStore struct {
	inner      ports.BundleStore
	maxEntries int

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*domain.Bundle
	// generation advances on every Save so a load that raced with it is not cached.
	generation map[string]uint64
}

func NewCachedStore(inner ports.BundleStore, maxEntries int) *CachedStore {
	if maxEntries <= 0 {
		maxEntries = 32
	}
	return &CachedStore{
		inner:      inner,
		maxEntries: maxEntries,
		entries:    make(map[string]*domain.Bundle),
		generation: make(map[string]uint64),
	}
}

var _ ports.BundleStore = (*CachedStore)(nil)

func (c *CachedStore) Save(ctx context.Context, b *domain.Bundle) error {
	err := c.inner.Save(ctx, b)
	if b != nil {
		c.invalidate(b.Meta.DocID)
	}
	return err
}

func (c *CachedStore) Load(ctx context.Context, docID string) (*domain.Bundle, error) {
	c.mu.Lock()
	if b, ok := c.entries[docID]; ok {
		c.mu.Unlock()
		return b, nil
	}
	gen := c.generation[docID]
	c.mu.Unlock()

	v, err, _ := c.group.Do(docID, func() (any, error) {
		b, err := c.inner.Load(ctx, docID)
		if err != nil {
			return nil, err
		}
		c.store(docID, gen, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Bundle), nil
}

func (c *CachedStore) invalidate(docID string) {
	c.mu.Lock()
	delete(c.entries, docID)
	c.generation[docID]++
	c.mu.Unlock()
	c.group.Forget(docID)
}

func (c *CachedStore) store(docID string, gen uint64, b *domain.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[docID] != gen {
		return
	}
	if _, ok := c.entries[docID]; !ok && len(c.entries) >= c.maxEntries {
		for victim := range c.entries {
			delete(c.entries, victim)
			break
		}
	}
	c.entries[docID] = b
}
