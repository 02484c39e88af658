// Package blocks evaluates dynamic block rule sets against provider records
// and renders the qualifying items as HTML fragments.
package blocks

import (
	"context"
	"sync"

	"github.com/jonathan/contract-processor/internal/types"
	"golang.org/x/sync/singleflight"
)

// Loader fetches dynamic block definitions from the record store.
// A missing definition is reported as (nil, nil).
type Loader interface {
	GetDynamicBlock(ctx context.Context, id string) (*types.DynamicBlock, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, id string) (*types.DynamicBlock, error)

// GetDynamicBlock calls f(ctx, id).
func (f LoaderFunc) GetDynamicBlock(ctx context.Context, id string) (*types.DynamicBlock, error) {
	return f(ctx, id)
}

// Cache holds dynamic block definitions loaded once per id. Entries are
// never mutated after insertion; concurrent first loads for the same id
// share one fetch. The mutex only guards map access and is never held
// while the loader runs.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*types.DynamicBlock
	group   singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*types.DynamicBlock)}
}

// Get returns a cached definition.
func (c *Cache) Get(id string) (*types.DynamicBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.entries[id]
	return block, ok
}

// Load returns the cached definition for id, fetching it through loader on
// first use. Missing definitions are not cached so that blocks created later
// are picked up. The shared fetch outlives any single caller; a caller whose
// ctx ends stops waiting without failing the others.
func (c *Cache) Load(ctx context.Context, id string, loader Loader) (*types.DynamicBlock, error) {
	if block, ok := c.Get(id); ok {
		return block, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		if block, ok := c.Get(id); ok {
			return block, nil
		}
		block, err := loader.GetDynamicBlock(fetchCtx, id)
		if err != nil || block == nil {
			return block, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		// First writer wins; a racing insert holds the same canonical definition
		if existing, ok := c.entries[id]; ok {
			return existing, nil
		}
		c.entries[id] = block
		return block, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		block, _ := res.Val.(*types.DynamicBlock)
		return block, nil
	}
}

// Invalidate drops one definition so the next Load refetches it.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear drops every cached definition.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*types.DynamicBlock)
}

// Len reports the number of cached definitions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
