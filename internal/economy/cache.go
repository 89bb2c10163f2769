package economy

import (
	"context"
	"sync"

	"ecosim/internal/database"
	"ecosim/internal/model"
)

// Cache memoizes region-scoped reads. Writes made through the Engine are applied to
// cached entries; anything written behind the engine's back needs Clear or Invalidate.
type Cache struct {
	mu        sync.Mutex
	resources map[string][]model.Resource
	markets   map[string][]model.Market
	hits      int
	misses    int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		resources: make(map[string][]model.Resource),
		markets:   make(map[string][]model.Market),
	}
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = make(map[string][]model.Resource)
	c.markets = make(map[string][]model.Market)
}

// Invalidate drops the entries of one region.
func (c *Cache) Invalidate(regionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.resources, regionID)
	delete(c.markets, regionID)
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) resourcesByRegion(ctx context.Context, repo database.Repository, regionID string) ([]model.Resource, error) {
	c.mu.Lock()
	if cached, ok := c.resources[regionID]; ok {
		c.hits++
		out := append([]model.Resource(nil), cached...)
		c.mu.Unlock()
		return out, nil
	}
	c.misses++
	c.mu.Unlock()

	loaded, err := repo.GetResourcesByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.resources[regionID] = append([]model.Resource(nil), loaded...)
	c.mu.Unlock()
	return loaded, nil
}

func (c *Cache) marketsByRegion(ctx context.Context, repo database.Repository, regionID string) ([]model.Market, error) {
	c.mu.Lock()
	if cached, ok := c.markets[regionID]; ok {
		c.hits++
		out := make([]model.Market, len(cached))
		for i, m := range cached {
			out[i] = m.Clone()
		}
		c.mu.Unlock()
		return out, nil
	}
	c.misses++
	c.mu.Unlock()

	loaded, err := repo.GetMarketsByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	stored := make([]model.Market, len(loaded))
	for i, m := range loaded {
		stored[i] = m.Clone()
	}
	c.mu.Lock()
	c.markets[regionID] = stored
	c.mu.Unlock()
	return loaded, nil
}

func (c *Cache) putResource(r model.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.resources[r.RegionID]
	if !ok {
		return
	}
	for i := range cached {
		if cached[i].ID == r.ID {
			cached[i] = r
			return
		}
	}
	// a resource created in a cached region; reload on next read to keep repository order
	delete(c.resources, r.RegionID)
}

func (c *Cache) putMarket(m model.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.markets[m.RegionID]
	if !ok {
		return
	}
	for i := range cached {
		if cached[i].ID == m.ID {
			cached[i] = m.Clone()
			return
		}
	}
	delete(c.markets, m.RegionID)
}
