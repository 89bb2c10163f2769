package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ecosim/internal/model"
)

// MemoryRepository keeps all entities in process memory. It is safe for concurrent use.
type MemoryRepository struct {
	mu        sync.RWMutex
	resources map[string]model.Resource
	markets   map[string]model.Market
	routes    map[string]model.TradeRoute
	now       func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		resources: make(map[string]model.Resource),
		markets:   make(map[string]model.Market),
		routes:    make(map[string]model.TradeRoute),
		now:       time.Now,
	}
}

func (r *MemoryRepository) GetResource(_ context.Context, id string) (model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	if !ok {
		return model.Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return res, nil
}

func (r *MemoryRepository) GetResourcesByRegion(_ context.Context, regionID string) ([]model.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Resource
	for _, res := range r.resources {
		if res.RegionID == regionID {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateResource(_ context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[res.ID]; exists {
		return fmt.Errorf("resource %s already exists", res.ID)
	}
	now := r.now()
	res.CreatedAt, res.UpdatedAt = now, now
	r.resources[res.ID] = res
	return nil
}

func (r *MemoryRepository) UpdateResource(_ context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.resources[res.ID]
	if !ok {
		return fmt.Errorf("resource %s: %w", res.ID, ErrNotFound)
	}
	res.CreatedAt = prev.CreatedAt
	res.UpdatedAt = r.now()
	r.resources[res.ID] = res
	return nil
}

func (r *MemoryRepository) DeleteResource(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[id]; !ok {
		return fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	delete(r.resources, id)
	return nil
}

func (r *MemoryRepository) GetMarket(_ context.Context, id string) (model.Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return model.Market{}, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (r *MemoryRepository) GetMarketsByRegion(_ context.Context, regionID string) ([]model.Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Market
	for _, m := range r.markets {
		if m.RegionID == regionID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateMarket(_ context.Context, m model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}
	now := r.now()
	m.CreatedAt, m.UpdatedAt = now, now
	r.markets[m.ID] = m.Clone()
	return nil
}

func (r *MemoryRepository) UpdateMarket(_ context.Context, m model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.markets[m.ID]
	if !ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrNotFound)
	}
	m.CreatedAt = prev.CreatedAt
	m.UpdatedAt = r.now()
	r.markets[m.ID] = m.Clone()
	return nil
}

func (r *MemoryRepository) DeleteMarket(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[id]; !ok {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	delete(r.markets, id)
	return nil
}

func (r *MemoryRepository) GetTradeRoute(_ context.Context, id string) (model.TradeRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[id]
	if !ok {
		return model.TradeRoute{}, fmt.Errorf("trade route %s: %w", id, ErrNotFound)
	}
	return cloneRoute(route), nil
}

func (r *MemoryRepository) GetTradeRoutesByRegion(_ context.Context, regionID string, asOrigin, asDestination bool) ([]model.TradeRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.TradeRoute
	for _, route := range r.routes {
		if (asOrigin && route.OriginRegionID == regionID) || (asDestination && route.DestinationRegionID == regionID) {
			out = append(out, cloneRoute(route))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) GetActiveTradeRoutes(_ context.Context) ([]model.TradeRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.TradeRoute
	for _, route := range r.routes {
		if route.IsActive {
			out = append(out, cloneRoute(route))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) CreateTradeRoute(_ context.Context, route model.TradeRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[route.ID]; exists {
		return fmt.Errorf("trade route %s already exists", route.ID)
	}
	now := r.now()
	route.CreatedAt, route.UpdatedAt = now, now
	r.routes[route.ID] = cloneRoute(route)
	return nil
}

func (r *MemoryRepository) UpdateTradeRoute(_ context.Context, route model.TradeRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.routes[route.ID]
	if !ok {
		return fmt.Errorf("trade route %s: %w", route.ID, ErrNotFound)
	}
	route.CreatedAt = prev.CreatedAt
	route.UpdatedAt = r.now()
	r.routes[route.ID] = cloneRoute(route)
	return nil
}

func (r *MemoryRepository) DeleteTradeRoute(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routes[id]; !ok {
		return fmt.Errorf("trade route %s: %w", id, ErrNotFound)
	}
	delete(r.routes, id)
	return nil
}

func (r *MemoryRepository) TransferResource(_ context.Context, t Transfer) (TransferResult, error) {
	if err := validateTransfer(t); err != nil {
		return TransferResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	origin, ok := r.resources[t.OriginResourceID]
	if !ok {
		return TransferResult{}, fmt.Errorf("resource %s: %w", t.OriginResourceID, ErrNotFound)
	}
	if origin.RegionID == t.DestinationRegionID {
		return TransferResult{}, fmt.Errorf("%w: transfer within region %s", model.ErrValidation, origin.RegionID)
	}
	if t.Amount > origin.Amount {
		return TransferResult{}, fmt.Errorf("resource %s holds %v, requested %v: %w", origin.ID, origin.Amount, t.Amount, ErrInsufficientQuantity)
	}

	var (
		dest    model.Resource
		found   bool
		created bool
	)
	ids := make([]string, 0, len(r.resources))
	for id := range r.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if matchesDestination(origin, r.resources[id], t.DestinationRegionID) {
			dest, found = r.resources[id], true
			break
		}
	}
	now := r.now()
	if !found {
		dest = newDestination(origin, t)
		if _, clash := r.resources[dest.ID]; clash || dest.ID == "" {
			return TransferResult{}, fmt.Errorf("%w: cannot create destination resource %q", model.ErrValidation, dest.ID)
		}
		dest.CreatedAt = now
		created = true
	}

	origin.Amount -= t.Amount
	if origin.Amount < 0 {
		origin.Amount = 0
	}
	dest.Amount += t.Amount
	origin.UpdatedAt, dest.UpdatedAt = now, now

	r.resources[origin.ID] = origin
	r.resources[dest.ID] = dest
	return TransferResult{Origin: origin, Destination: dest, Created: created}, nil
}

func cloneRoute(route model.TradeRoute) model.TradeRoute {
	if route.ResourceMapping != nil {
		m := make(map[string]float64, len(route.ResourceMapping))
		for k, v := range route.ResourceMapping {
			m[k] = v
		}
		route.ResourceMapping = m
	}
	return route
}
