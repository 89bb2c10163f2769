// Package economy implements pricing, market conditions, trade routes, tax and price
// index aggregation, economic events and forecasts over a repository of regional state.
package economy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ecosim/internal/config"
	"ecosim/internal/database"
	"ecosim/internal/model"
	"ecosim/internal/random"
)

// Drift and event clamps applied by the conditions updater.
const (
	driftMinModifier = 0.5
	driftMaxModifier = 2.0
	eventMinModifier = 0.1
	eventMaxModifier = 5.0
)

// Engine holds the economic components and the state they share.
type Engine struct {
	logger *slog.Logger
	repo   database.Repository
	cfg    config.EconomyConfig
	rng    random.Source
	cache  *Cache

	now   func() time.Time
	newID func() string
}

// NewEngine creates a new instance of the Engine. The cache is owned by the caller;
// a nil cache gets a private one.
func NewEngine(logger *slog.Logger, repo database.Repository, cfg *config.Config, rng random.Source, cache *Cache) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	return &Engine{
		logger: logger,
		repo:   repo,
		cfg:    cfg.Economy,
		rng:    rng,
		cache:  cache,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClock replaces the time source used to stamp events and updates.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Cache returns the read cache shared by the components.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Repository returns the store the engine reads and writes.
func (e *Engine) Repository() database.Repository {
	return e.repo
}

func (e *Engine) resources(ctx context.Context, regionID string) ([]model.Resource, error) {
	return e.cache.resourcesByRegion(ctx, e.repo, regionID)
}

func (e *Engine) markets(ctx context.Context, regionID string) ([]model.Market, error) {
	return e.cache.marketsByRegion(ctx, e.repo, regionID)
}

func (e *Engine) saveMarket(ctx context.Context, m model.Market) error {
	if err := e.repo.UpdateMarket(ctx, m); err != nil {
		e.cache.Invalidate(m.RegionID)
		return err
	}
	e.cache.putMarket(m)
	return nil
}

func (e *Engine) saveResource(ctx context.Context, r model.Resource) error {
	if err := e.repo.UpdateResource(ctx, r); err != nil {
		e.cache.Invalidate(r.RegionID)
		return err
	}
	e.cache.putResource(r)
	return nil
}

// SaveMarket writes a market through the cache.
func (e *Engine) SaveMarket(ctx context.Context, m model.Market) error {
	return e.saveMarket(ctx, m)
}

// SaveResource writes a resource through the cache.
func (e *Engine) SaveResource(ctx context.Context, r model.Resource) error {
	return e.saveResource(ctx, r)
}

// Resources returns the resources of a region through the cache.
func (e *Engine) Resources(ctx context.Context, regionID string) ([]model.Resource, error) {
	return e.resources(ctx, regionID)
}

// Markets returns the markets of a region through the cache.
func (e *Engine) Markets(ctx context.Context, regionID string) ([]model.Market, error) {
	return e.markets(ctx, regionID)
}
