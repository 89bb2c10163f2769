// Package seed loads YAML world fixtures into a repository.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ecosim/internal/config"
	"ecosim/internal/database"
	"ecosim/internal/model"
)

// World is the content of a fixture file.
type World struct {
	Resources   []model.Resource   `yaml:"resources"`
	Markets     []model.Market     `yaml:"markets"`
	TradeRoutes []model.TradeRoute `yaml:"trade_routes"`
}

// Defaults fill market fields a fixture leaves out.
type Defaults struct {
	Volatility float64
}

// DefaultsFrom takes the market defaults from the economy settings.
func DefaultsFrom(cfg config.EconomyConfig) Defaults {
	return Defaults{Volatility: cfg.DefaultVolatility}
}

// document defers market decoding so absent keys keep their defaults.
type document struct {
	Resources   []model.Resource   `yaml:"resources"`
	Markets     []yaml.Node        `yaml:"markets"`
	TradeRoutes []model.TradeRoute `yaml:"trade_routes"`
}

// Load reads and validates a fixture file.
func Load(path string, d Defaults) (World, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return World{}, err
	}
	w, err := Parse(b, d)
	if err != nil {
		return World{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes and validates fixture YAML. Markets without a type are general markets and
// markets without a volatility get d.Volatility; an explicit zero is kept.
func Parse(b []byte, d Defaults) (World, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return World{}, err
	}
	w := World{Resources: doc.Resources, TradeRoutes: doc.TradeRoutes}
	for i := range doc.Markets {
		m := model.Market{Type: model.MarketGeneral, Volatility: d.Volatility}
		if err := doc.Markets[i].Decode(&m); err != nil {
			return World{}, err
		}
		w.Markets = append(w.Markets, m)
	}
	if err := w.Validate(); err != nil {
		return World{}, err
	}
	return w, nil
}

// Validate checks every entity and rejects duplicate ids.
func (w World) Validate() error {
	seen := make(map[string]bool)
	unique := func(kind, id string) error {
		key := kind + "/" + id
		if seen[key] {
			return fmt.Errorf("%w: duplicate %s id %q", model.ErrValidation, kind, id)
		}
		seen[key] = true
		return nil
	}
	for _, r := range w.Resources {
		if err := r.Validate(); err != nil {
			return err
		}
		if err := unique("resource", r.ID); err != nil {
			return err
		}
	}
	for _, m := range w.Markets {
		if m.Type == "" {
			m.Type = model.MarketGeneral
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if err := unique("market", m.ID); err != nil {
			return err
		}
	}
	for _, r := range w.TradeRoutes {
		if err := r.Validate(); err != nil {
			return err
		}
		if err := unique("route", r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Apply creates every entity in repo, overwriting entities that already exist.
func (w World) Apply(ctx context.Context, repo database.Repository) error {
	for _, r := range w.Resources {
		_, err := repo.GetResource(ctx, r.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			err = repo.CreateResource(ctx, r)
		case err == nil:
			err = repo.UpdateResource(ctx, r)
		}
		if err != nil {
			return fmt.Errorf("seed resource %s: %w", r.ID, err)
		}
	}
	for _, m := range w.Markets {
		if m.Type == "" {
			m.Type = model.MarketGeneral
		}
		_, err := repo.GetMarket(ctx, m.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			err = repo.CreateMarket(ctx, m)
		case err == nil:
			err = repo.UpdateMarket(ctx, m)
		}
		if err != nil {
			return fmt.Errorf("seed market %s: %w", m.ID, err)
		}
	}
	for _, r := range w.TradeRoutes {
		_, err := repo.GetTradeRoute(ctx, r.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			err = repo.CreateTradeRoute(ctx, r)
		case err == nil:
			err = repo.UpdateTradeRoute(ctx, r)
		}
		if err != nil {
			return fmt.Errorf("seed trade route %s: %w", r.ID, err)
		}
	}
	return nil
}
