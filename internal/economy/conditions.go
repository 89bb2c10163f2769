package economy

import (
	"context"
	"fmt"
	"sort"

	"ecosim/internal/model"
)

// UpdateMarketConditions drifts every stored price modifier of the region's markets and then
// applies the optional event modifiers (resource id -> multiplicative factor). Nothing is
// written unless every market update could be computed.
func (e *Engine) UpdateMarketConditions(ctx context.Context, regionID string, eventModifiers map[string]float64) ([]model.Market, error) {
	markets, err := e.markets(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load markets for region %s: %w", regionID, err)
	}

	drift := e.cfg.Drift
	if drift <= 0 {
		drift = 0.05
	}
	eventIDs := sortedKeys(eventModifiers)
	now := e.now()

	updated := make([]model.Market, 0, len(markets))
	for _, market := range markets {
		m := market.Clone()
		for _, resourceID := range sortedKeys(m.PriceModifiers) {
			next := m.PriceModifiers[resourceID].Modifier * (1 + e.rng.Uniform(-drift, drift))
			m.SetModifier(resourceID, next, driftMinModifier, driftMaxModifier)
		}
		for _, resourceID := range eventIDs {
			factor := eventModifiers[resourceID]
			if factor <= 0 {
				e.logger.Warn("Ignoring non-positive event modifier", "market", m.ID, "resource", resourceID, "factor", factor)
				continue
			}
			m.SetModifier(resourceID, m.Modifier(resourceID)*factor, eventMinModifier, eventMaxModifier)
		}
		m.UpdatedAt = now
		updated = append(updated, m)
	}

	for _, m := range updated {
		if err := e.saveMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("save market %s: %w", m.ID, err)
		}
	}
	e.logger.Debug("Market conditions updated", "region", regionID, "markets", len(updated), "eventModifiers", len(eventModifiers))
	return updated, nil
}

// UpdateSupplyDemand stores a supply/demand sample. When both values are positive the
// demand/supply ratio replaces the resource's price modifier on that market.
func (e *Engine) UpdateSupplyDemand(ctx context.Context, marketID, resourceID string, supply, demand float64) (model.Market, error) {
	if supply < 0 || demand < 0 {
		return model.Market{}, fmt.Errorf("%w: supply and demand must not be negative (%v, %v)", model.ErrValidation, supply, demand)
	}
	market, err := e.repo.GetMarket(ctx, marketID)
	if err != nil {
		return model.Market{}, err
	}

	m := market.Clone()
	if m.SupplyDemand == nil {
		m.SupplyDemand = make(map[string]model.SupplyDemand)
	}
	m.SupplyDemand[resourceID] = model.SupplyDemand{Supply: supply, Demand: demand}
	if supply > 0 && demand > 0 {
		m.SetModifier(resourceID, demand/supply, model.MinPriceModifier, model.MaxPriceModifier)
	}
	m.UpdatedAt = e.now()

	if err := e.saveMarket(ctx, m); err != nil {
		return model.Market{}, fmt.Errorf("save market %s: %w", m.ID, err)
	}
	return m, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
