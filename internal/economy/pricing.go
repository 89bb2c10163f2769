package economy

import (
	"context"
	"fmt"
	"math"

	"ecosim/internal/model"
)

// Supply/demand modifier bounds and fallbacks for regional scarcity pricing.
const (
	minSupplyModifier    = 0.5
	maxSupplyModifier    = 3.0
	noSupplyModifier     = 1.5 // no resource of the type in the region
	depletedSupplyFactor = 2.0 // resources exist but the regional total is zero
)

// PriceBreakdown explains how a price was assembled.
type PriceBreakdown struct {
	ResourceID           string           `json:"resource_id"`
	MarketID             string           `json:"market_id"`
	Quantity             float64          `json:"quantity"`
	BasePrice            float64          `json:"base_price"`
	MarketType           model.MarketType `json:"market_type"`
	MarketTypeModifier   float64          `json:"market_type_modifier"`
	ResourceModifier     float64          `json:"resource_modifier"`
	SupplyDemandModifier float64          `json:"supply_demand_modifier"`
	RandomFactor         float64          `json:"random_factor"`
	FinalPrice           float64          `json:"final_price"`
	Error                string           `json:"error,omitempty"`
}

// CalculatePrice quotes quantity units of a resource on a market. A missing resource
// or market yields price 0 with the error recorded in the breakdown.
func (e *Engine) CalculatePrice(ctx context.Context, resourceID, marketID string, quantity float64) (float64, PriceBreakdown, error) {
	breakdown := PriceBreakdown{ResourceID: resourceID, MarketID: marketID, Quantity: quantity}

	resource, err := e.repo.GetResource(ctx, resourceID)
	if err != nil {
		breakdown.Error = err.Error()
		return 0, breakdown, err
	}
	market, err := e.repo.GetMarket(ctx, marketID)
	if err != nil {
		breakdown.Error = err.Error()
		return 0, breakdown, err
	}
	return e.PriceResource(ctx, resource, market, quantity)
}

// PriceResource quotes a resource on an already loaded market.
func (e *Engine) PriceResource(ctx context.Context, resource model.Resource, market model.Market, quantity float64) (float64, PriceBreakdown, error) {
	breakdown := PriceBreakdown{
		ResourceID: resource.ID,
		MarketID:   market.ID,
		Quantity:   quantity,
		BasePrice:  resource.BasePrice * quantity,
		MarketType: market.Type,
	}

	typeModifier, known := market.Type.Modifier()
	if !known {
		e.logger.Warn("Unknown market type, pricing as general", "market", market.ID, "type", market.Type)
	}
	breakdown.MarketTypeModifier = typeModifier
	breakdown.ResourceModifier = market.Modifier(resource.ID)

	sd, err := e.supplyDemandModifier(ctx, resource, market)
	if err != nil {
		breakdown.Error = err.Error()
		return 0, breakdown, fmt.Errorf("supply/demand modifier for %s: %w", resource.ID, err)
	}
	breakdown.SupplyDemandModifier = sd
	breakdown.RandomFactor = 1.0 + e.rng.Uniform(-market.Volatility, market.Volatility)

	breakdown.FinalPrice = breakdown.BasePrice *
		breakdown.MarketTypeModifier *
		breakdown.ResourceModifier *
		breakdown.SupplyDemandModifier *
		breakdown.RandomFactor
	return breakdown.FinalPrice, breakdown, nil
}

// supplyDemandModifier prices regional scarcity of the resource's type: the less of the
// type a region holds relative to the market's supply threshold, the higher the price.
func (e *Engine) supplyDemandModifier(ctx context.Context, resource model.Resource, market model.Market) (float64, error) {
	regional, err := e.resources(ctx, resource.RegionID)
	if err != nil {
		return 0, err
	}

	found := false
	total := 0.0
	for _, r := range regional {
		if r.Type != resource.Type {
			continue
		}
		found = true
		total += r.Amount
	}
	if !found {
		return noSupplyModifier, nil
	}
	if total == 0 {
		return depletedSupplyFactor, nil
	}
	return model.Clamp(math.Exp(-total/e.supplyThreshold(market))+0.5, minSupplyModifier, maxSupplyModifier), nil
}

func (e *Engine) supplyThreshold(market model.Market) float64 {
	if market.SupplyThreshold > 0 {
		return market.SupplyThreshold
	}
	if e.cfg.DefaultSupplyThreshold > 0 {
		return e.cfg.DefaultSupplyThreshold
	}
	return 100
}
