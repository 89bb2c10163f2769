package economy

import (
	"context"
	"errors"
	"fmt"

	"ecosim/internal/database"
	"ecosim/internal/model"
)

var (
	// ErrUnknownPeriod is returned for a tax period other than daily, weekly or monthly.
	ErrUnknownPeriod = errors.New("unknown time period")
	// ErrScopeRequired is returned when a price index request names neither or both scopes.
	ErrScopeRequired = errors.New("exactly one of market_id or region_id is required")
)

// Period is the window a tax revenue figure covers.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Multiplier returns how many daily volumes the period spans.
func (p Period) Multiplier() (float64, error) {
	switch p {
	case Daily:
		return 1, nil
	case Weekly:
		return 7, nil
	case Monthly:
		return 30, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, p)
}

// ResourceTax is the taxed volume of a single resource.
type ResourceTax struct {
	Volume     float64 `json:"volume"`
	TaxRevenue float64 `json:"tax_revenue"`
}

// TaxRevenue is the tax a market raises over a period.
type TaxRevenue struct {
	MarketID    string                 `json:"market_id"`
	RegionID    string                 `json:"region_id"`
	Period      Period                 `json:"period"`
	TaxRate     float64                `json:"tax_rate"`
	TotalVolume float64                `json:"total_volume"`
	TaxRevenue  float64                `json:"tax_revenue"`
	ByResource  map[string]ResourceTax `json:"by_resource"`
}

// CalculateTaxRevenue applies the market's tax rate to its trading volume scaled to the period.
func CalculateTaxRevenue(market model.Market, period Period) (TaxRevenue, error) {
	multiplier, err := period.Multiplier()
	if err != nil {
		return TaxRevenue{}, err
	}
	out := TaxRevenue{
		MarketID:   market.ID,
		RegionID:   market.RegionID,
		Period:     period,
		TaxRate:    market.TaxRate,
		ByResource: make(map[string]ResourceTax, len(market.TradingVolume)),
	}
	for _, resourceID := range sortedKeys(market.TradingVolume) {
		volume := market.TradingVolume[resourceID].Volume * multiplier
		out.TotalVolume += volume
		out.ByResource[resourceID] = ResourceTax{Volume: volume, TaxRevenue: volume * market.TaxRate}
	}
	out.TaxRevenue = out.TotalVolume * market.TaxRate
	return out, nil
}

// MarketTaxRevenue loads a market and computes its tax revenue.
func (e *Engine) MarketTaxRevenue(ctx context.Context, marketID string, period Period) (TaxRevenue, error) {
	market, err := e.repo.GetMarket(ctx, marketID)
	if err != nil {
		return TaxRevenue{}, err
	}
	return CalculateTaxRevenue(market, period)
}

// RegionTax sums the tax revenue of every market in a region.
type RegionTax struct {
	RegionID string             `json:"region_id"`
	Period   Period             `json:"period"`
	Total    float64            `json:"total"`
	ByMarket map[string]float64 `json:"by_market"`
}

// RegionTaxRevenue computes the tax revenue of each market in a region and their total.
func (e *Engine) RegionTaxRevenue(ctx context.Context, regionID string, period Period) (RegionTax, error) {
	markets, err := e.markets(ctx, regionID)
	if err != nil {
		return RegionTax{}, fmt.Errorf("load markets for region %s: %w", regionID, err)
	}
	out := RegionTax{RegionID: regionID, Period: period, ByMarket: make(map[string]float64, len(markets))}
	for _, m := range markets {
		rev, err := CalculateTaxRevenue(m, period)
		if err != nil {
			return RegionTax{}, err
		}
		out.ByMarket[m.ID] = rev.TaxRevenue
		out.Total += rev.TaxRevenue
	}
	return out, nil
}

// PriceIndexQuery scopes a price index to one market or one region.
type PriceIndexQuery struct {
	MarketID string
	RegionID string
}

// IndexComponent is one (market, resource) pair contributing to an index.
type IndexComponent struct {
	MarketID   string  `json:"market_id"`
	ResourceID string  `json:"resource_id"`
	Price      float64 `json:"price"`
	Weight     float64 `json:"weight"`
}

// PriceIndex is a volume-weighted average price.
type PriceIndex struct {
	MarketID    string           `json:"market_id,omitempty"`
	RegionID    string           `json:"region_id,omitempty"`
	PriceIndex  float64          `json:"price_index"`
	TotalWeight float64          `json:"total_weight"`
	MarketCount int              `json:"market_count"`
	Components  []IndexComponent `json:"components"`
}

// CalculatePriceIndex weights base price times modifier by trading volume (1.0 when a
// resource has no volume) over every (market, resource) pair in scope. A region index is
// one weighted sum across all its markets, not an average of market indices.
func (e *Engine) CalculatePriceIndex(ctx context.Context, q PriceIndexQuery) (PriceIndex, error) {
	if (q.MarketID == "") == (q.RegionID == "") {
		return PriceIndex{}, ErrScopeRequired
	}
	out := PriceIndex{MarketID: q.MarketID, RegionID: q.RegionID}

	var (
		markets  []model.Market
		regionID = q.RegionID
		err      error
	)
	if q.MarketID != "" {
		market, err := e.repo.GetMarket(ctx, q.MarketID)
		if err != nil {
			return PriceIndex{}, err
		}
		markets, regionID = []model.Market{market}, market.RegionID
	} else if markets, err = e.markets(ctx, q.RegionID); err != nil {
		return PriceIndex{}, fmt.Errorf("load markets for region %s: %w", q.RegionID, err)
	}
	out.MarketCount = len(markets)

	regional, err := e.resources(ctx, regionID)
	if err != nil {
		return PriceIndex{}, fmt.Errorf("load resources for region %s: %w", regionID, err)
	}
	byID := make(map[string]model.Resource, len(regional))
	for _, r := range regional {
		byID[r.ID] = r
	}

	weightedSum := 0.0
	for _, m := range markets {
		for _, resourceID := range sortedKeys(m.PriceModifiers) {
			resource, ok := byID[resourceID]
			if !ok {
				resource, err = e.repo.GetResource(ctx, resourceID)
				if errors.Is(err, database.ErrNotFound) {
					e.logger.Debug("Price modifier for unknown resource", "market", m.ID, "resource", resourceID)
					continue
				}
				if err != nil {
					return PriceIndex{}, err
				}
			}
			weight := 1.0
			if v, ok := m.TradingVolume[resourceID]; ok {
				weight = v.Volume
			}
			price := resource.BasePrice * m.PriceModifiers[resourceID].Modifier
			weightedSum += price * weight
			out.TotalWeight += weight
			out.Components = append(out.Components, IndexComponent{MarketID: m.ID, ResourceID: resourceID, Price: price, Weight: weight})
		}
	}
	if out.TotalWeight > 0 {
		out.PriceIndex = weightedSum / out.TotalWeight
	}
	return out, nil
}
