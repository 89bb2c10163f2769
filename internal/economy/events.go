package economy

import (
	"context"
	"fmt"
	"math"

	"ecosim/internal/model"
)

// Price index levels that signal inflation and deflation.
const (
	inflationIndex = 150.0
	deflationIndex = 60.0
	abundanceRatio = 10.0
)

var fillerEventTypes = []model.EventType{model.EventBoom, model.EventBust, model.EventDiscovery, model.EventDisaster}

// GenerateEconomicEvents derives events from the region's price index, resources and markets.
// It does not modify any state. A zero index means nothing is priced and raises no price event.
func (e *Engine) GenerateEconomicEvents(ctx context.Context, regionID string) ([]model.EconomicEvent, error) {
	index, err := e.CalculatePriceIndex(ctx, PriceIndexQuery{RegionID: regionID})
	if err != nil {
		return nil, fmt.Errorf("price index for region %s: %w", regionID, err)
	}
	resources, err := e.resources(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load resources for region %s: %w", regionID, err)
	}
	markets, err := e.markets(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load markets for region %s: %w", regionID, err)
	}

	now := e.now()
	var events []model.EconomicEvent
	emit := func(t model.EventType, cause string, severity float64, resourceID string) {
		events = append(events, model.EconomicEvent{
			ID:         e.newID(),
			Type:       t,
			Cause:      cause,
			Severity:   severity,
			RegionID:   regionID,
			ResourceID: resourceID,
			Timestamp:  now,
		})
	}

	switch pi := index.PriceIndex; {
	case pi > inflationIndex:
		emit(model.EventBust, model.CausePriceInflation, math.Min(1.0+(pi-inflationIndex)/100, 3.0), "")
	case pi > 0 && pi < deflationIndex:
		emit(model.EventBoom, model.CausePriceDeflation, math.Min(1.0+(deflationIndex-pi)/50, 2.0), "")
	}

	for _, r := range resources {
		if r.IsScarce() {
			switch {
			case r.Type == "food" && r.Amount <= 0:
				emit(model.EventFamine, model.CauseScarcity, math.Min(r.MinimumViableAmount/math.Max(r.Amount, 0.1), 2.0), r.ID)
			case r.Amount <= 0:
				emit(model.EventBust, model.DepletionCause(r.Type), 1.0, r.ID)
			}
			continue
		}
		threshold := abundanceRatio * r.MinimumViableAmount
		if threshold > 0 && r.Amount > threshold {
			severity := math.Min(1.0+r.Amount/threshold, 2.0)
			if r.Type == "food" {
				emit(model.EventHarvest, model.CauseAbundance, severity, r.ID)
			} else {
				emit(model.EventBoom, model.CauseAbundance, severity, r.ID)
			}
		}
	}

	highTax := e.cfg.HighTaxThreshold
	if highTax <= 0 {
		highTax = 0.25
	}
	taxed := 0
	for _, m := range markets {
		if m.TaxRate > highTax {
			taxed++
		}
	}
	if len(markets) > 0 && taxed*2 > len(markets) {
		emit(model.EventBust, model.CauseHighTaxation, 1.0, "")
	}

	if len(events) == 0 && e.rng.Uniform(0, 1) < e.cfg.FillerEventChance {
		i := int(e.rng.Uniform(0, float64(len(fillerEventTypes))))
		i = min(max(i, 0), len(fillerEventTypes)-1)
		emit(fillerEventTypes[i], model.CauseRandom, e.rng.Uniform(0.5, 1.5), "")
	}
	return events, nil
}
