package economy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ecosim/internal/database"
	"ecosim/internal/model"
)

// Jitter band applied to dynamically derived trade amounts.
const (
	minTradeJitter = 0.8
	maxTradeJitter = 1.2
)

// TradeReport is the outcome of one pass over the active trade routes.
type TradeReport struct {
	SuccessCount int
	Events       []model.TradeEvent
	Skipped      int
	Failures     []RouteFailure
}

// RouteFailure is a store error that stopped one route.
type RouteFailure struct {
	RouteID  string
	RegionID string
	Err      error
}

type plannedTransfer struct {
	resource model.Resource
	amount   float64
}

// ProcessTradeRoutes runs every active route due on the tick. Insufficient quantities skip
// the single resource; store failures stop the route and are reported, other routes continue.
func (e *Engine) ProcessTradeRoutes(ctx context.Context, tick int64) (TradeReport, error) {
	var report TradeReport

	routes, err := e.repo.GetActiveTradeRoutes(ctx)
	if err != nil {
		return report, fmt.Errorf("load active trade routes: %w", err)
	}

	for _, route := range routes {
		if !route.Due(tick) {
			continue
		}
		if err := e.processRoute(ctx, route, tick, &report); err != nil {
			e.logger.Error("Trade route failed", "route", route.ID, "error", err)
			report.Failures = append(report.Failures, RouteFailure{RouteID: route.ID, RegionID: route.OriginRegionID, Err: err})
		}
	}
	return report, nil
}

func (e *Engine) processRoute(ctx context.Context, route model.TradeRoute, tick int64, report *TradeReport) error {
	plan, err := e.planTransfers(ctx, route)
	if err != nil {
		return err
	}

	for _, p := range plan {
		if p.amount > p.resource.Amount {
			e.logger.Warn("Insufficient quantity for transfer",
				"route", route.ID, "resource", p.resource.ID, "available", p.resource.Amount, "requested", p.amount)
			report.Skipped++
			continue
		}

		res, err := e.repo.TransferResource(ctx, database.Transfer{
			OriginResourceID:    p.resource.ID,
			DestinationRegionID: route.DestinationRegionID,
			Amount:              p.amount,
			NewResourceID:       e.newID(),
		})
		switch {
		case errors.Is(err, database.ErrInsufficientQuantity), errors.Is(err, database.ErrNotFound):
			e.logger.Warn("Transfer skipped", "route", route.ID, "resource", p.resource.ID, "error", err)
			report.Skipped++
			continue
		case err != nil:
			e.cache.Invalidate(route.OriginRegionID)
			e.cache.Invalidate(route.DestinationRegionID)
			return fmt.Errorf("transfer %s: %w", p.resource.ID, err)
		}
		e.cache.putResource(res.Origin)
		e.cache.putResource(res.Destination)

		e.recordVolume(ctx, route.OriginRegionID, res.Origin.ID, p.amount)
		e.recordVolume(ctx, route.DestinationRegionID, res.Destination.ID, p.amount)

		report.SuccessCount++
		report.Events = append(report.Events, model.TradeEvent{
			ID:                    e.newID(),
			RouteID:               route.ID,
			OriginRegionID:        route.OriginRegionID,
			DestinationRegionID:   route.DestinationRegionID,
			ResourceID:            res.Origin.ID,
			DestinationResourceID: res.Destination.ID,
			Amount:                p.amount,
			Tick:                  tick,
			Timestamp:             e.now(),
		})
		e.logger.Debug("Resource transferred", "route", route.ID, "resource", res.Origin.ID, "amount", p.amount)
	}
	return nil
}

// planTransfers selects what a route moves. An explicit resource mapping is used verbatim;
// otherwise every origin resource above the threshold contributes a jittered share.
func (e *Engine) planTransfers(ctx context.Context, route model.TradeRoute) ([]plannedTransfer, error) {
	if len(route.ResourceMapping) > 0 {
		var plan []plannedTransfer
		for _, resourceID := range sortedKeys(route.ResourceMapping) {
			amount := route.ResourceMapping[resourceID]
			if amount <= 0 {
				continue
			}
			resource, err := e.repo.GetResource(ctx, resourceID)
			if errors.Is(err, database.ErrNotFound) {
				e.logger.Warn("Mapped resource not found", "route", route.ID, "resource", resourceID)
				continue
			}
			if err != nil {
				return nil, err
			}
			if resource.RegionID != route.OriginRegionID {
				e.logger.Warn("Mapped resource is not in the origin region", "route", route.ID, "resource", resourceID, "region", resource.RegionID)
				continue
			}
			plan = append(plan, plannedTransfer{resource: resource, amount: amount})
		}
		return plan, nil
	}

	resources, err := e.resources(ctx, route.OriginRegionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].ID < resources[j].ID })

	var plan []plannedTransfer
	for _, resource := range resources {
		if resource.Amount <= route.MinResourceThreshold {
			continue
		}
		proposed := min(resource.Amount*route.MaxResourcePercent, route.MaxResourceAmount)
		if proposed <= 0 {
			continue
		}
		plan = append(plan, plannedTransfer{
			resource: resource,
			amount:   proposed * e.rng.Uniform(minTradeJitter, maxTradeJitter),
		})
	}
	return plan, nil
}

// recordVolume adds traded quantity to the region's trade hub market.
func (e *Engine) recordVolume(ctx context.Context, regionID, resourceID string, amount float64) {
	markets, err := e.markets(ctx, regionID)
	if err != nil {
		e.logger.Warn("Could not load markets to record trading volume", "region", regionID, "error", err)
		return
	}
	hub, ok := tradeHub(markets)
	if !ok {
		return
	}
	hub.AddVolume(resourceID, amount)
	hub.UpdatedAt = e.now()
	if err := e.saveMarket(ctx, hub); err != nil {
		e.logger.Warn("Failed to record trading volume", "market", hub.ID, "error", err)
	}
}

// tradeHub picks the market that books inter-region trade: a harbor, else a general
// market, else the first market by id.
func tradeHub(markets []model.Market) (model.Market, bool) {
	if len(markets) == 0 {
		return model.Market{}, false
	}
	sorted := append([]model.Market(nil), markets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, preferred := range []model.MarketType{model.MarketHarbor, model.MarketGeneral} {
		for _, m := range sorted {
			if m.Type == preferred {
				return m, true
			}
		}
	}
	return sorted[0], true
}
