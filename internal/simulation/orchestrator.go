// Package simulation runs world ticks over the economy components.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ecosim/internal/config"
	"ecosim/internal/economy"
	"ecosim/internal/model"
	"ecosim/internal/notify"
)

// Tick stages recorded in TickError.Stage.
const (
	StageTrade      = "trade"
	StageConditions = "conditions"
	StageTax        = "tax"
	StageIndex      = "price_index"
	StageEvents     = "events"
	StageFutures    = "futures"
	StagePublish    = "publish"
)

const (
	flowSensitivity = 0.01
	minFlowModifier = 0.9
	maxFlowModifier = 1.1
)

// FuturesSettler settles the futures that expire on a tick.
type FuturesSettler interface {
	ProcessExpiringFutures(ctx context.Context, tick int64) (model.FuturesReport, error)
}

// Orchestrator sequences the economy components for one tick at a time.
type Orchestrator struct {
	logger  *slog.Logger
	engine  *economy.Engine
	futures FuturesSettler
	sink    notify.Sink

	period        economy.Period
	eventInterval int64

	mu  sync.Mutex
	now func() time.Time
}

// NewOrchestrator creates an Orchestrator. futures and sink may be nil.
func NewOrchestrator(logger *slog.Logger, engine *economy.Engine, cfg *config.Config, futures FuturesSettler, sink notify.Sink) *Orchestrator {
	interval := cfg.Economy.EventInterval
	if interval <= 0 {
		interval = 5
	}
	period := economy.Period(cfg.Economy.TaxPeriod)
	if period == "" {
		period = economy.Daily
	}
	return &Orchestrator{
		logger:        logger,
		engine:        engine,
		futures:       futures,
		sink:          sink,
		period:        period,
		eventInterval: interval,
		now:           time.Now,
	}
}

// ProcessTick runs one tick. Ticks never overlap; a failure in one region is recorded in the
// result and the remaining regions are still processed.
func (o *Orchestrator) ProcessTick(ctx context.Context, tick int64) model.TickResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := model.TickResult{
		Tick:               tick,
		TradeEvents:        []model.TradeEvent{},
		TaxRevenueByMarket: make(map[string]float64),
		TaxRevenueByRegion: make(map[string]float64),
		PriceIndices:       make(map[string]float64),
		EconomicEvents:     []model.EconomicEvent{},
		StartedAt:          o.now(),
	}
	fail := func(stage, regionID string, err error) {
		o.logger.Error("Tick stage failed", "tick", tick, "stage", stage, "region", regionID, "error", err)
		res.Errors = append(res.Errors, model.TickError{Stage: stage, RegionID: regionID, Message: err.Error()})
	}

	o.engine.Cache().Clear()

	report, err := o.engine.ProcessTradeRoutes(ctx, tick)
	if err != nil {
		fail(StageTrade, "", err)
	}
	for _, f := range report.Failures {
		fail(StageTrade, f.RegionID, fmt.Errorf("route %s: %w", f.RouteID, f.Err))
	}
	res.TradesProcessed = report.SuccessCount
	res.TradeEvents = append(res.TradeEvents, report.Events...)

	flows := netFlows(report.Events)
	for _, regionID := range sortedRegions(flows) {
		o.processRegion(ctx, tick, regionID, flows[regionID], &res, fail)
	}

	if o.futures != nil {
		fr, err := o.futures.ProcessExpiringFutures(ctx, tick)
		if err != nil {
			fail(StageFutures, "", err)
		} else {
			res.Futures = &fr
		}
	}

	o.publish(ctx, &res, fail)
	res.Duration = o.now().Sub(res.StartedAt)
	hits, misses := o.engine.Cache().Stats()
	o.logger.Info("Tick processed",
		"tick", tick,
		"trades", res.TradesProcessed,
		"marketsUpdated", res.MarketsUpdated,
		"events", len(res.EconomicEvents),
		"errors", len(res.Errors),
		"cacheHits", hits,
		"cacheMisses", misses,
		"duration", res.Duration,
	)
	return res
}

func (o *Orchestrator) processRegion(ctx context.Context, tick int64, regionID string, flow map[string]float64, res *model.TickResult, fail func(string, string, error)) {
	modifiers := make(map[string]float64, len(flow))
	for resourceID, net := range flow {
		modifiers[resourceID] = model.Clamp(1.0-net*flowSensitivity, minFlowModifier, maxFlowModifier)
	}
	updated, err := o.engine.UpdateMarketConditions(ctx, regionID, modifiers)
	if err != nil {
		fail(StageConditions, regionID, err)
	}
	res.MarketsUpdated += len(updated)

	tax, err := o.engine.RegionTaxRevenue(ctx, regionID, o.period)
	if err != nil {
		fail(StageTax, regionID, err)
	} else {
		for marketID, revenue := range tax.ByMarket {
			res.TaxRevenueByMarket[marketID] = revenue
		}
		res.TaxRevenueByRegion[regionID] = tax.Total
	}

	index, err := o.engine.CalculatePriceIndex(ctx, economy.PriceIndexQuery{RegionID: regionID})
	if err != nil {
		fail(StageIndex, regionID, err)
	} else {
		res.PriceIndices[regionID] = index.PriceIndex
	}

	if tick%o.eventInterval != 0 {
		return
	}
	events, err := o.engine.GenerateEconomicEvents(ctx, regionID)
	if err != nil {
		fail(StageEvents, regionID, err)
		return
	}
	for _, ev := range events {
		ev.Tick = tick
		if err := o.applyConsequences(ctx, ev); err != nil {
			fail(StageEvents, regionID, fmt.Errorf("apply %s event %s: %w", ev.Type, ev.ID, err))
		}
		res.EconomicEvents = append(res.EconomicEvents, ev)
	}
}

// tickSummary is the payload of the record published after every tick.
type tickSummary struct {
	TradesProcessed int   `json:"trades_processed"`
	MarketsUpdated  int   `json:"markets_updated"`
	EconomicEvents  int   `json:"economic_events"`
	Errors          int   `json:"errors"`
	DurationMS      int64 `json:"duration_ms"`
}

func (o *Orchestrator) publish(ctx context.Context, res *model.TickResult, fail func(string, string, error)) {
	if o.sink == nil {
		return
	}
	send := func(kind, regionID string, payload any) {
		rec, err := notify.NewRecord(kind, res.Tick, regionID, payload)
		if err == nil {
			err = o.sink.Publish(ctx, rec)
		}
		if err != nil {
			fail(StagePublish, regionID, err)
		}
	}
	for _, ev := range res.TradeEvents {
		send(notify.KindTrade, ev.OriginRegionID, ev)
	}
	for _, ev := range res.EconomicEvents {
		send(notify.KindEconomic, ev.RegionID, ev)
	}
	send(notify.KindTick, "", tickSummary{
		TradesProcessed: res.TradesProcessed,
		MarketsUpdated:  res.MarketsUpdated,
		EconomicEvents:  len(res.EconomicEvents),
		Errors:          len(res.Errors),
		DurationMS:      o.now().Sub(res.StartedAt).Milliseconds(),
	})
}

// netFlows sums imports (positive) and exports (negative) per region and local resource id.
func netFlows(events []model.TradeEvent) map[string]map[string]float64 {
	flows := make(map[string]map[string]float64)
	add := func(regionID, resourceID string, amount float64) {
		if flows[regionID] == nil {
			flows[regionID] = make(map[string]float64)
		}
		flows[regionID][resourceID] += amount
	}
	for _, ev := range events {
		add(ev.OriginRegionID, ev.ResourceID, -ev.Amount)
		add(ev.DestinationRegionID, ev.DestinationResourceID, ev.Amount)
	}
	return flows
}

func sortedRegions(flows map[string]map[string]float64) []string {
	regions := make([]string, 0, len(flows))
	for id := range flows {
		regions = append(regions, id)
	}
	sort.Strings(regions)
	return regions
}
