package model

import "time"

// TradeEvent records one successful trade route transfer.
type TradeEvent struct {
	ID                    string    `json:"id"`
	RouteID               string    `json:"route_id"`
	OriginRegionID        string    `json:"origin_region_id"`
	DestinationRegionID   string    `json:"destination_region_id"`
	ResourceID            string    `json:"resource_id"`
	DestinationResourceID string    `json:"destination_resource_id"`
	Amount                float64   `json:"amount"`
	Tick                  int64     `json:"tick"`
	Timestamp             time.Time `json:"timestamp"`
}

// EventType classifies an economic event.
type EventType string

const (
	EventBoom      EventType = "boom"
	EventBust      EventType = "bust"
	EventFamine    EventType = "famine"
	EventHarvest   EventType = "harvest"
	EventDiscovery EventType = "discovery"
	EventDisaster  EventType = "disaster"
)

// Causes attached to generated events. Depletion busts use "{type}_depletion".
const (
	CausePriceInflation = "price_inflation"
	CausePriceDeflation = "price_deflation"
	CauseHighTaxation   = "high_taxation"
	CauseScarcity       = "scarcity"
	CauseAbundance      = "abundance"
	CauseRandom         = "random"
)

// DepletionCause returns the cause of a bust for a depleted resource type.
func DepletionCause(resourceType string) string {
	return resourceType + "_depletion"
}

// EconomicEvent is a typed signal derived from regional metrics.
// ResourceID is empty for region-wide events.
type EconomicEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Cause      string    `json:"cause"`
	Severity   float64   `json:"severity"`
	RegionID   string    `json:"region_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	Tick       int64     `json:"tick"`
	Timestamp  time.Time `json:"timestamp"`
}

// TickError is a failure captured while processing a tick.
type TickError struct {
	Stage    string `json:"stage"`
	RegionID string `json:"region_id,omitempty"`
	Message  string `json:"message"`
}

// FuturesReport summarises the futures settled or expired during a tick.
type FuturesReport struct {
	Settled []Settlement `json:"settled"`
	Expired []string     `json:"expired"`
	Errors  []string     `json:"errors"`
}

// Settlement is the outcome of settling one futures contract.
type Settlement struct {
	FutureID   string  `json:"future_id"`
	ProfitLoss float64 `json:"profit_loss"`
	ResourceID string  `json:"resource_id"`
	MarketID   string  `json:"market_id"`
}

// TickResult aggregates everything one world tick produced.
type TickResult struct {
	Tick               int64              `json:"tick"`
	TradesProcessed    int                `json:"trades_processed"`
	TradeEvents        []TradeEvent       `json:"trade_events"`
	MarketsUpdated     int                `json:"markets_updated"`
	TaxRevenueByMarket map[string]float64 `json:"tax_revenue_by_market"`
	TaxRevenueByRegion map[string]float64 `json:"tax_revenue_by_region"`
	PriceIndices       map[string]float64 `json:"price_indices"`
	EconomicEvents     []EconomicEvent    `json:"economic_events"`
	Futures            *FuturesReport     `json:"futures,omitempty"`
	Errors             []TickError        `json:"errors,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	Duration           time.Duration      `json:"duration"`
}

// Failed reports whether any stage recorded an error.
func (r TickResult) Failed() bool {
	return len(r.Errors) > 0
}
