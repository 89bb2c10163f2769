package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks an entity that was rejected before anything was written.
var ErrValidation = errors.New("validation failed")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Resource is a quantity of a tradable good held by one region.
type Resource struct {
	ID                  string    `db:"id" json:"id" yaml:"id"`
	Type                string    `db:"type" json:"type" yaml:"type"`
	Name                string    `db:"name" json:"name" yaml:"name"`
	RegionID            string    `db:"region_id" json:"region_id" yaml:"region_id"`
	Amount              float64   `db:"amount" json:"amount" yaml:"amount"`
	BasePrice           float64   `db:"base_price" json:"base_price" yaml:"base_price"`
	MinimumViableAmount float64   `db:"minimum_viable_amount" json:"minimum_viable_amount" yaml:"minimum_viable_amount"`
	CreatedAt           time.Time `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// IsScarce reports whether the resource is below its minimum viable amount.
func (r Resource) IsScarce() bool {
	return r.Amount < r.MinimumViableAmount
}

// Validate checks the resource invariants.
func (r Resource) Validate() error {
	switch {
	case r.ID == "":
		return invalid("resource id is required")
	case r.RegionID == "":
		return invalid("resource %s has no region", r.ID)
	case r.Amount < 0:
		return invalid("resource %s amount must not be negative, got %v", r.ID, r.Amount)
	case r.BasePrice <= 0:
		return invalid("resource %s base price must be positive, got %v", r.ID, r.BasePrice)
	case r.MinimumViableAmount < 0:
		return invalid("resource %s minimum viable amount must not be negative", r.ID)
	}
	return nil
}

// MarketType selects the fixed base multiplier of a market.
type MarketType string

const (
	MarketGeneral     MarketType = "general"
	MarketSpecialized MarketType = "specialized"
	MarketBlack       MarketType = "black_market"
	MarketFestival    MarketType = "festival"
	MarketHarbor      MarketType = "harbor"
)

var marketTypeModifiers = map[MarketType]float64{
	MarketGeneral:     1.0,
	MarketSpecialized: 1.2,
	MarketBlack:       1.5,
	MarketFestival:    0.8,
	MarketHarbor:      0.9,
}

// Modifier returns the base multiplier for the market type and whether the type is known.
// Unknown types price like general markets.
func (t MarketType) Modifier() (float64, bool) {
	m, ok := marketTypeModifiers[t]
	if !ok {
		return marketTypeModifiers[MarketGeneral], false
	}
	return m, true
}

// Bounds of a stored price modifier.
const (
	MinPriceModifier = 0.1
	MaxPriceModifier = 10.0
)

// PriceModifier is the per-resource multiplier stored on a market.
type PriceModifier struct {
	Modifier float64 `json:"modifier" yaml:"modifier"`
}

// SupplyDemand is the latest supply and demand sample for one resource.
type SupplyDemand struct {
	Supply float64 `json:"supply" yaml:"supply"`
	Demand float64 `json:"demand" yaml:"demand"`
}

// TradingVolume is the accumulated quantity traded for one resource.
type TradingVolume struct {
	Volume float64 `json:"volume" yaml:"volume"`
}

// Market is a region-scoped pricing context.
type Market struct {
	ID              string                   `db:"id" json:"id" yaml:"id"`
	Name            string                   `db:"name" json:"name" yaml:"name"`
	RegionID        string                   `db:"region_id" json:"region_id" yaml:"region_id"`
	Type            MarketType               `db:"market_type" json:"market_type" yaml:"market_type"`
	PriceModifiers  map[string]PriceModifier `db:"price_modifiers" json:"price_modifiers" yaml:"price_modifiers"`
	SupplyDemand    map[string]SupplyDemand  `db:"supply_demand" json:"supply_demand" yaml:"supply_demand"`
	TradingVolume   map[string]TradingVolume `db:"trading_volume" json:"trading_volume" yaml:"trading_volume"`
	TaxRate         float64                  `db:"tax_rate" json:"tax_rate" yaml:"tax_rate"`
	Volatility      float64                  `db:"volatility" json:"volatility" yaml:"volatility"`
	SupplyThreshold float64                  `db:"supply_threshold" json:"supply_threshold" yaml:"supply_threshold"`
	CreatedAt       time.Time                `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt       time.Time                `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Modifier returns the stored price modifier for a resource, 1.0 when absent.
func (m Market) Modifier(resourceID string) float64 {
	if pm, ok := m.PriceModifiers[resourceID]; ok {
		return pm.Modifier
	}
	return 1.0
}

// SetModifier stores a price modifier clamped to the given range.
func (m *Market) SetModifier(resourceID string, value, lo, hi float64) {
	if m.PriceModifiers == nil {
		m.PriceModifiers = make(map[string]PriceModifier)
	}
	m.PriceModifiers[resourceID] = PriceModifier{Modifier: Clamp(value, lo, hi)}
}

// AddVolume accumulates traded quantity for a resource.
func (m *Market) AddVolume(resourceID string, amount float64) {
	if m.TradingVolume == nil {
		m.TradingVolume = make(map[string]TradingVolume)
	}
	v := m.TradingVolume[resourceID]
	v.Volume += amount
	m.TradingVolume[resourceID] = v
}

// Clone returns a deep copy so callers can stage changes without touching shared maps.
func (m Market) Clone() Market {
	c := m
	if m.PriceModifiers != nil {
		c.PriceModifiers = make(map[string]PriceModifier, len(m.PriceModifiers))
		for k, v := range m.PriceModifiers {
			c.PriceModifiers[k] = v
		}
	}
	if m.SupplyDemand != nil {
		c.SupplyDemand = make(map[string]SupplyDemand, len(m.SupplyDemand))
		for k, v := range m.SupplyDemand {
			c.SupplyDemand[k] = v
		}
	}
	if m.TradingVolume != nil {
		c.TradingVolume = make(map[string]TradingVolume, len(m.TradingVolume))
		for k, v := range m.TradingVolume {
			c.TradingVolume[k] = v
		}
	}
	return c
}

// Validate checks the market invariants.
func (m Market) Validate() error {
	switch {
	case m.ID == "":
		return invalid("market id is required")
	case m.RegionID == "":
		return invalid("market %s has no region", m.ID)
	case m.TaxRate < 0 || m.TaxRate > 1:
		return invalid("market %s tax rate must be within [0,1], got %v", m.ID, m.TaxRate)
	case m.Volatility < 0:
		return invalid("market %s volatility must not be negative, got %v", m.ID, m.Volatility)
	case m.SupplyThreshold < 0:
		return invalid("market %s supply threshold must not be negative", m.ID)
	}
	for id, pm := range m.PriceModifiers {
		if pm.Modifier < MinPriceModifier || pm.Modifier > MaxPriceModifier {
			return invalid("market %s modifier for %s outside [%v,%v]: %v", m.ID, id, MinPriceModifier, MaxPriceModifier, pm.Modifier)
		}
	}
	return nil
}

// TradeRoute is a scheduled resource flow between two regions.
type TradeRoute struct {
	ID                   string             `db:"id" json:"id" yaml:"id"`
	OriginRegionID       string             `db:"origin_region_id" json:"origin_region_id" yaml:"origin_region_id"`
	DestinationRegionID  string             `db:"destination_region_id" json:"destination_region_id" yaml:"destination_region_id"`
	FrequencyTicks       int64              `db:"frequency_ticks" json:"frequency_ticks" yaml:"frequency_ticks"`
	IsActive             bool               `db:"is_active" json:"is_active" yaml:"is_active"`
	ResourceMapping      map[string]float64 `db:"resource_mapping" json:"resource_mapping,omitempty" yaml:"resource_mapping"`
	MinResourceThreshold float64            `db:"min_resource_threshold" json:"min_resource_threshold" yaml:"min_resource_threshold"`
	MaxResourcePercent   float64            `db:"max_resource_percent" json:"max_resource_percent" yaml:"max_resource_percent"`
	MaxResourceAmount    float64            `db:"max_resource_amount" json:"max_resource_amount" yaml:"max_resource_amount"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at" yaml:"-"`
}

// Due reports whether the route acts on the given tick.
func (r TradeRoute) Due(tick int64) bool {
	return r.IsActive && r.FrequencyTicks > 0 && tick%r.FrequencyTicks == 0
}

// Validate checks the route invariants.
func (r TradeRoute) Validate() error {
	switch {
	case r.ID == "":
		return invalid("trade route id is required")
	case r.OriginRegionID == "" || r.DestinationRegionID == "":
		return invalid("trade route %s needs an origin and a destination", r.ID)
	case r.OriginRegionID == r.DestinationRegionID:
		return invalid("trade route %s connects region %s to itself", r.ID, r.OriginRegionID)
	case r.FrequencyTicks <= 0:
		return invalid("trade route %s frequency must be positive, got %d", r.ID, r.FrequencyTicks)
	}
	if len(r.ResourceMapping) == 0 {
		if r.MaxResourcePercent <= 0 || r.MaxResourcePercent > 1 {
			return invalid("trade route %s max resource percent must be within (0,1], got %v", r.ID, r.MaxResourcePercent)
		}
		if r.MaxResourceAmount <= 0 {
			return invalid("trade route %s max resource amount must be positive", r.ID)
		}
	}
	for id, amount := range r.ResourceMapping {
		if amount < 0 {
			return invalid("trade route %s maps a negative amount for %s", r.ID, id)
		}
	}
	return nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
