package economy

import (
	"context"
	"fmt"
	"math"

	"ecosim/internal/model"
)

// Forecast direction labels.
const (
	DirectionGrowth      = "growth"
	DirectionContraction = "contraction"
	DirectionStable      = "stable"
)

// ForecastMetrics is the snapshot a forecast starts from.
type ForecastMetrics struct {
	PriceIndex         float64 `json:"price_index"`
	ResourceCount      int     `json:"resource_count"`
	MarketCount        int     `json:"market_count"`
	TotalTradingVolume float64 `json:"total_trading_volume"`
	AverageTaxRate     float64 `json:"average_tax_rate"`
	ScarceResources    int     `json:"scarce_resources"`
}

// Factor is a named risk (severity) or growth driver (strength) in [0,5].
type Factor struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Projection is the forecast for one period.
type Projection struct {
	Period        int     `json:"period"`
	PriceIndex    float64 `json:"price_index"`
	ChangePercent float64 `json:"change_percent"`
	NetImpact     float64 `json:"net_impact"`
	Randomness    float64 `json:"randomness"`
	Direction     string  `json:"direction"`
	Confidence    float64 `json:"confidence"`
}

// Forecast projects a region's price index forward.
type Forecast struct {
	RegionID        string          `json:"region_id"`
	Periods         int             `json:"periods"`
	Metrics         ForecastMetrics `json:"metrics"`
	RiskFactors     []Factor        `json:"risk_factors"`
	GrowthFactors   []Factor        `json:"growth_factors"`
	ConfidenceLevel float64         `json:"confidence_level"`
	Projections     []Projection    `json:"projections"`
}

// GenerateEconomicForecast projects the region's price index over the given number of periods.
// Each period's index feeds the next; confidence falls by 15 per period down to 20.
func (e *Engine) GenerateEconomicForecast(ctx context.Context, regionID string, periods int) (Forecast, error) {
	if periods <= 0 {
		return Forecast{}, fmt.Errorf("%w: forecast periods must be positive, got %d", model.ErrValidation, periods)
	}
	metrics, err := e.forecastMetrics(ctx, regionID)
	if err != nil {
		return Forecast{}, err
	}

	f := Forecast{RegionID: regionID, Periods: periods, Metrics: metrics}
	f.RiskFactors, f.GrowthFactors = forecastFactors(metrics)
	f.ConfidenceLevel = confidenceLevel(metrics, len(f.RiskFactors))

	netImpact := 0.0
	for _, g := range f.GrowthFactors {
		netImpact += g.Value / 10
	}
	for _, r := range f.RiskFactors {
		netImpact -= r.Value / 10
	}

	current := metrics.PriceIndex
	for period := 1; period <= periods; period++ {
		randomness := e.rng.Uniform(-0.05, 0.05) * float64(period)
		change := (netImpact + randomness) * 10
		next := current * (1 + change/100)

		direction := DirectionStable
		switch {
		case next > current*1.1:
			direction = DirectionGrowth
		case next < current*0.9:
			direction = DirectionContraction
		}

		f.Projections = append(f.Projections, Projection{
			Period:        period,
			PriceIndex:    next,
			ChangePercent: change,
			NetImpact:     netImpact,
			Randomness:    randomness,
			Direction:     direction,
			Confidence:    math.Max(20, f.ConfidenceLevel-15*float64(period)),
		})
		current = next
	}
	return f, nil
}

func (e *Engine) forecastMetrics(ctx context.Context, regionID string) (ForecastMetrics, error) {
	index, err := e.CalculatePriceIndex(ctx, PriceIndexQuery{RegionID: regionID})
	if err != nil {
		return ForecastMetrics{}, fmt.Errorf("price index for region %s: %w", regionID, err)
	}
	resources, err := e.resources(ctx, regionID)
	if err != nil {
		return ForecastMetrics{}, fmt.Errorf("load resources for region %s: %w", regionID, err)
	}
	markets, err := e.markets(ctx, regionID)
	if err != nil {
		return ForecastMetrics{}, fmt.Errorf("load markets for region %s: %w", regionID, err)
	}

	m := ForecastMetrics{PriceIndex: index.PriceIndex, ResourceCount: len(resources), MarketCount: len(markets)}
	for _, r := range resources {
		if r.IsScarce() {
			m.ScarceResources++
		}
	}
	taxSum := 0.0
	for _, mk := range markets {
		taxSum += mk.TaxRate
		for _, resourceID := range sortedKeys(mk.TradingVolume) {
			m.TotalTradingVolume += mk.TradingVolume[resourceID].Volume
		}
	}
	if len(markets) > 0 {
		m.AverageTaxRate = taxSum / float64(len(markets))
	}
	return m, nil
}

// forecastFactors derives risks and growth drivers. Price factors need a non-zero index,
// resource factors need resources and tax factors need markets.
func forecastFactors(m ForecastMetrics) (risks, growth []Factor) {
	bounded := func(v float64) float64 { return model.Clamp(v, 0, 5) }

	if pi := m.PriceIndex; pi > 0 {
		switch {
		case pi > 140:
			risks = append(risks, Factor{Name: "high_inflation", Value: bounded(1 + (pi-140)/20)})
		case pi < 70:
			risks = append(risks, Factor{Name: "deflation", Value: bounded(1 + (70-pi)/10)})
		}
		if pi >= 80 && pi <= 120 {
			growth = append(growth, Factor{Name: "price_stability", Value: bounded(5 - math.Abs(pi-100)/10)})
		}
	}

	if m.ResourceCount > 0 {
		ratio := float64(m.ScarceResources) / float64(m.ResourceCount)
		if ratio > 0.3 {
			risks = append(risks, Factor{Name: "resource_scarcity", Value: bounded(ratio * 10)})
		}
		if ratio < 0.1 {
			growth = append(growth, Factor{Name: "resource_abundance", Value: bounded((0.1 - ratio) * 50)})
		}
	}

	if m.MarketCount > 0 {
		switch tax := m.AverageTaxRate; {
		case tax > 0.25:
			risks = append(risks, Factor{Name: "high_taxation", Value: bounded(tax * 10)})
		case tax < 0.15:
			growth = append(growth, Factor{Name: "favorable_taxation", Value: bounded(1 + (0.15-tax)*20)})
		}
	}
	return risks, growth
}

func confidenceLevel(m ForecastMetrics, riskCount int) float64 {
	marketScore := math.Min(float64(m.MarketCount)/3, 1)
	resourceScore := math.Min(float64(m.ResourceCount)/10, 1)
	stability := 0.5
	if m.PriceIndex >= 80 && m.PriceIndex <= 120 {
		stability = 0.8
	}
	riskScore := 0.7
	if riskCount <= 1 {
		riskScore = 0.9
	}
	return (marketScore + resourceScore + stability + riskScore) / 4 * 100
}
