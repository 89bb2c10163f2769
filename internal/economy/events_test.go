package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecosim/internal/model"
	"ecosim/internal/random"
)

// indexMarket prices a single resource so the region index equals its base price.
func indexMarket(id, regionID, resourceID string, taxRate float64) model.Market {
	return model.Market{ID: id, RegionID: regionID, Type: model.MarketGeneral, TaxRate: taxRate,
		PriceModifiers: modifiers(map[string]float64{resourceID: 1.0})}
}

func TestGenerateEconomicEvents_Inflation(t *testing.T) {
	repo := seed(t, fixture{
		resources: []model.Resource{{ID: "spice", Type: "luxury", RegionID: "r1", Amount: 50, BasePrice: 200, MinimumViableAmount: 10}},
		markets:   []model.Market{indexMarket("m1", "r1", "spice", 0.1)},
	})
	e := newTestEngine(t, repo, random.NewSequence(0))

	events, err := e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBust, events[0].Type)
	assert.Equal(t, model.CausePriceInflation, events[0].Cause)
	assert.InDelta(t, 1.5, events[0].Severity, 1e-12)
	assert.Equal(t, "r1", events[0].RegionID)
	assert.Empty(t, events[0].ResourceID)
}

func TestGenerateEconomicEvents_Deflation(t *testing.T) {
	repo := seed(t, fixture{
		resources: []model.Resource{{ID: "salt", Type: "mineral", RegionID: "r1", Amount: 50, BasePrice: 35, MinimumViableAmount: 10}},
		markets:   []model.Market{indexMarket("m1", "r1", "salt", 0.1)},
	})
	e := newTestEngine(t, repo, random.NewSequence(0))

	events, err := e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBoom, events[0].Type)
	assert.Equal(t, model.CausePriceDeflation, events[0].Cause)
	assert.InDelta(t, 1.5, events[0].Severity, 1e-12)
}

func TestGenerateEconomicEvents_Resources(t *testing.T) {
	repo := seed(t, fixture{
		resources: []model.Resource{
			{ID: "bread", Type: "food", RegionID: "r1", Amount: 0, BasePrice: 1, MinimumViableAmount: 5},
			{ID: "coal", Type: "fuel", RegionID: "r1", Amount: 0, BasePrice: 1, MinimumViableAmount: 5},
			{ID: "clay", Type: "mineral", RegionID: "r1", Amount: 2, BasePrice: 1, MinimumViableAmount: 5},
			{ID: "fish", Type: "food", RegionID: "r1", Amount: 75, BasePrice: 1, MinimumViableAmount: 5},
			{ID: "iron", Type: "ore", RegionID: "r1", Amount: 400, BasePrice: 1, MinimumViableAmount: 10},
		},
	})
	e := newTestEngine(t, repo, random.NewSequence(0))

	events, err := e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 4)

	byResource := make(map[string]model.EconomicEvent)
	for _, ev := range events {
		byResource[ev.ResourceID] = ev
	}

	assert.Equal(t, model.EventFamine, byResource["bread"].Type)
	assert.Equal(t, 2.0, byResource["bread"].Severity)

	assert.Equal(t, model.EventBust, byResource["coal"].Type)
	assert.Equal(t, "fuel_depletion", byResource["coal"].Cause)
	assert.Equal(t, 1.0, byResource["coal"].Severity)

	assert.Equal(t, model.EventHarvest, byResource["fish"].Type)
	assert.InDelta(t, 2.0, byResource["fish"].Severity, 1e-12)

	assert.Equal(t, model.EventBoom, byResource["iron"].Type)
	assert.Equal(t, model.CauseAbundance, byResource["iron"].Cause)
	assert.Equal(t, 2.0, byResource["iron"].Severity)

	_, scarceButStocked := byResource["clay"]
	assert.False(t, scarceButStocked)
}

func TestGenerateEconomicEvents_HighTaxation(t *testing.T) {
	markets := []model.Market{
		{ID: "m1", RegionID: "r1", Type: model.MarketGeneral, TaxRate: 0.3},
		{ID: "m2", RegionID: "r1", Type: model.MarketGeneral, TaxRate: 0.4},
		{ID: "m3", RegionID: "r1", Type: model.MarketGeneral, TaxRate: 0.1},
	}
	e := newTestEngine(t, seed(t, fixture{markets: markets}), random.NewSequence(0))

	events, err := e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBust, events[0].Type)
	assert.Equal(t, model.CauseHighTaxation, events[0].Cause)
	assert.Empty(t, events[0].ResourceID)

	// exactly half is not more than half
	e = newTestEngine(t, seed(t, fixture{markets: markets[1:]}), random.NewSequence(0.9))
	events, err = e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGenerateEconomicEvents_Filler(t *testing.T) {
	quiet := fixture{
		resources: []model.Resource{{ID: "tea", Type: "luxury", RegionID: "r1", Amount: 50, BasePrice: 100, MinimumViableAmount: 10}},
		markets:   []model.Market{indexMarket("m1", "r1", "tea", 0.1)},
	}

	e := newTestEngine(t, seed(t, quiet), random.NewSequence(0.05, 0.6, 0.5))
	events, err := e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDiscovery, events[0].Type)
	assert.Equal(t, model.CauseRandom, events[0].Cause)
	assert.InDelta(t, 1.0, events[0].Severity, 1e-12)

	e = newTestEngine(t, seed(t, quiet), random.NewSequence(0.5))
	events, err = e.GenerateEconomicEvents(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGenerateEconomicEvents_DoesNotMutate(t *testing.T) {
	repo := seed(t, fixture{
		resources: []model.Resource{{ID: "bread", Type: "food", RegionID: "r1", Amount: 0, BasePrice: 300, MinimumViableAmount: 5}},
		markets:   []model.Market{indexMarket("m1", "r1", "bread", 0.5)},
	})
	e := newTestEngine(t, repo, random.New(3))
	ctx := context.Background()

	before, err := repo.GetMarket(ctx, "m1")
	require.NoError(t, err)
	_, err = e.GenerateEconomicEvents(ctx, "r1")
	require.NoError(t, err)

	after, err := repo.GetMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	bread, err := repo.GetResource(ctx, "bread")
	require.NoError(t, err)
	assert.Equal(t, 0.0, bread.Amount)
}
