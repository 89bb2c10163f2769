package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecosim/internal/config"
	"ecosim/internal/database"
	"ecosim/internal/model"
)

const fixture = `
resources:
  - id: ore-a
    type: ore
    name: iron
    region_id: a
    amount: 100
    base_price: 4
    minimum_viable_amount: 5
markets:
  - id: a-harbor
    name: Port
    region_id: a
    market_type: harbor
    tax_rate: 0.1
    price_modifiers:
      ore-a: {modifier: 1.2}
  - id: a-stalls
    region_id: a
trade_routes:
  - id: a-to-b
    origin_region_id: a
    destination_region_id: b
    frequency_ticks: 5
    is_active: true
    min_resource_threshold: 10
    max_resource_percent: 0.1
    max_resource_amount: 50
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	w, err := Load(path, Defaults{})
	require.NoError(t, err)
	require.Len(t, w.Resources, 1)
	require.Len(t, w.Markets, 2)
	require.Len(t, w.TradeRoutes, 1)
	assert.Equal(t, model.MarketHarbor, w.Markets[0].Type)
	assert.Equal(t, 1.2, w.Markets[0].Modifier("ore-a"))
	assert.Equal(t, int64(5), w.TradeRoutes[0].FrequencyTicks)

	repo := database.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, w.Apply(ctx, repo))

	stalls, err := repo.GetMarket(ctx, "a-stalls")
	require.NoError(t, err)
	assert.Equal(t, model.MarketGeneral, stalls.Type)

	// applying again updates in place
	w.Resources[0].Amount = 70
	require.NoError(t, w.Apply(ctx, repo))
	ore, err := repo.GetResource(ctx, "ore-a")
	require.NoError(t, err)
	assert.Equal(t, 70.0, ore.Amount)
	routes, err := repo.GetActiveTradeRoutes(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"same region route": `
trade_routes:
  - {id: r, origin_region_id: a, destination_region_id: a, frequency_ticks: 1, max_resource_percent: 0.5}`,
		"duplicate resource": `
resources:
  - {id: x, region_id: a, base_price: 1}
  - {id: x, region_id: b, base_price: 1}`,
		"tax out of range": `
markets:
  - {id: m, region_id: a, tax_rate: 1.5}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), Defaults{})
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	_, err := Parse([]byte("resources: [oops"), Defaults{})
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), Defaults{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_MarketVolatilityDefault(t *testing.T) {
	doc := `
markets:
  - {id: quiet, region_id: a}
  - {id: fixed, region_id: a, volatility: 0}
  - {id: wild, region_id: a, volatility: 0.3}
`
	cfg := config.Default()
	w, err := Parse([]byte(doc), DefaultsFrom(cfg.Economy))
	require.NoError(t, err)
	require.Len(t, w.Markets, 3)

	repo := database.NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, w.Apply(ctx, repo))

	want := map[string]float64{"quiet": 0.05, "fixed": 0, "wild": 0.3}
	for id, volatility := range want {
		m, err := repo.GetMarket(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, volatility, m.Volatility, id)
		assert.Equal(t, model.MarketGeneral, m.Type, id)
	}
}
