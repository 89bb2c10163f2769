package database

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ecosim/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	// Define the PostgreSQL container request
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	}

	// Without a container provider the postgres tests skip and the memory tests still run.
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("postgres container unavailable, skipping postgres tests: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer pool.Close()

	if err := (&PostgresRepository{Pool: pool}).Migrate(ctx); err != nil {
		log.Fatalf("could not create tables: %s", err)
	}

	return m.Run()
}

func postgresRepo(t *testing.T) *PostgresRepository {
	t.Helper()
	if pool == nil {
		t.Skip("postgres container not available")
	}
	ctx := context.Background()
	_, err := pool.Exec(ctx, `TRUNCATE resources, markets, trade_routes`)
	require.NoError(t, err)
	return &PostgresRepository{Pool: pool}
}

// repositories runs fn against every backend.
func repositories(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepository()) })
	t.Run("postgres", func(t *testing.T) { fn(t, postgresRepo(t)) })
}

func TestRepository_ResourceCRUD(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		gold := model.Resource{ID: "gold-a", Type: "ore", Name: "gold", RegionID: "a", Amount: 50, BasePrice: 100, MinimumViableAmount: 5}
		require.NoError(t, repo.CreateResource(ctx, gold))
		require.NoError(t, repo.CreateResource(ctx, model.Resource{ID: "wheat-a", Type: "food", Name: "wheat", RegionID: "a", Amount: 10, BasePrice: 2}))
		require.NoError(t, repo.CreateResource(ctx, model.Resource{ID: "wheat-b", Type: "food", Name: "wheat", RegionID: "b", Amount: 10, BasePrice: 2}))

		got, err := repo.GetResource(ctx, "gold-a")
		require.NoError(t, err)
		assert.Equal(t, gold.Amount, got.Amount)
		assert.Equal(t, gold.Type, got.Type)

		inA, err := repo.GetResourcesByRegion(ctx, "a")
		require.NoError(t, err)
		require.Len(t, inA, 2)
		assert.Equal(t, "gold-a", inA[0].ID)

		got.Amount = 75
		require.NoError(t, repo.UpdateResource(ctx, got))
		got, err = repo.GetResource(ctx, "gold-a")
		require.NoError(t, err)
		assert.Equal(t, 75.0, got.Amount)

		got.Amount = -1
		assert.ErrorIs(t, repo.UpdateResource(ctx, got), model.ErrValidation)

		require.NoError(t, repo.DeleteResource(ctx, "gold-a"))
		_, err = repo.GetResource(ctx, "gold-a")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteResource(ctx, "gold-a"), ErrNotFound)
	})
}

func TestRepository_MarketRoundTrip(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		m := model.Market{
			ID: "m1", Name: "Docks", RegionID: "a", Type: model.MarketHarbor,
			PriceModifiers: map[string]model.PriceModifier{"gold-a": {Modifier: 1.25}},
			SupplyDemand:   map[string]model.SupplyDemand{"gold-a": {Supply: 10, Demand: 12.5}},
			TradingVolume:  map[string]model.TradingVolume{"gold-a": {Volume: 40}},
			TaxRate:        0.1, Volatility: 0.05, SupplyThreshold: 100,
		}
		require.NoError(t, repo.CreateMarket(ctx, m))

		got, err := repo.GetMarket(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, model.MarketHarbor, got.Type)
		assert.Equal(t, 1.25, got.Modifier("gold-a"))
		assert.Equal(t, m.SupplyDemand, got.SupplyDemand)
		assert.Equal(t, 40.0, got.TradingVolume["gold-a"].Volume)

		got.TaxRate = 1.5
		assert.ErrorIs(t, repo.UpdateMarket(ctx, got), model.ErrValidation)

		got.TaxRate = 0.3
		got.AddVolume("gold-a", 10)
		require.NoError(t, repo.UpdateMarket(ctx, got))

		inA, err := repo.GetMarketsByRegion(ctx, "a")
		require.NoError(t, err)
		require.Len(t, inA, 1)
		assert.Equal(t, 0.3, inA[0].TaxRate)
		assert.Equal(t, 50.0, inA[0].TradingVolume["gold-a"].Volume)

		_, err = repo.GetMarket(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepository_TradeRoutes(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		dynamic := model.TradeRoute{ID: "r1", OriginRegionID: "a", DestinationRegionID: "b", FrequencyTicks: 5, IsActive: true,
			MinResourceThreshold: 10, MaxResourcePercent: 0.1, MaxResourceAmount: 50}
		mapped := model.TradeRoute{ID: "r2", OriginRegionID: "b", DestinationRegionID: "c", FrequencyTicks: 1,
			ResourceMapping: map[string]float64{"wheat-b": 3}}
		require.NoError(t, repo.CreateTradeRoute(ctx, dynamic))
		require.NoError(t, repo.CreateTradeRoute(ctx, mapped))

		assert.ErrorIs(t, repo.CreateTradeRoute(ctx, model.TradeRoute{ID: "bad", OriginRegionID: "a", DestinationRegionID: "a", FrequencyTicks: 1}), model.ErrValidation)

		active, err := repo.GetActiveTradeRoutes(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "r1", active[0].ID)

		viaB, err := repo.GetTradeRoutesByRegion(ctx, "b", true, true)
		require.NoError(t, err)
		assert.Len(t, viaB, 2)

		fromB, err := repo.GetTradeRoutesByRegion(ctx, "b", true, false)
		require.NoError(t, err)
		require.Len(t, fromB, 1)
		assert.Equal(t, map[string]float64{"wheat-b": 3}, fromB[0].ResourceMapping)

		dynamic.IsActive = false
		require.NoError(t, repo.UpdateTradeRoute(ctx, dynamic))
		active, err = repo.GetActiveTradeRoutes(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)

		require.NoError(t, repo.DeleteTradeRoute(ctx, "r2"))
		_, err = repo.GetTradeRoute(ctx, "r2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepository_TransferResource(t *testing.T) {
	repositories(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		require.NoError(t, repo.CreateResource(ctx, model.Resource{ID: "ore-a", Type: "ore", Name: "iron", RegionID: "a", Amount: 100, BasePrice: 4, MinimumViableAmount: 10}))
		require.NoError(t, repo.CreateResource(ctx, model.Resource{ID: "ore-b", Type: "ore", Name: "iron", RegionID: "b", Amount: 5, BasePrice: 4}))

		res, err := repo.TransferResource(ctx, Transfer{OriginResourceID: "ore-a", DestinationRegionID: "b", Amount: 30})
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, 70.0, res.Origin.Amount)
		assert.Equal(t, 35.0, res.Destination.Amount)
		assert.Equal(t, "ore-b", res.Destination.ID)

		// a region without a matching resource gets one created
		res, err = repo.TransferResource(ctx, Transfer{OriginResourceID: "ore-a", DestinationRegionID: "c", Amount: 20, NewResourceID: "ore-c"})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.Equal(t, 20.0, res.Destination.Amount)
		assert.Equal(t, 4.0, res.Destination.BasePrice)
		assert.Equal(t, 10.0, res.Destination.MinimumViableAmount)

		// over-sized transfers leave both sides untouched
		_, err = repo.TransferResource(ctx, Transfer{OriginResourceID: "ore-a", DestinationRegionID: "b", Amount: 51})
		assert.ErrorIs(t, err, ErrInsufficientQuantity)

		a, err := repo.GetResource(ctx, "ore-a")
		require.NoError(t, err)
		b, err := repo.GetResource(ctx, "ore-b")
		require.NoError(t, err)
		c, err := repo.GetResource(ctx, "ore-c")
		require.NoError(t, err)
		assert.Equal(t, 50.0, a.Amount)
		assert.Equal(t, 35.0, b.Amount)
		assert.Equal(t, 105.0, a.Amount+b.Amount+c.Amount)

		_, err = repo.TransferResource(ctx, Transfer{OriginResourceID: "nope", DestinationRegionID: "b", Amount: 1})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.TransferResource(ctx, Transfer{OriginResourceID: "ore-a", DestinationRegionID: "a", Amount: 1})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}
