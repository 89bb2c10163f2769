package economy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecosim/internal/config"
	"ecosim/internal/database"
	"ecosim/internal/model"
	"ecosim/internal/random"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, repo database.Repository, rng random.Source) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	e := NewEngine(logger, repo, &cfg, rng, nil)
	e.SetClock(func() time.Time { return testNow })
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return e
}

type fixture struct {
	resources []model.Resource
	markets   []model.Market
	routes    []model.TradeRoute
}

func seed(t *testing.T, f fixture) *database.MemoryRepository {
	t.Helper()
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	for _, r := range f.resources {
		require.NoError(t, repo.CreateResource(ctx, r))
	}
	for _, m := range f.markets {
		require.NoError(t, repo.CreateMarket(ctx, m))
	}
	for _, r := range f.routes {
		require.NoError(t, repo.CreateTradeRoute(ctx, r))
	}
	return repo
}

func modifiers(kv map[string]float64) map[string]model.PriceModifier {
	out := make(map[string]model.PriceModifier, len(kv))
	for k, v := range kv {
		out[k] = model.PriceModifier{Modifier: v}
	}
	return out
}

func volumes(kv map[string]float64) map[string]model.TradingVolume {
	out := make(map[string]model.TradingVolume, len(kv))
	for k, v := range kv {
		out[k] = model.TradingVolume{Volume: v}
	}
	return out
}

// MockRepository fails selected calls and delegates the rest to a memory repository.
type MockRepository struct {
	*database.MemoryRepository
	mock.Mock
}

func (m *MockRepository) TransferResource(ctx context.Context, t database.Transfer) (database.TransferResult, error) {
	args := m.Called(ctx, t)
	if fn, ok := args.Get(0).(func(context.Context, database.Transfer) (database.TransferResult, error)); ok {
		return fn(ctx, t)
	}
	return args.Get(0).(database.TransferResult), args.Error(1)
}

func (m *MockRepository) UpdateMarket(ctx context.Context, market model.Market) error {
	args := m.Called(ctx, market)
	return args.Error(0)
}
