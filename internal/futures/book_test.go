package futures

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecosim/internal/database"
	"ecosim/internal/economy"
	"ecosim/internal/model"
)

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) CalculatePrice(ctx context.Context, resourceID, marketID string, quantity float64) (float64, economy.PriceBreakdown, error) {
	args := m.Called(ctx, resourceID, marketID, quantity)
	return args.Get(0).(float64), economy.PriceBreakdown{FinalPrice: args.Get(0).(float64)}, args.Error(1)
}

func newBook(p Pricer) *Book {
	return NewBook(slog.New(slog.NewTextHandler(io.Discard, nil)), p)
}

func TestBook_Open(t *testing.T) {
	b := newBook(new(MockPricer))
	require.NoError(t, b.Open(Future{ID: "f1", MarketID: "m1", ResourceID: "gold", Quantity: 2, StrikePrice: 100, ExpiryTick: 10, Side: Long}))

	assert.ErrorIs(t, b.Open(Future{ID: "f2", MarketID: "m1", ResourceID: "gold", Quantity: 0, Side: Long}), model.ErrValidation)
	assert.ErrorIs(t, b.Open(Future{ID: "f3", MarketID: "m1", ResourceID: "gold", Quantity: 1, Side: 0}), model.ErrValidation)
	assert.Error(t, b.Open(Future{ID: "f1", MarketID: "m1", ResourceID: "gold", Quantity: 1, Side: Short}))

	open, err := b.GetOpenFutures(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, StatusOpen, open[0].Status)

	open, err = b.GetOpenFutures(context.Background(), "other")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestBook_SettleFuture(t *testing.T) {
	pricer := new(MockPricer)
	pricer.On("CalculatePrice", mock.Anything, "gold", "m1", 2.0).Return(230.0, nil)
	b := newBook(pricer)
	ctx := context.Background()

	require.NoError(t, b.Open(Future{ID: "long", MarketID: "m1", ResourceID: "gold", Quantity: 2, StrikePrice: 100, Side: Long}))
	require.NoError(t, b.Open(Future{ID: "short", MarketID: "m1", ResourceID: "gold", Quantity: 2, StrikePrice: 100, Side: Short}))

	s, err := b.SettleFuture(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, model.Settlement{FutureID: "long", ProfitLoss: 30, ResourceID: "gold", MarketID: "m1"}, s)

	s, err = b.SettleFuture(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, -30.0, s.ProfitLoss)

	_, err = b.SettleFuture(ctx, "long")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.SettleFuture(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
	pricer.AssertNumberOfCalls(t, "CalculatePrice", 2)
}

func TestBook_ProcessExpiringFutures(t *testing.T) {
	pricer := new(MockPricer)
	pricer.On("CalculatePrice", mock.Anything, "gold", "m1", 1.0).Return(120.0, nil)
	pricer.On("CalculatePrice", mock.Anything, "gone", "m1", 1.0).Return(0.0, database.ErrNotFound)
	pricer.On("CalculatePrice", mock.Anything, "ore", "m1", 1.0).Return(0.0, errors.New("store offline"))
	b := newBook(pricer)
	ctx := context.Background()

	require.NoError(t, b.Open(Future{ID: "a", MarketID: "m1", ResourceID: "gold", Quantity: 1, StrikePrice: 100, ExpiryTick: 5, Side: Long}))
	require.NoError(t, b.Open(Future{ID: "b", MarketID: "m1", ResourceID: "gone", Quantity: 1, StrikePrice: 100, ExpiryTick: 3, Side: Long}))
	require.NoError(t, b.Open(Future{ID: "c", MarketID: "m1", ResourceID: "ore", Quantity: 1, StrikePrice: 100, ExpiryTick: 5, Side: Long}))
	require.NoError(t, b.Open(Future{ID: "d", MarketID: "m1", ResourceID: "gold", Quantity: 1, StrikePrice: 100, ExpiryTick: 9, Side: Long}))

	report, err := b.ProcessExpiringFutures(ctx, 5)
	require.NoError(t, err)
	require.Len(t, report.Settled, 1)
	assert.Equal(t, "a", report.Settled[0].FutureID)
	assert.Equal(t, 20.0, report.Settled[0].ProfitLoss)
	assert.Equal(t, []string{"b"}, report.Expired)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "store offline")

	// the failed settlement stays open and is retried on a later tick
	c, err := b.Get("c")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, c.Status)
	expired, err := b.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	open, err := b.GetOpenFutures(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, open, 2)
}
