// Package futures keeps an in-memory book of resource futures and settles them against
// current market quotes.
package futures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"ecosim/internal/database"
	"ecosim/internal/economy"
	"ecosim/internal/model"
)

// ErrClosed is returned when settling a future that is no longer open.
var ErrClosed = errors.New("future is not open")

// Side is +1 for a long position and -1 for a short one.
type Side int

const (
	Long  Side = 1
	Short Side = -1
)

// Status of a future in the book.
type Status string

const (
	StatusOpen    Status = "open"
	StatusSettled Status = "settled"
	StatusExpired Status = "expired"
)

// Future is an agreement to trade quantity of a resource on a market at the strike price.
type Future struct {
	ID          string  `json:"id"`
	MarketID    string  `json:"market_id"`
	ResourceID  string  `json:"resource_id"`
	Quantity    float64 `json:"quantity"`
	StrikePrice float64 `json:"strike_price"`
	ExpiryTick  int64   `json:"expiry_tick"`
	Side        Side    `json:"side"`
	Status      Status  `json:"status"`
	ProfitLoss  float64 `json:"profit_loss"`
}

// Pricer quotes a resource on a market.
type Pricer interface {
	CalculatePrice(ctx context.Context, resourceID, marketID string, quantity float64) (float64, economy.PriceBreakdown, error)
}

// Book holds futures and settles them. It is safe for concurrent use.
type Book struct {
	logger *slog.Logger
	pricer Pricer

	mu      sync.Mutex
	futures map[string]*Future
}

// NewBook creates an empty book settling against pricer.
func NewBook(logger *slog.Logger, pricer Pricer) *Book {
	return &Book{logger: logger, pricer: pricer, futures: make(map[string]*Future)}
}

// Open adds a future to the book.
func (b *Book) Open(f Future) error {
	switch {
	case f.ID == "" || f.MarketID == "" || f.ResourceID == "":
		return fmt.Errorf("%w: future needs an id, market and resource", model.ErrValidation)
	case f.Quantity <= 0 || f.StrikePrice < 0:
		return fmt.Errorf("%w: future %s needs a positive quantity and non-negative strike", model.ErrValidation, f.ID)
	case f.Side != Long && f.Side != Short:
		return fmt.Errorf("%w: future %s has unknown side %d", model.ErrValidation, f.ID, f.Side)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.futures[f.ID]; exists {
		return fmt.Errorf("future %s already exists", f.ID)
	}
	f.Status = StatusOpen
	b.futures[f.ID] = &f
	return nil
}

// GetOpenFutures lists the open futures, optionally only those on one market.
func (b *Book) GetOpenFutures(_ context.Context, marketID string) ([]Future, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Future
	for _, f := range b.futures {
		if f.Status == StatusOpen && (marketID == "" || f.MarketID == marketID) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a future in any status.
func (b *Book) Get(id string) (Future, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.futures[id]
	if !ok {
		return Future{}, fmt.Errorf("future %s: %w", id, database.ErrNotFound)
	}
	return *f, nil
}

// SettleFuture closes a future at the current quote: side * (quote - strike * quantity).
func (b *Book) SettleFuture(ctx context.Context, id string) (model.Settlement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.futures[id]
	if !ok {
		return model.Settlement{}, fmt.Errorf("future %s: %w", id, database.ErrNotFound)
	}
	return b.settle(ctx, f)
}

func (b *Book) settle(ctx context.Context, f *Future) (model.Settlement, error) {
	if f.Status != StatusOpen {
		return model.Settlement{}, fmt.Errorf("future %s is %s: %w", f.ID, f.Status, ErrClosed)
	}
	quote, _, err := b.pricer.CalculatePrice(ctx, f.ResourceID, f.MarketID, f.Quantity)
	if err != nil {
		return model.Settlement{}, fmt.Errorf("quote future %s: %w", f.ID, err)
	}
	f.ProfitLoss = float64(f.Side) * (quote - f.StrikePrice*f.Quantity)
	f.Status = StatusSettled
	return model.Settlement{FutureID: f.ID, ProfitLoss: f.ProfitLoss, ResourceID: f.ResourceID, MarketID: f.MarketID}, nil
}

// ProcessExpiringFutures settles every open future whose expiry tick has been reached.
// Futures whose resource or market no longer exists expire without settlement.
func (b *Book) ProcessExpiringFutures(ctx context.Context, tick int64) (model.FuturesReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := model.FuturesReport{Settled: []model.Settlement{}, Expired: []string{}, Errors: []string{}}
	ids := make([]string, 0, len(b.futures))
	for id, f := range b.futures {
		if f.Status == StatusOpen && f.ExpiryTick <= tick {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		f := b.futures[id]
		s, err := b.settle(ctx, f)
		switch {
		case errors.Is(err, database.ErrNotFound):
			f.Status = StatusExpired
			report.Expired = append(report.Expired, id)
			b.logger.Warn("Future expired without settlement", "future", id, "error", err)
		case err != nil:
			report.Errors = append(report.Errors, err.Error())
			b.logger.Error("Failed to settle future", "future", id, "error", err)
		default:
			report.Settled = append(report.Settled, s)
		}
	}
	return report, nil
}
