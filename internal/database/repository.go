package database

import (
	"context"
	"errors"

	"ecosim/internal/model"
)

var (
	// ErrNotFound is returned when a resource, market or trade route does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientQuantity is returned when a transfer exceeds the origin amount.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// Repository defines the standard interface for database operations.
// Every call is transactionally consistent on its own; callers never rely on
// multi-call transactions.
type Repository interface {
	GetResource(ctx context.Context, id string) (model.Resource, error)
	GetResourcesByRegion(ctx context.Context, regionID string) ([]model.Resource, error)
	CreateResource(ctx context.Context, r model.Resource) error
	UpdateResource(ctx context.Context, r model.Resource) error
	DeleteResource(ctx context.Context, id string) error

	GetMarket(ctx context.Context, id string) (model.Market, error)
	GetMarketsByRegion(ctx context.Context, regionID string) ([]model.Market, error)
	CreateMarket(ctx context.Context, m model.Market) error
	UpdateMarket(ctx context.Context, m model.Market) error
	DeleteMarket(ctx context.Context, id string) error

	GetTradeRoute(ctx context.Context, id string) (model.TradeRoute, error)
	GetTradeRoutesByRegion(ctx context.Context, regionID string, asOrigin, asDestination bool) ([]model.TradeRoute, error)
	GetActiveTradeRoutes(ctx context.Context) ([]model.TradeRoute, error)
	CreateTradeRoute(ctx context.Context, r model.TradeRoute) error
	UpdateTradeRoute(ctx context.Context, r model.TradeRoute) error
	DeleteTradeRoute(ctx context.Context, id string) error

	// TransferResource moves amount from the origin resource to the resource of the
	// same type and name in the destination region, creating it when missing.
	// Both sides are written in one transaction or not at all.
	TransferResource(ctx context.Context, t Transfer) (TransferResult, error)
}

// Transfer describes one atomic resource movement between regions.
type Transfer struct {
	OriginResourceID    string
	DestinationRegionID string
	Amount              float64
	// NewResourceID is used when the destination resource has to be created.
	NewResourceID string
}

// TransferResult holds both sides of a committed transfer.
type TransferResult struct {
	Origin      model.Resource
	Destination model.Resource
	Created     bool
}

// matchesDestination reports whether candidate is the destination-region counterpart of origin.
func matchesDestination(origin, candidate model.Resource, regionID string) bool {
	return candidate.RegionID == regionID && candidate.Type == origin.Type && candidate.Name == origin.Name
}

// newDestination builds the resource created on the receiving side of a transfer.
func newDestination(origin model.Resource, t Transfer) model.Resource {
	return model.Resource{
		ID:                  t.NewResourceID,
		Type:                origin.Type,
		Name:                origin.Name,
		RegionID:            t.DestinationRegionID,
		BasePrice:           origin.BasePrice,
		MinimumViableAmount: origin.MinimumViableAmount,
	}
}

func validateTransfer(t Transfer) error {
	switch {
	case t.OriginResourceID == "":
		return errors.Join(model.ErrValidation, errors.New("transfer needs an origin resource"))
	case t.DestinationRegionID == "":
		return errors.Join(model.ErrValidation, errors.New("transfer needs a destination region"))
	case t.Amount <= 0:
		return errors.Join(model.ErrValidation, errors.New("transfer amount must be positive"))
	}
	return nil
}
