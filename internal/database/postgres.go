package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ecosim/internal/model"
)

// PostgresRepository stores entities in PostgreSQL through a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database and makes sure the schema exists.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	repo := &PostgresRepository{Pool: pool}
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	region_id TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL CHECK (amount >= 0),
	base_price DOUBLE PRECISION NOT NULL CHECK (base_price > 0),
	minimum_viable_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS resources_region_idx ON resources (region_id, type, name);

CREATE TABLE IF NOT EXISTS markets (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	region_id TEXT NOT NULL,
	market_type TEXT NOT NULL,
	price_modifiers JSONB NOT NULL DEFAULT '{}',
	supply_demand JSONB NOT NULL DEFAULT '{}',
	trading_volume JSONB NOT NULL DEFAULT '{}',
	tax_rate DOUBLE PRECISION NOT NULL CHECK (tax_rate >= 0 AND tax_rate <= 1),
	volatility DOUBLE PRECISION NOT NULL DEFAULT 0.05,
	supply_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS markets_region_idx ON markets (region_id);

CREATE TABLE IF NOT EXISTS trade_routes (
	id TEXT PRIMARY KEY,
	origin_region_id TEXT NOT NULL,
	destination_region_id TEXT NOT NULL CHECK (destination_region_id <> origin_region_id),
	frequency_ticks BIGINT NOT NULL CHECK (frequency_ticks > 0),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	resource_mapping JSONB,
	min_resource_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_resource_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_resource_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate creates the tables when they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, schema)
	return err
}

const resourceColumns = `id, type, name, region_id, amount, base_price, minimum_viable_amount, created_at, updated_at`

func (r *PostgresRepository) GetResource(ctx context.Context, id string) (model.Resource, error) {
	rows, _ := r.Pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
	res, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Resource])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return res, err
}

func (r *PostgresRepository) GetResourcesByRegion(ctx context.Context, regionID string) ([]model.Resource, error) {
	rows, _ := r.Pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE region_id = $1 ORDER BY id`, regionID)
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.Resource])
}

func (r *PostgresRepository) CreateResource(ctx context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO resources (id, type, name, region_id, amount, base_price, minimum_viable_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.Type, res.Name, res.RegionID, res.Amount, res.BasePrice, res.MinimumViableAmount)
	return err
}

func (r *PostgresRepository) UpdateResource(ctx context.Context, res model.Resource) error {
	if err := res.Validate(); err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE resources SET type = $2, name = $3, region_id = $4, amount = $5, base_price = $6,
			minimum_viable_amount = $7, updated_at = NOW()
		WHERE id = $1`,
		res.ID, res.Type, res.Name, res.RegionID, res.Amount, res.BasePrice, res.MinimumViableAmount)
	return affected(tag, err, "resource", res.ID)
}

func (r *PostgresRepository) DeleteResource(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	return affected(tag, err, "resource", id)
}

const marketColumns = `id, name, region_id, market_type, price_modifiers, supply_demand, trading_volume,
	tax_rate, volatility, supply_threshold, created_at, updated_at`

func scanMarket(row pgx.Row) (model.Market, error) {
	var (
		m                   model.Market
		marketType          string
		mods, sd, volumeRaw []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.RegionID, &marketType, &mods, &sd, &volumeRaw,
		&m.TaxRate, &m.Volatility, &m.SupplyThreshold, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return model.Market{}, err
	}
	m.Type = model.MarketType(marketType)
	if err := json.Unmarshal(mods, &m.PriceModifiers); err != nil {
		return model.Market{}, fmt.Errorf("market %s price modifiers: %w", m.ID, err)
	}
	if err := json.Unmarshal(sd, &m.SupplyDemand); err != nil {
		return model.Market{}, fmt.Errorf("market %s supply/demand: %w", m.ID, err)
	}
	if err := json.Unmarshal(volumeRaw, &m.TradingVolume); err != nil {
		return model.Market{}, fmt.Errorf("market %s trading volume: %w", m.ID, err)
	}
	return m, nil
}

func marketJSON(m model.Market) (mods, sd, volume string, err error) {
	encode := func(v any, isNil bool) (string, error) {
		if isNil {
			return "{}", nil
		}
		b, err := json.Marshal(v)
		return string(b), err
	}
	if mods, err = encode(m.PriceModifiers, m.PriceModifiers == nil); err != nil {
		return
	}
	if sd, err = encode(m.SupplyDemand, m.SupplyDemand == nil); err != nil {
		return
	}
	volume, err = encode(m.TradingVolume, m.TradingVolume == nil)
	return
}

func (r *PostgresRepository) GetMarket(ctx context.Context, id string) (model.Market, error) {
	m, err := scanMarket(r.Pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Market{}, fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return m, err
}

func (r *PostgresRepository) GetMarketsByRegion(ctx context.Context, regionID string) ([]model.Market, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+marketColumns+` FROM markets WHERE region_id = $1 ORDER BY id`, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateMarket(ctx context.Context, m model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	mods, sd, volume, err := marketJSON(m)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx, `
		INSERT INTO markets (id, name, region_id, market_type, price_modifiers, supply_demand, trading_volume,
			tax_rate, volatility, supply_threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Name, m.RegionID, string(m.Type), mods, sd, volume, m.TaxRate, m.Volatility, m.SupplyThreshold)
	return err
}

func (r *PostgresRepository) UpdateMarket(ctx context.Context, m model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	mods, sd, volume, err := marketJSON(m)
	if err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE markets SET name = $2, region_id = $3, market_type = $4, price_modifiers = $5,
			supply_demand = $6, trading_volume = $7, tax_rate = $8, volatility = $9,
			supply_threshold = $10, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.RegionID, string(m.Type), mods, sd, volume, m.TaxRate, m.Volatility, m.SupplyThreshold)
	return affected(tag, err, "market", m.ID)
}

func (r *PostgresRepository) DeleteMarket(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	return affected(tag, err, "market", id)
}

const routeColumns = `id, origin_region_id, destination_region_id, frequency_ticks, is_active, resource_mapping,
	min_resource_threshold, max_resource_percent, max_resource_amount, created_at, updated_at`

func scanRoute(row pgx.Row) (model.TradeRoute, error) {
	var (
		route   model.TradeRoute
		mapping []byte
	)
	err := row.Scan(&route.ID, &route.OriginRegionID, &route.DestinationRegionID, &route.FrequencyTicks,
		&route.IsActive, &mapping, &route.MinResourceThreshold, &route.MaxResourcePercent,
		&route.MaxResourceAmount, &route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		return model.TradeRoute{}, err
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &route.ResourceMapping); err != nil {
			return model.TradeRoute{}, fmt.Errorf("trade route %s mapping: %w", route.ID, err)
		}
	}
	return route, nil
}

func (r *PostgresRepository) queryRoutes(ctx context.Context, query string, args ...any) ([]model.TradeRoute, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TradeRoute
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, route)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetTradeRoute(ctx context.Context, id string) (model.TradeRoute, error) {
	route, err := scanRoute(r.Pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM trade_routes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TradeRoute{}, fmt.Errorf("trade route %s: %w", id, ErrNotFound)
	}
	return route, err
}

func (r *PostgresRepository) GetTradeRoutesByRegion(ctx context.Context, regionID string, asOrigin, asDestination bool) ([]model.TradeRoute, error) {
	return r.queryRoutes(ctx, `SELECT `+routeColumns+` FROM trade_routes
		WHERE ($2 AND origin_region_id = $1) OR ($3 AND destination_region_id = $1)
		ORDER BY id`, regionID, asOrigin, asDestination)
}

func (r *PostgresRepository) GetActiveTradeRoutes(ctx context.Context) ([]model.TradeRoute, error) {
	return r.queryRoutes(ctx, `SELECT `+routeColumns+` FROM trade_routes WHERE is_active ORDER BY id`)
}

func routeMapping(route model.TradeRoute) (*string, error) {
	if len(route.ResourceMapping) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(route.ResourceMapping)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func (r *PostgresRepository) CreateTradeRoute(ctx context.Context, route model.TradeRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	mapping, err := routeMapping(route)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx, `
		INSERT INTO trade_routes (id, origin_region_id, destination_region_id, frequency_ticks, is_active,
			resource_mapping, min_resource_threshold, max_resource_percent, max_resource_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		route.ID, route.OriginRegionID, route.DestinationRegionID, route.FrequencyTicks, route.IsActive,
		mapping, route.MinResourceThreshold, route.MaxResourcePercent, route.MaxResourceAmount)
	return err
}

func (r *PostgresRepository) UpdateTradeRoute(ctx context.Context, route model.TradeRoute) error {
	if err := route.Validate(); err != nil {
		return err
	}
	mapping, err := routeMapping(route)
	if err != nil {
		return err
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE trade_routes SET origin_region_id = $2, destination_region_id = $3, frequency_ticks = $4,
			is_active = $5, resource_mapping = $6, min_resource_threshold = $7, max_resource_percent = $8,
			max_resource_amount = $9, updated_at = NOW()
		WHERE id = $1`,
		route.ID, route.OriginRegionID, route.DestinationRegionID, route.FrequencyTicks, route.IsActive,
		mapping, route.MinResourceThreshold, route.MaxResourcePercent, route.MaxResourceAmount)
	return affected(tag, err, "trade route", route.ID)
}

func (r *PostgresRepository) DeleteTradeRoute(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM trade_routes WHERE id = $1`, id)
	return affected(tag, err, "trade route", id)
}

// TransferResource locks the origin and destination rows and commits both updates together.
func (r *PostgresRepository) TransferResource(ctx context.Context, t Transfer) (result TransferResult, err error) {
	if err := validateTransfer(t); err != nil {
		return TransferResult{}, err
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return TransferResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, _ := tx.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1 FOR UPDATE`, t.OriginResourceID)
	origin, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Resource])
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferResult{}, fmt.Errorf("resource %s: %w", t.OriginResourceID, ErrNotFound)
	}
	if err != nil {
		return TransferResult{}, err
	}
	if origin.RegionID == t.DestinationRegionID {
		return TransferResult{}, fmt.Errorf("%w: transfer within region %s", model.ErrValidation, origin.RegionID)
	}
	if t.Amount > origin.Amount {
		return TransferResult{}, fmt.Errorf("resource %s holds %v, requested %v: %w", origin.ID, origin.Amount, t.Amount, ErrInsufficientQuantity)
	}

	rows, _ = tx.Query(ctx, `SELECT `+resourceColumns+` FROM resources
		WHERE region_id = $1 AND type = $2 AND name = $3 ORDER BY id LIMIT 1 FOR UPDATE`,
		t.DestinationRegionID, origin.Type, origin.Name)
	dest, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Resource])
	created := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		dest = newDestination(origin, t)
		if dest.ID == "" {
			return TransferResult{}, fmt.Errorf("%w: destination resource needs an id", model.ErrValidation)
		}
		created = true
		err = nil
	case err != nil:
		return TransferResult{}, err
	}

	origin.Amount = max(origin.Amount-t.Amount, 0)
	dest.Amount += t.Amount
	now := time.Now()
	origin.UpdatedAt, dest.UpdatedAt = now, now

	if _, err = tx.Exec(ctx, `UPDATE resources SET amount = $2, updated_at = $3 WHERE id = $1`, origin.ID, origin.Amount, now); err != nil {
		return TransferResult{}, err
	}
	if created {
		dest.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO resources (id, type, name, region_id, amount, base_price, minimum_viable_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			dest.ID, dest.Type, dest.Name, dest.RegionID, dest.Amount, dest.BasePrice, dest.MinimumViableAmount, now)
	} else {
		_, err = tx.Exec(ctx, `UPDATE resources SET amount = $2, updated_at = $3 WHERE id = $1`, dest.ID, dest.Amount, now)
	}
	if err != nil {
		return TransferResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Origin: origin, Destination: dest, Created: created}, nil
}

func affected(tag pgconn.CommandTag, err error, kind, id string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
