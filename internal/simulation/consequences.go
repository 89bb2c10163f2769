package simulation

import (
	"context"
	"fmt"
	"math"

	"ecosim/internal/model"
)

// staged holds copies touched by one event; nothing is saved unless every copy was prepared.
type staged struct {
	resources []model.Resource
	markets   []model.Market
}

// applyConsequences feeds an event back into the region's resources and markets.
// Random filler events have no numeric effect.
func (o *Orchestrator) applyConsequences(ctx context.Context, ev model.EconomicEvent) error {
	if ev.Cause == model.CauseRandom {
		return nil
	}
	s := ev.Severity
	var (
		st  staged
		err error
	)
	switch {
	case ev.Type == model.EventFamine:
		st, err = o.stage(ctx, ev, func(r *model.Resource) { r.Amount *= math.Max(0, 1-0.1*s) }, 1+0.2*s)
	case ev.Type == model.EventHarvest:
		st, err = o.stage(ctx, ev, func(r *model.Resource) { r.Amount *= 1 + 0.1*s }, 1-0.1*s)
	case ev.Type == model.EventBoom && ev.Cause == model.CauseAbundance:
		st, err = o.stage(ctx, ev, func(r *model.Resource) { r.Amount *= 1 + 0.05*s }, 0)
	case ev.Type == model.EventBust && ev.ResourceID != "":
		st, err = o.stage(ctx, ev, nil, 1+0.1*s)
	case ev.Cause == model.CausePriceInflation:
		st, err = o.stageRegion(ctx, ev.RegionID, func(m *model.Market) { scaleAll(m, 1-0.05*s) })
	case ev.Cause == model.CausePriceDeflation:
		st, err = o.stageRegion(ctx, ev.RegionID, func(m *model.Market) { scaleAll(m, 1+0.05*s) })
	case ev.Cause == model.CauseHighTaxation:
		st, err = o.stageRegion(ctx, ev.RegionID, func(m *model.Market) { m.TaxRate = model.Clamp(m.TaxRate*(1-0.05*s), 0, 1) })
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return o.commit(ctx, st)
}

// stage prepares a resource-scoped consequence. A zero factor leaves modifiers alone.
func (o *Orchestrator) stage(ctx context.Context, ev model.EconomicEvent, amount func(*model.Resource), factor float64) (staged, error) {
	var st staged
	if amount != nil {
		resources, err := o.engine.Resources(ctx, ev.RegionID)
		if err != nil {
			return st, err
		}
		for _, r := range resources {
			if r.ID != ev.ResourceID {
				continue
			}
			amount(&r)
			r.Amount = math.Max(0, r.Amount)
			st.resources = append(st.resources, r)
		}
	}
	if factor == 0 {
		return st, nil
	}
	err := o.appendMarkets(ctx, ev.RegionID, &st, func(m *model.Market) {
		m.SetModifier(ev.ResourceID, m.Modifier(ev.ResourceID)*factor, model.MinPriceModifier, model.MaxPriceModifier)
	})
	return st, err
}

func (o *Orchestrator) stageRegion(ctx context.Context, regionID string, edit func(*model.Market)) (staged, error) {
	var st staged
	err := o.appendMarkets(ctx, regionID, &st, edit)
	return st, err
}

func (o *Orchestrator) appendMarkets(ctx context.Context, regionID string, st *staged, edit func(*model.Market)) error {
	markets, err := o.engine.Markets(ctx, regionID)
	if err != nil {
		return err
	}
	now := o.now()
	for _, market := range markets {
		m := market.Clone()
		edit(&m)
		m.UpdatedAt = now
		st.markets = append(st.markets, m)
	}
	return nil
}

func scaleAll(m *model.Market, factor float64) {
	for resourceID, pm := range m.PriceModifiers {
		m.SetModifier(resourceID, pm.Modifier*factor, model.MinPriceModifier, model.MaxPriceModifier)
	}
}

func (o *Orchestrator) commit(ctx context.Context, st staged) error {
	for _, r := range st.resources {
		if err := o.engine.SaveResource(ctx, r); err != nil {
			return fmt.Errorf("save resource %s: %w", r.ID, err)
		}
	}
	for _, m := range st.markets {
		if err := o.engine.SaveMarket(ctx, m); err != nil {
			return fmt.Errorf("save market %s: %w", m.ID, err)
		}
	}
	return nil
}
