package vault

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// SharePriceScale is the number of asset units a share price is quoted per.
const SharePriceScale = 10_000_000

// State returns a copy of the vault record.
func (v *Vault) State(ctx context.Context) (State, error) {
	var st State
	err := v.view(ctx, func(c *call) error {
		st = c.st
		return nil
	})
	return st, err
}

// TotalAssets returns the assets under management.
func (v *Vault) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	st, err := v.State(ctx)
	return st.TotalAssets, err
}

// TotalShares returns the outstanding shares.
func (v *Vault) TotalShares(ctx context.Context) (sdkmath.Int, error) {
	st, err := v.State(ctx)
	return st.TotalShares, err
}

// Paused reports whether value-moving operations are halted.
func (v *Vault) Paused(ctx context.Context) (bool, error) {
	st, err := v.State(ctx)
	return st.Paused, err
}

// SharesOf returns user's share balance, including shares earmarked in the
// withdrawal queue.
func (v *Vault) SharesOf(ctx context.Context, user identity.Principal) (sdkmath.Int, error) {
	var shares sdkmath.Int
	err := v.view(ctx, func(c *call) error {
		pos, err := c.position(user)
		shares = pos.Shares
		return err
	})
	return shares, err
}

// AllocationView is a target allocation with its share of the total target.
type AllocationView struct {
	Strategy   identity.Principal `json:"strategy"`
	Target     sdkmath.Int        `json:"target"`
	PercentBps uint32             `json:"percent_bps"`
}

// Snapshot is a point-in-time summary of the vault for dashboards.
type Snapshot struct {
	Name             string             `json:"name"`
	Address          identity.Principal `json:"address"`
	Asset            identity.AssetID   `json:"asset"`
	Version          uint32             `json:"version"`
	Paused           bool               `json:"paused"`
	FeeBps           uint32             `json:"fee_bps"`
	TotalAssets      sdkmath.Int        `json:"total_assets"`
	TotalShares      sdkmath.Int        `json:"total_shares"`
	SharePrice       sdkmath.Int        `json:"share_price"`
	OracleLastUpdate uint64             `json:"oracle_last_update"`
	Strategies       int                `json:"strategies"`
	QueuedRequests   int                `json:"queued_requests"`
	Guardians        int                `json:"guardians"`
	Threshold        uint32             `json:"threshold"`
	Allocations      []AllocationView   `json:"allocations"`
}

// sharePrice quotes SharePriceScale shares in assets. When the scaled product
// overflows, the price is the whole-unit ratio times the scale, saturating at
// amount.Max.
func sharePrice(st State) (sdkmath.Int, error) {
	scale := sdkmath.NewInt(SharePriceScale)
	price, err := convertToAssets(st, scale)
	if !errors.Is(err, ErrArithmeticOverflow) {
		return price, err
	}
	ratio, err := amount.Quo(st.TotalAssets, st.TotalShares)
	if err != nil {
		return sdkmath.Int{}, checked(err, "share price")
	}
	if price, err = amount.Mul(ratio, scale); err != nil {
		return amount.Max(), nil
	}
	return price, nil
}

// Snapshot summarises the vault. SharePrice is the asset value of
// SharePriceScale shares.
func (v *Vault) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := v.view(ctx, func(c *call) error {
		price, err := sharePrice(c.st)
		if err != nil {
			return err
		}
		list, err := c.strategyList()
		if err != nil {
			return err
		}
		q, err := c.queue()
		if err != nil {
			return err
		}
		g, err := c.guardians()
		if err != nil {
			return err
		}
		allocs, err := c.allocations()
		if err != nil {
			return err
		}
		views, err := allocationViews(allocs)
		if err != nil {
			return err
		}

		snap = Snapshot{
			Name:             c.v.name,
			Address:          c.v.address,
			Asset:            c.st.Asset,
			Version:          c.st.Version,
			Paused:           c.st.Paused,
			FeeBps:           c.st.FeeBps,
			TotalAssets:      c.st.TotalAssets,
			TotalShares:      c.st.TotalShares,
			SharePrice:       price,
			OracleLastUpdate: c.st.OracleLastUpdate,
			Strategies:       len(list),
			QueuedRequests:   len(q),
			Guardians:        len(g.Guardians),
			Threshold:        g.Threshold,
			Allocations:      views,
		}
		return nil
	})
	return snap, err
}

func allocationViews(allocs []Allocation) ([]AllocationView, error) {
	total := amount.Zero()
	for _, a := range allocs {
		var err error
		if total, err = amount.Add(total, a.Target); err != nil {
			return nil, checked(err, "allocation total")
		}
	}
	out := make([]AllocationView, 0, len(allocs))
	for _, a := range allocs {
		view := AllocationView{Strategy: a.Strategy, Target: a.Target}
		if total.IsPositive() {
			bps, err := amount.MulDiv(a.Target, sdkmath.NewInt(amount.BpsDenominator), total)
			if err != nil {
				return nil, checked(err, "allocation share")
			}
			view.PercentBps = uint32(bps.Uint64())
		}
		out = append(out, view)
	}
	return out, nil
}
