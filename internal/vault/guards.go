package vault

import (
	"context"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// Cap names used in CapExceeded diagnostics.
const (
	CapPerUserDeposit = "per_user_deposit"
	CapTotalAssets    = "total_assets"
	CapPerTxWithdraw  = "per_tx_withdraw"
)

func (c *call) capExceeded(user identity.Principal, name string, limit, projected sdkmath.Int) {
	c.diagnose(events.NewEvent(events.EventCapExceeded).
		Principal(user.String()).
		Amount(projected.String()).
		Metadata("cap", name).
		Metadata("limit", limit.String()))
}

// checkDepositCaps validates the post-deposit per-user value and vault total.
func (c *call) checkDepositCaps(user identity.Principal, pos Position, amt sdkmath.Int) error {
	held, err := convertToAssets(c.st, pos.Shares)
	if err != nil {
		return err
	}
	projectedUser, err := amount.Add(held, amt)
	if err != nil {
		return checked(err, "projected user value")
	}
	if projectedUser.GT(c.st.MaxDepositPerUser) {
		c.capExceeded(user, CapPerUserDeposit, c.st.MaxDepositPerUser, projectedUser)
		return ErrDepositCapExceeded.Wrapf("user %s would hold %s, cap %s", user, projectedUser, c.st.MaxDepositPerUser)
	}

	projectedTotal, err := amount.Add(c.st.TotalAssets, amt)
	if err != nil {
		return checked(err, "projected total assets")
	}
	if projectedTotal.GT(c.st.MaxTotalAssets) {
		c.capExceeded(user, CapTotalAssets, c.st.MaxTotalAssets, projectedTotal)
		return ErrDepositCapExceeded.Wrapf("total assets would be %s, cap %s", projectedTotal, c.st.MaxTotalAssets)
	}
	return nil
}

func (c *call) checkWithdrawCap(user identity.Principal, assets sdkmath.Int) error {
	if assets.GT(c.st.MaxWithdrawPerTx) {
		c.capExceeded(user, CapPerTxWithdraw, c.st.MaxWithdrawPerTx, assets)
		return ErrWithdrawCapExceeded.Wrapf("withdraw %s, cap %s", assets, c.st.MaxWithdrawPerTx)
	}
	return nil
}

// queuedShares sums the shares user has earmarked in the withdrawal queue.
func (c *call) queuedShares(user identity.Principal) (sdkmath.Int, error) {
	q, err := c.queue()
	if err != nil {
		return sdkmath.Int{}, err
	}
	total := amount.Zero()
	for _, e := range q {
		if e.User != user {
			continue
		}
		if total, err = amount.Add(total, e.Shares); err != nil {
			return sdkmath.Int{}, checked(err, "queued shares")
		}
	}
	return total, nil
}

// requireAvailableShares checks pos covers shares on top of queued requests.
func (c *call) requireAvailableShares(user identity.Principal, pos Position, shares sdkmath.Int) error {
	queued, err := c.queuedShares(user)
	if err != nil {
		return err
	}
	available := pos.Shares.Sub(queued)
	if shares.GT(available) {
		return ErrInsufficientShares.Wrapf("%s has %s available (%s queued), requested %s", user, available, queued, shares)
	}
	return nil
}

// =============================================================================
// Admin configuration
// =============================================================================

func nonNegative(name string, v sdkmath.Int) error {
	if v.IsNil() || v.IsNegative() {
		return ErrNegativeAmount.Wrapf("%s %s", name, v)
	}
	if _, err := amount.Check(v); err != nil {
		return checked(err, name)
	}
	return nil
}

// SetDepositCap sets the per-user and vault-wide deposit caps.
func (v *Vault) SetDepositCap(ctx context.Context, perUser, total sdkmath.Int) error {
	return v.mutate(ctx, "set_deposit_cap", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if err := nonNegative("per-user cap", perUser); err != nil {
			return err
		}
		if err := nonNegative("total cap", total); err != nil {
			return err
		}
		c.st.MaxDepositPerUser = perUser
		c.st.MaxTotalAssets = total
		c.emit(events.NewEvent(events.EventCapsUpdated).
			Metadata(CapPerUserDeposit, perUser.String()).
			Metadata(CapTotalAssets, total.String()))
		return nil
	})
}

// SetWithdrawCap sets the per-transaction withdrawal cap.
func (v *Vault) SetWithdrawCap(ctx context.Context, perTx sdkmath.Int) error {
	return v.mutate(ctx, "set_withdraw_cap", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if err := nonNegative("withdraw cap", perTx); err != nil {
			return err
		}
		c.st.MaxWithdrawPerTx = perTx
		c.emit(events.NewEvent(events.EventCapsUpdated).Metadata(CapPerTxWithdraw, perTx.String()))
		return nil
	})
}

// SetWithdrawQueueThreshold sets the asset value above which withdrawals queue.
func (v *Vault) SetWithdrawQueueThreshold(ctx context.Context, threshold sdkmath.Int) error {
	return v.mutate(ctx, "set_withdraw_queue_threshold", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if err := nonNegative("queue threshold", threshold); err != nil {
			return err
		}
		c.st.WithdrawQueueThreshold = threshold
		c.emit(events.NewEvent(events.EventCapsUpdated).Metadata("withdraw_queue_threshold", threshold.String()))
		return nil
	})
}

// SetMaxStaleness sets the oracle freshness window in seconds.
func (v *Vault) SetMaxStaleness(ctx context.Context, seconds uint64) error {
	return v.mutate(ctx, "set_max_staleness", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		c.st.MaxStaleness = seconds
		c.emit(events.NewEvent(events.EventCapsUpdated).Metadata("max_staleness", strconv.FormatUint(seconds, 10)))
		return nil
	})
}

// SetTimelockDuration sets the governance delay in seconds.
func (v *Vault) SetTimelockDuration(ctx context.Context, seconds uint64) error {
	return v.mutate(ctx, "set_timelock_duration", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		c.st.TimelockDuration = seconds
		c.emit(events.NewEvent(events.EventCapsUpdated).Metadata("timelock_duration", strconv.FormatUint(seconds, 10)))
		return nil
	})
}

// SetFeeBps sets the fee rate applied by TakeFees.
func (v *Vault) SetFeeBps(ctx context.Context, bps uint32) error {
	return v.mutate(ctx, "set_fee_bps", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if bps > amount.BpsDenominator {
			return ErrInvalidFee.Wrapf("fee %d bps", bps)
		}
		c.st.FeeBps = bps
		c.emit(events.NewEvent(events.EventCapsUpdated).Metadata("fee_bps", strconv.FormatUint(uint64(bps), 10)))
		return nil
	})
}
