package vault

import (
	"context"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
)

// =============================================================================
// Conversions
// =============================================================================

// convertToShares prices amt of assets in shares, rounding down. An empty
// vault mints 1:1.
func convertToShares(st State, amt sdkmath.Int) (sdkmath.Int, error) {
	if amt.IsNegative() {
		return sdkmath.Int{}, ErrNegativeAmount.Wrapf("amount %s", amt)
	}
	if st.TotalShares.IsZero() || st.TotalAssets.IsZero() {
		return amt, nil
	}
	shares, err := amount.MulDiv(amt, st.TotalShares, st.TotalAssets)
	return shares, checked(err, "convert to shares")
}

// convertToAssets prices shares in assets, rounding down. An empty vault
// prices 1:1.
func convertToAssets(st State, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsNegative() {
		return sdkmath.Int{}, ErrNegativeAmount.Wrapf("shares %s", shares)
	}
	if st.TotalShares.IsZero() || st.TotalAssets.IsZero() {
		return shares, nil
	}
	assets, err := amount.MulDiv(shares, st.TotalAssets, st.TotalShares)
	return assets, checked(err, "convert to assets")
}

// takeFees returns amt net of the vault fee, rounding the fee down.
func takeFees(st State, amt sdkmath.Int) (sdkmath.Int, error) {
	if amt.IsNegative() {
		return sdkmath.Int{}, ErrNegativeAmount.Wrapf("amount %s", amt)
	}
	if st.FeeBps == 0 {
		return amt, nil
	}
	fee, err := amount.MulDiv(amt, sdkmath.NewIntFromUint64(uint64(st.FeeBps)), sdkmath.NewInt(amount.BpsDenominator))
	if err != nil {
		return sdkmath.Int{}, checked(err, "fee")
	}
	return amt.Sub(fee), nil
}

// ConvertToShares prices amt of assets in shares at the current rate.
func (v *Vault) ConvertToShares(ctx context.Context, amt sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.view(ctx, func(c *call) error {
		var err error
		out, err = convertToShares(c.st, amt)
		return err
	})
	return out, err
}

// ConvertToAssets prices shares in assets at the current rate.
func (v *Vault) ConvertToAssets(ctx context.Context, shares sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.view(ctx, func(c *call) error {
		var err error
		out, err = convertToAssets(c.st, shares)
		return err
	})
	return out, err
}

// TakeFees returns amt minus the configured fee.
func (v *Vault) TakeFees(ctx context.Context, amt sdkmath.Int) (sdkmath.Int, error) {
	var out sdkmath.Int
	err := v.view(ctx, func(c *call) error {
		var err error
		out, err = takeFees(c.st, amt)
		return err
	})
	return out, err
}

// =============================================================================
// Initialization
// =============================================================================

// Init creates the vault state. The admin must authorize the call.
func (v *Vault) Init(ctx context.Context, p InitParams) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	tx := v.store.Begin()
	defer tx.Discard()

	exists, err := tx.Has(ctx, ledger.Singleton(ledger.KindState))
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialized
	}

	for _, pr := range append([]identity.Principal{p.Admin, p.Oracle, p.Treasury}, p.Guardians...) {
		if err := v.validate(pr); err != nil {
			return ErrUnauthorized.Wrapf("invalid principal: %v", err)
		}
	}
	if p.Asset == "" {
		return ErrInvalidAmount.Wrap("asset is required")
	}
	if p.FeeBps > amount.BpsDenominator {
		return ErrInvalidFee.Wrapf("fee %d bps", p.FeeBps)
	}
	if err := p.Limits.validate(); err != nil {
		return err
	}
	guardians := GuardianSet{Guardians: append([]identity.Principal(nil), p.Guardians...), Threshold: p.Threshold}
	if err := guardians.Validate(); err != nil {
		return err
	}
	if err := v.authz.Require(ctx, p.Admin); err != nil {
		return ErrUnauthorized.Wrapf("%s: %v", p.Admin, err)
	}

	st := newState(p, v.layoutVersion)
	if err := tx.Set(ledger.Singleton(ledger.KindState), st); err != nil {
		return err
	}
	if err := tx.Set(ledger.Singleton(ledger.KindGuardians), guardians); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	v.sink.Log(events.NewEvent(events.EventInitialized).
		Vault(v.name).
		At(timeOf(v.now())).
		Principal(p.Admin.String()).
		Metadata("asset", p.Asset.String()).
		Metadata("guardians", strconv.Itoa(len(p.Guardians))).
		Metadata("threshold", strconv.FormatUint(uint64(p.Threshold), 10)).
		Metadata("version", strconv.FormatUint(uint64(v.layoutVersion), 10)).
		Build())
	v.log.WithField("admin", p.Admin).WithField("asset", p.Asset).Info("vault initialized")
	return nil
}

// =============================================================================
// Deposit & Withdraw
// =============================================================================

// Deposit moves amt of the base asset from the depositor into the vault and
// mints shares priced against pre-deposit totals.
func (v *Vault) Deposit(ctx context.Context, from identity.Principal, amt sdkmath.Int) (sdkmath.Int, error) {
	var minted sdkmath.Int
	err := v.mutate(ctx, "deposit", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if !amt.IsPositive() {
			return ErrInvalidAmount.Wrapf("deposit %s", amt)
		}
		if err := c.require(from); err != nil {
			return err
		}

		shares, err := convertToShares(c.st, amt)
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return ErrZeroShares.Wrapf("deposit %s", amt)
		}

		pos, err := c.position(from)
		if err != nil {
			return err
		}
		if err := c.checkDepositCaps(from, pos, amt); err != nil {
			return err
		}

		newShares, err := amount.Add(pos.Shares, shares)
		if err != nil {
			return checked(err, "position shares")
		}
		totalShares, err := amount.Add(c.st.TotalShares, shares)
		if err != nil {
			return checked(err, "total shares")
		}
		totalAssets, err := amount.Add(c.st.TotalAssets, amt)
		if err != nil {
			return checked(err, "total assets")
		}

		if err := c.transfer(from, c.v.address, amt); err != nil {
			return err
		}

		pos.Shares = newShares
		if err := c.setPosition(from, pos); err != nil {
			return err
		}
		c.st.TotalShares = totalShares
		c.st.TotalAssets = totalAssets
		minted = shares

		c.emit(events.NewEvent(events.EventDeposit).
			Principal(from.String()).
			Amount(amt.String()).
			Metadata("shares", shares.String()))
		return nil
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return minted, nil
}

// Withdraw redeems shares. Requests worth more than the queue threshold are
// queued instead of settled; the result says which happened.
func (v *Vault) Withdraw(ctx context.Context, from identity.Principal, shares sdkmath.Int) (WithdrawResult, error) {
	var res WithdrawResult
	err := v.mutate(ctx, "withdraw", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if !shares.IsPositive() {
			return ErrInvalidAmount.Wrapf("withdraw %s shares", shares)
		}
		if err := c.require(from); err != nil {
			return err
		}

		pos, err := c.position(from)
		if err != nil {
			return err
		}
		if err := c.requireAvailableShares(from, pos, shares); err != nil {
			return err
		}

		assets, err := convertToAssets(c.st, shares)
		if err != nil {
			return err
		}
		if err := c.checkWithdrawCap(from, assets); err != nil {
			return err
		}

		res.Assets = assets
		if assets.GT(c.st.WithdrawQueueThreshold) {
			res.Queued = true
			return c.enqueue(from, shares, assets)
		}
		return c.settle(from, pos, shares, assets, events.EventWithdraw)
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return res, nil
}

// settle burns shares from pos and pays assets out to user.
func (c *call) settle(user identity.Principal, pos Position, shares, assets sdkmath.Int, kind events.EventType) error {
	newShares, err := amount.Sub(pos.Shares, shares)
	if err != nil {
		return checked(err, "position shares")
	}
	totalShares, err := amount.Sub(c.st.TotalShares, shares)
	if err != nil {
		return checked(err, "total shares")
	}
	totalAssets, err := amount.Sub(c.st.TotalAssets, assets)
	if err != nil {
		return checked(err, "total assets")
	}
	if newShares.IsNegative() || totalShares.IsNegative() {
		return ErrInsufficientShares.Wrapf("%s holds %s, settling %s", user, pos.Shares, shares)
	}
	if totalAssets.IsNegative() {
		return ErrInvalidAmount.Wrapf("settling %s exceeds total assets %s", assets, c.st.TotalAssets)
	}

	if err := c.transfer(c.v.address, user, assets); err != nil {
		return err
	}

	pos.Shares = newShares
	if err := c.setPosition(user, pos); err != nil {
		return err
	}
	c.st.TotalShares = totalShares
	c.st.TotalAssets = totalAssets

	c.emit(events.NewEvent(kind).
		Principal(user.String()).
		Amount(assets.String()).
		Metadata("shares", shares.String()))
	return nil
}
