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
// Registry
// =============================================================================

// addStrategy registers addr. Reachable only through governance.
func (c *call) addStrategy(addr identity.Principal) error {
	if err := c.v.validate(addr); err != nil {
		return ErrStrategyNotFound.Wrapf("invalid strategy address: %v", err)
	}
	list, err := c.strategyList()
	if err != nil {
		return err
	}
	if identity.Contains(list, addr) {
		return ErrAlreadyRegistered.Wrapf("strategy %s", addr)
	}
	if err := c.setStrategyList(append(list, addr)); err != nil {
		return err
	}
	c.emit(events.NewEvent(events.EventStrategyAdded).Principal(addr.String()))
	return nil
}

func (c *call) requireRegistered(addr identity.Principal) ([]identity.Principal, error) {
	list, err := c.strategyList()
	if err != nil {
		return nil, err
	}
	if !identity.Contains(list, addr) {
		return nil, ErrStrategyNotFound.Wrapf("strategy %s", addr)
	}
	return list, nil
}

// RemoveStrategy pulls the strategy's full balance back into the vault,
// credits it to total assets and drops the strategy, its health record and
// its target allocation.
func (v *Vault) RemoveStrategy(ctx context.Context, addr identity.Principal) (sdkmath.Int, error) {
	var recovered sdkmath.Int
	err := v.mutate(ctx, "remove_strategy", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.requireAdmin(); err != nil {
			return err
		}
		list, err := c.requireRegistered(addr)
		if err != nil {
			return err
		}

		m, err := c.module(addr)
		if err != nil {
			return err
		}
		bal, err := m.Balance(c.ctx)
		if err != nil {
			return ErrStrategyCall.Wrapf("balance of %s: %v", addr, err)
		}
		bal = amount.OrZero(bal)
		if bal.IsPositive() {
			totalAssets, err := amount.Add(c.st.TotalAssets, bal)
			if err != nil {
				return checked(err, "total assets")
			}
			if err := m.Withdraw(c.ctx, bal); err != nil {
				return ErrStrategyCall.Wrapf("withdraw %s from %s: %v", bal, addr, err)
			}
			if err := c.transfer(addr, c.v.address, bal); err != nil {
				return err
			}
			c.st.TotalAssets = totalAssets
		}

		idx := identity.IndexOf(list, addr)
		rest := append(append([]identity.Principal(nil), list[:idx]...), list[idx+1:]...)
		if err := c.setStrategyList(rest); err != nil {
			return err
		}
		if err := c.tx.Delete(ledger.HealthKey(addr)); err != nil {
			return err
		}
		allocs, err := c.allocations()
		if err != nil {
			return err
		}
		kept := allocs[:0]
		for _, a := range allocs {
			if a.Strategy != addr {
				kept = append(kept, a)
			}
		}
		if err := c.setAllocations(kept); err != nil {
			return err
		}

		recovered = bal
		c.emit(events.NewEvent(events.EventStrategyRemoved).
			Principal(addr.String()).
			Amount(bal.String()))
		return nil
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return recovered, nil
}

// Strategies returns the registered strategies in registration order.
func (v *Vault) Strategies(ctx context.Context) ([]identity.Principal, error) {
	var list []identity.Principal
	err := v.view(ctx, func(c *call) error {
		var err error
		list, err = c.strategyList()
		return err
	})
	return list, err
}

// =============================================================================
// Oracle
// =============================================================================

// SetOracleData replaces the target allocations. timestamp must be newer
// than the previous update and not in the future.
func (v *Vault) SetOracleData(ctx context.Context, allocations []Allocation, timestamp uint64) error {
	return v.mutate(ctx, "set_oracle_data", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.require(c.st.Oracle); err != nil {
			return err
		}
		if timestamp > c.now {
			return ErrInvalidTimestamp.Wrapf("timestamp %d is after now %d", timestamp, c.now)
		}
		if timestamp <= c.st.OracleLastUpdate {
			return ErrInvalidTimestamp.Wrapf("timestamp %d not after last update %d", timestamp, c.st.OracleLastUpdate)
		}

		list, err := c.strategyList()
		if err != nil {
			return err
		}
		seen := make(map[identity.Principal]struct{}, len(allocations))
		next := make([]Allocation, 0, len(allocations))
		for _, a := range allocations {
			if !identity.Contains(list, a.Strategy) {
				return ErrStrategyNotFound.Wrapf("allocation for %s", a.Strategy)
			}
			if _, dup := seen[a.Strategy]; dup {
				return ErrInvalidAllocation.Wrapf("duplicate allocation for %s", a.Strategy)
			}
			seen[a.Strategy] = struct{}{}
			if a.Target.IsNil() || a.Target.IsNegative() {
				return ErrInvalidAllocation.Wrapf("negative target for %s", a.Strategy)
			}
			if _, err := amount.Check(a.Target); err != nil {
				return checked(err, "allocation target")
			}
			next = append(next, a)
		}

		if err := c.setAllocations(next); err != nil {
			return err
		}
		c.st.OracleLastUpdate = timestamp
		c.emit(events.NewEvent(events.EventOracleUpdated).
			Principal(c.st.Oracle.String()).
			Metadata("timestamp", strconv.FormatUint(timestamp, 10)).
			Metadata("allocations", strconv.Itoa(len(next))))
		return nil
	})
}

// Allocations returns the current target allocations.
func (v *Vault) Allocations(ctx context.Context) ([]Allocation, error) {
	var list []Allocation
	err := v.view(ctx, func(c *call) error {
		var err error
		list, err = c.allocations()
		return err
	})
	return list, err
}

// =============================================================================
// Rebalance & Harvest
// =============================================================================

// Rebalance moves funds between the vault and its strategies towards the
// oracle targets. Either the admin or the oracle may call it. When any
// strategy ends further than maxSlippageBps from its target, the executed
// moves and a slippage event per offending strategy are kept and
// ErrSlippageExceeded is returned with the report.
func (v *Vault) Rebalance(ctx context.Context, maxSlippageBps uint32) (RebalanceReport, error) {
	var report RebalanceReport
	err := v.mutate(ctx, "rebalance", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.requireAny(c.st.Admin, c.st.Oracle); err != nil {
			return err
		}
		var err error
		report, err = c.rebalance(maxSlippageBps)
		return err
	})
	return report, err
}

func (c *call) rebalance(maxSlippageBps uint32) (RebalanceReport, error) {
	report := RebalanceReport{MaxSlippageBps: maxSlippageBps}

	var age uint64
	if c.now > c.st.OracleLastUpdate {
		age = c.now - c.st.OracleLastUpdate
	}
	if age > c.st.MaxStaleness {
		return report, ErrStaleOracleData.Wrapf("oracle data is %ds old, max %ds", age, c.st.MaxStaleness)
	}

	allocs, err := c.allocations()
	if err != nil {
		return report, err
	}

	for _, a := range allocs {
		m, err := c.module(a.Strategy)
		if err != nil {
			return report, err
		}
		current, err := m.Balance(c.ctx)
		if err != nil {
			return report, ErrStrategyCall.Wrapf("balance of %s: %v", a.Strategy, err)
		}
		current = amount.OrZero(current)
		move := RebalanceMove{
			Strategy:  a.Strategy,
			Target:    a.Target,
			Before:    current,
			Deposited: amount.Zero(),
			Withdrawn: amount.Zero(),
		}

		switch {
		case current.LT(a.Target):
			diff := a.Target.Sub(current)
			if err := c.transfer(c.v.address, a.Strategy, diff); err != nil {
				return report, err
			}
			if err := m.Deposit(c.ctx, diff); err != nil {
				return report, ErrStrategyCall.Wrapf("deposit %s into %s: %v", diff, a.Strategy, err)
			}
			move.Deposited = diff
		case current.GT(a.Target):
			diff := current.Sub(a.Target)
			if err := m.Withdraw(c.ctx, diff); err != nil {
				return report, ErrStrategyCall.Wrapf("withdraw %s from %s: %v", diff, a.Strategy, err)
			}
			if err := c.transfer(a.Strategy, c.v.address, diff); err != nil {
				return report, err
			}
			move.Withdrawn = diff
		}
		report.Moves = append(report.Moves, move)
	}

	bound := sdkmath.NewIntFromUint64(uint64(maxSlippageBps))
	for i := range report.Moves {
		move := &report.Moves[i]
		m, err := c.module(move.Strategy)
		if err != nil {
			return report, err
		}
		final, err := m.Balance(c.ctx)
		if err != nil {
			return report, ErrStrategyCall.Wrapf("balance of %s: %v", move.Strategy, err)
		}
		move.After = amount.OrZero(final)
		move.SlippageBps = amount.Zero()
		if move.Target.IsZero() {
			continue
		}
		deviation, err := amount.Abs(move.After.Sub(move.Target))
		if err != nil {
			return report, checked(err, "slippage")
		}
		bps, err := amount.MulDiv(deviation, sdkmath.NewInt(amount.BpsDenominator), move.Target)
		if err != nil {
			return report, checked(err, "slippage")
		}
		move.SlippageBps = bps
		move.Exceeded = bps.GT(bound)
	}

	exceeded := report.Exceeded()
	if len(exceeded) > 0 {
		for _, move := range report.Moves {
			if !move.Exceeded {
				continue
			}
			c.emit(events.NewEvent(events.EventSlippage).
				Severity(events.SeverityWarning).
				Principal(move.Strategy.String()).
				Amount(move.After.String()).
				Metadata("target", move.Target.String()).
				Metadata("slippage_bps", move.SlippageBps.String()).
				Metadata("max_slippage_bps", bound.String()))
		}
		return report, commitThenFail(ErrSlippageExceeded.Wrapf("%d strategies above %d bps", len(exceeded), maxSlippageBps))
	}

	c.emit(events.NewEvent(events.EventRebalanced).
		Metadata("strategies", strconv.Itoa(len(report.Moves))).
		Metadata("max_slippage_bps", bound.String()))
	return report, nil
}

// Harvest books the strategies' current balances as yield by adding them to
// total assets without minting shares, raising the share price.
func (v *Vault) Harvest(ctx context.Context) (sdkmath.Int, error) {
	var yield sdkmath.Int
	err := v.mutate(ctx, "harvest", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.requireAdmin(); err != nil {
			return err
		}
		list, err := c.strategyList()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return ErrNoStrategies
		}

		total := amount.Zero()
		for _, addr := range list {
			m, err := c.module(addr)
			if err != nil {
				return err
			}
			bal, err := m.Balance(c.ctx)
			if err != nil {
				return ErrStrategyCall.Wrapf("balance of %s: %v", addr, err)
			}
			if total, err = amount.Add(total, amount.OrZero(bal)); err != nil {
				return checked(err, "harvest yield")
			}
		}

		if total.IsPositive() {
			totalAssets, err := amount.Add(c.st.TotalAssets, total)
			if err != nil {
				return checked(err, "total assets")
			}
			c.st.TotalAssets = totalAssets
		}
		yield = total
		c.emit(events.NewEvent(events.EventHarvest).
			Amount(total.String()).
			Metadata("strategies", strconv.Itoa(len(list))))
		return nil
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return yield, nil
}
