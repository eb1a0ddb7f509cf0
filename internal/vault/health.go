package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// healthTolerance is the divisor of the target allowed as drift: 1/10.
var healthTolerance = sdkmath.NewInt(10)

// isHealthy reports whether actual is within 10% of expected. An unset
// expectation is always healthy.
func isHealthy(expected, actual sdkmath.Int) (bool, error) {
	if expected.IsZero() {
		return true, nil
	}
	deviation, err := amount.Abs(actual.Sub(expected))
	if err != nil {
		return false, checked(err, "health deviation")
	}
	limit, err := amount.Abs(expected)
	if err != nil {
		return false, checked(err, "health tolerance")
	}
	return !deviation.GT(limit.Quo(healthTolerance)), nil
}

// CheckStrategyHealth compares every strategy's live balance with its target
// allocation and returns the strategies that are unhealthy.
func (v *Vault) CheckStrategyHealth(ctx context.Context) ([]identity.Principal, error) {
	var unhealthy []identity.Principal
	err := v.mutate(ctx, "check_strategy_health", func(c *call) error {
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
		allocs, err := c.allocations()
		if err != nil {
			return err
		}
		targets := make(map[identity.Principal]sdkmath.Int, len(allocs))
		for _, a := range allocs {
			targets[a.Strategy] = a.Target
		}

		for _, addr := range list {
			m, err := c.module(addr)
			if err != nil {
				return err
			}
			actual, err := m.Balance(c.ctx)
			if err != nil {
				return ErrStrategyCall.Wrapf("balance of %s: %v", addr, err)
			}
			actual = amount.OrZero(actual)
			expected := amount.OrZero(targets[addr])

			healthy, err := isHealthy(expected, actual)
			if err != nil {
				return err
			}
			if !healthy {
				unhealthy = append(unhealthy, addr)
			}

			prev, found, err := c.health(addr)
			if err != nil {
				return err
			}
			wasHealthy := !found || prev.IsHealthy
			if found && prev.IsHealthy == healthy && prev.LastKnownBalance.Equal(actual) {
				continue
			}
			if err := c.setHealth(addr, StrategyHealth{
				LastKnownBalance:   actual,
				LastCheckTimestamp: c.now,
				IsHealthy:          healthy,
			}); err != nil {
				return err
			}
			if wasHealthy && !healthy {
				c.emit(events.NewEvent(events.EventStrategyFlagged).
					Severity(events.SeverityWarning).
					Principal(addr.String()).
					Amount(actual.String()).
					Metadata("expected", expected.String()).
					Metadata("reason", "balance drift"))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unhealthy, nil
}

// FlagStrategy marks a strategy unhealthy regardless of its balance.
func (v *Vault) FlagStrategy(ctx context.Context, addr identity.Principal) error {
	return v.mutate(ctx, "flag_strategy", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if _, err := c.requireRegistered(addr); err != nil {
			return err
		}
		prev, _, err := c.health(addr)
		if err != nil {
			return err
		}
		if err := c.setHealth(addr, StrategyHealth{
			LastKnownBalance:   prev.LastKnownBalance,
			LastCheckTimestamp: c.now,
			IsHealthy:          false,
		}); err != nil {
			return err
		}
		c.emit(events.NewEvent(events.EventStrategyFlagged).
			Severity(events.SeverityWarning).
			Principal(addr.String()).
			Metadata("reason", "manual"))
		return nil
	})
}

// StrategyHealth returns the last recorded health of addr, if any.
func (v *Vault) StrategyHealth(ctx context.Context, addr identity.Principal) (StrategyHealth, bool, error) {
	var (
		h  StrategyHealth
		ok bool
	)
	err := v.view(ctx, func(c *call) error {
		var err error
		h, ok, err = c.health(addr)
		return err
	})
	return h, ok, err
}
