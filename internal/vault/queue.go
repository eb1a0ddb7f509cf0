package vault

import (
	"context"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// enqueue appends a withdrawal request. Shares stay in the position and are
// earmarked until the entry is processed or cancelled.
func (c *call) enqueue(user identity.Principal, shares, assets sdkmath.Int) error {
	q, err := c.queue()
	if err != nil {
		return err
	}
	q = append(q, QueuedWithdrawal{User: user, Shares: shares, Timestamp: c.now})
	if err := c.setQueue(q); err != nil {
		return err
	}
	c.emit(events.NewEvent(events.EventWithdrawQueued).
		Principal(user.String()).
		Amount(assets.String()).
		Metadata("shares", shares.String()).
		Metadata("position", strconv.Itoa(len(q))))
	return nil
}

// QueueWithdraw queues a withdrawal whose asset value exceeds the queue
// threshold. The per-transaction withdraw cap applies as it does to Withdraw.
// Nothing moves until ProcessQueuedWithdrawals runs.
func (v *Vault) QueueWithdraw(ctx context.Context, user identity.Principal, shares sdkmath.Int) error {
	return v.mutate(ctx, "queue_withdraw", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if !shares.IsPositive() {
			return ErrInvalidAmount.Wrapf("queue %s shares", shares)
		}
		if err := c.require(user); err != nil {
			return err
		}
		pos, err := c.position(user)
		if err != nil {
			return err
		}
		if err := c.requireAvailableShares(user, pos, shares); err != nil {
			return err
		}
		assets, err := convertToAssets(c.st, shares)
		if err != nil {
			return err
		}
		if err := c.checkWithdrawCap(user, assets); err != nil {
			return err
		}
		if !assets.GT(c.st.WithdrawQueueThreshold) {
			return ErrBelowQueueThreshold.Wrapf("%s assets, threshold %s", assets, c.st.WithdrawQueueThreshold)
		}
		return c.enqueue(user, shares, assets)
	})
}

// ProcessQueuedWithdrawals settles up to limit of the oldest queued requests
// at the current share price and returns how many were settled.
func (v *Vault) ProcessQueuedWithdrawals(ctx context.Context, limit uint32) (uint32, error) {
	var processed uint32
	err := v.mutate(ctx, "process_queued_withdrawals", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.requireAdmin(); err != nil {
			return err
		}
		q, err := c.queue()
		if err != nil {
			return err
		}

		n := int(limit)
		if n > len(q) {
			n = len(q)
		}
		for _, entry := range q[:n] {
			pos, err := c.position(entry.User)
			if err != nil {
				return err
			}
			if pos.Shares.LT(entry.Shares) {
				return ErrInsufficientShares.Wrapf("queued %s for %s, holds %s", entry.Shares, entry.User, pos.Shares)
			}
			assets, err := convertToAssets(c.st, entry.Shares)
			if err != nil {
				return err
			}
			if err := c.settle(entry.User, pos, entry.Shares, assets, events.EventWithdrawProcessed); err != nil {
				return err
			}
			processed++
		}
		if n == 0 {
			return nil
		}
		return c.setQueue(append([]QueuedWithdrawal(nil), q[n:]...))
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

// CancelQueuedWithdrawal removes the user's oldest queued request, releasing
// its earmarked shares.
func (v *Vault) CancelQueuedWithdrawal(ctx context.Context, user identity.Principal) error {
	return v.mutate(ctx, "cancel_queued_withdrawal", func(c *call) error {
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		if err := c.require(user); err != nil {
			return err
		}
		q, err := c.queue()
		if err != nil {
			return err
		}
		for i, entry := range q {
			if entry.User != user {
				continue
			}
			rest := append(append([]QueuedWithdrawal(nil), q[:i]...), q[i+1:]...)
			if err := c.setQueue(rest); err != nil {
				return err
			}
			c.emit(events.NewEvent(events.EventWithdrawCancelled).
				Principal(user.String()).
				Metadata("shares", entry.Shares.String()))
			return nil
		}
		return ErrWithdrawalNotFound.Wrapf("no queued withdrawal for %s", user)
	})
}

// QueuedWithdrawals returns the pending queue, oldest first.
func (v *Vault) QueuedWithdrawals(ctx context.Context) ([]QueuedWithdrawal, error) {
	var q []QueuedWithdrawal
	err := v.view(ctx, func(c *call) error {
		var err error
		q, err = c.queue()
		return err
	})
	return q, err
}
