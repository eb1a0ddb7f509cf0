// Package token defines the asset transfer port the vault moves funds
// through, plus an in-memory ledger used by the daemon's dev mode, the
// simulation CLI and tests.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// Port moves amount of asset from one principal to another. It either fully
// succeeds or fails with no effect.
type Port interface {
	Transfer(ctx context.Context, asset identity.AssetID, from, to identity.Principal, amt sdkmath.Int) error
}

// ErrInsufficientBalance is returned when the sender cannot cover a transfer.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Transfer is a journal entry of a completed transfer.
type Transfer struct {
	ID     string             `json:"id"`
	Asset  identity.AssetID   `json:"asset"`
	From   identity.Principal `json:"from"`
	To     identity.Principal `json:"to"`
	Amount sdkmath.Int        `json:"amount"`
	At     time.Time          `json:"at"`
}

// Ledger is an in-memory multi-asset balance sheet implementing Port.
type Ledger struct {
	mu       sync.RWMutex
	balances map[identity.AssetID]map[identity.Principal]sdkmath.Int
	journal  []Transfer
}

var _ Port = (*Ledger)(nil)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[identity.AssetID]map[identity.Principal]sdkmath.Int)}
}

// =============================================================================
// Balance Operations
// =============================================================================

// BalanceOf returns the balance of holder in asset.
func (l *Ledger) BalanceOf(asset identity.AssetID, holder identity.Principal) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return amount.OrZero(l.balances[asset][holder])
}

// Mint credits holder with amt of asset out of thin air.
func (l *Ledger) Mint(asset identity.AssetID, holder identity.Principal, amt sdkmath.Int) error {
	if amt.IsNegative() {
		return fmt.Errorf("mint negative amount %s", amt)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := amount.Add(l.balanceLocked(asset, holder), amt)
	if err != nil {
		return err
	}
	l.setLocked(asset, holder, next)
	return nil
}

// Transfer implements Port.
func (l *Ledger) Transfer(ctx context.Context, asset identity.AssetID, from, to identity.Principal, amt sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amt.IsNegative() {
		return fmt.Errorf("transfer negative amount %s", amt)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.balanceLocked(asset, from)
	if available.LT(amt) {
		return fmt.Errorf("%w: %s has %s, requested %s", ErrInsufficientBalance, from, available, amt)
	}
	credited, err := amount.Add(l.balanceLocked(asset, to), amt)
	if err != nil {
		return err
	}

	l.setLocked(asset, from, available.Sub(amt))
	if from == to {
		credited = available
	}
	l.setLocked(asset, to, credited)
	l.journal = append(l.journal, Transfer{
		ID:     uuid.NewString(),
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: amt,
		At:     time.Now().UTC(),
	})
	return nil
}

// Journal returns a copy of completed transfers, oldest first.
func (l *Ledger) Journal() []Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Transfer, len(l.journal))
	copy(out, l.journal)
	return out
}

func (l *Ledger) balanceLocked(asset identity.AssetID, holder identity.Principal) sdkmath.Int {
	return amount.OrZero(l.balances[asset][holder])
}

func (l *Ledger) setLocked(asset identity.AssetID, holder identity.Principal, v sdkmath.Int) {
	bucket, ok := l.balances[asset]
	if !ok {
		bucket = make(map[identity.Principal]sdkmath.Int)
		l.balances[asset] = bucket
	}
	bucket[holder] = v
}
