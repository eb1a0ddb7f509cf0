// Package strategy defines the contract yield strategies fulfil towards the
// vault and ships a controllable mock implementation.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/token"
)

// Module is an external yield strategy. Deposit is called after the vault
// transferred funds to the strategy; Withdraw is called before the vault
// pulls funds back. Balance reports the strategy's current holdings.
type Module interface {
	Deposit(ctx context.Context, amt sdkmath.Int) error
	Withdraw(ctx context.Context, amt sdkmath.Int) error
	Balance(ctx context.Context) (sdkmath.Int, error)
}

// Resolver maps a registered strategy address to its module.
type Resolver interface {
	Resolve(addr identity.Principal) (Module, error)
}

// ErrUnknownStrategy is returned by resolvers for unbound addresses.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Directory is a Resolver backed by an address map.
type Directory struct {
	mu      sync.RWMutex
	modules map[identity.Principal]Module
}

var _ Resolver = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{modules: make(map[identity.Principal]Module)}
}

// Bind registers m under addr, replacing any previous binding.
func (d *Directory) Bind(addr identity.Principal, m Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[addr] = m
}

// Resolve implements Resolver.
func (d *Directory) Resolve(addr identity.Principal) (Module, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.modules[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, addr)
	}
	return m, nil
}

// Mock is an in-memory strategy that tracks a balance counter. When bound
// to a token ledger, simulated price drift also mints or burns the
// strategy's tokens so later withdrawals can be settled.
type Mock struct {
	mu      sync.Mutex
	addr    identity.Principal
	balance sdkmath.Int

	funds *token.Ledger
	asset identity.AssetID

	// FailWith, when set, makes every Deposit and Withdraw fail.
	FailWith error
}

var _ Module = (*Mock)(nil)

// NewMock returns a mock strategy with zero balance.
func NewMock(addr identity.Principal) *Mock {
	return &Mock{addr: addr, balance: sdkmath.ZeroInt()}
}

// WithFunds binds the mock's drift to asset balances in ledger.
func (m *Mock) WithFunds(ledger *token.Ledger, asset identity.AssetID) *Mock {
	m.funds = ledger
	m.asset = asset
	return m
}

// Address returns the strategy address.
func (m *Mock) Address() identity.Principal { return m.addr }

func (m *Mock) Deposit(_ context.Context, amt sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	next, err := amount.Add(m.balance, amt)
	if err != nil {
		return err
	}
	m.balance = next
	return nil
}

func (m *Mock) Withdraw(_ context.Context, amt sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if m.balance.LT(amt) {
		return fmt.Errorf("strategy %s: withdraw %s exceeds balance %s", m.addr, amt, m.balance)
	}
	m.balance = m.balance.Sub(amt)
	return nil
}

func (m *Mock) Balance(context.Context) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// driftSink receives tokens burned by negative drift.
const driftSink identity.Principal = "strategy-drift-sink"

// SimulatePriceDrift overwrites the reported balance, emulating gains or
// losses of the underlying position.
func (m *Mock) SimulatePriceDrift(ctx context.Context, newBalance sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.funds != nil {
		diff := newBalance.Sub(m.balance)
		switch {
		case diff.IsPositive():
			if err := m.funds.Mint(m.asset, m.addr, diff); err != nil {
				return err
			}
		case diff.IsNegative():
			if err := m.funds.Transfer(ctx, m.asset, m.addr, driftSink, diff.Neg()); err != nil {
				return err
			}
		}
	}
	m.balance = newBalance
	return nil
}
