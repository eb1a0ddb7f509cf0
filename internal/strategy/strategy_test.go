package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/token"
)

func TestMockStrategy(t *testing.T) {
	ctx := context.Background()
	m := NewMock("strat-1")

	require.NoError(t, m.Deposit(ctx, amount.New(100)))
	require.NoError(t, m.Withdraw(ctx, amount.New(30)))
	bal, err := m.Balance(ctx)
	require.NoError(t, err)
	require.True(t, bal.Equal(amount.New(70)))

	require.Error(t, m.Withdraw(ctx, amount.New(71)))

	require.NoError(t, m.SimulatePriceDrift(ctx, amount.New(120)))
	bal, _ = m.Balance(ctx)
	require.True(t, bal.Equal(amount.New(120)))

	m.FailWith = errors.New("paused upstream")
	require.Error(t, m.Deposit(ctx, amount.New(1)))
	require.Error(t, m.Withdraw(ctx, amount.New(1)))
}

func TestMockDriftMovesFunds(t *testing.T) {
	ctx := context.Background()
	ledger := token.NewLedger()
	m := NewMock("strat-1").WithFunds(ledger, "USDC")

	require.NoError(t, ledger.Mint("USDC", "strat-1", amount.New(100)))
	require.NoError(t, m.Deposit(ctx, amount.New(100)))

	require.NoError(t, m.SimulatePriceDrift(ctx, amount.New(150)))
	require.True(t, ledger.BalanceOf("USDC", "strat-1").Equal(amount.New(150)))

	require.NoError(t, m.SimulatePriceDrift(ctx, amount.New(80)))
	require.True(t, ledger.BalanceOf("USDC", "strat-1").Equal(amount.New(80)))
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	m := NewMock("strat-1")
	d.Bind("strat-1", m)

	got, err := d.Resolve("strat-1")
	require.NoError(t, err)
	require.Same(t, m, got)

	_, err = d.Resolve("strat-2")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}
