package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/amount"
)

const usdc = "USDC"

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, "alice", amount.New(100)))

	require.NoError(t, l.Transfer(ctx, usdc, "alice", "vault", amount.New(40)))
	require.True(t, l.BalanceOf(usdc, "alice").Equal(amount.New(60)))
	require.True(t, l.BalanceOf(usdc, "vault").Equal(amount.New(40)))

	err := l.Transfer(ctx, usdc, "alice", "vault", amount.New(61))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.True(t, l.BalanceOf(usdc, "alice").Equal(amount.New(60)), "failed transfer must not move funds")

	require.Len(t, l.Journal(), 1)
}

func TestLedgerSelfTransferKeepsBalance(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, "alice", amount.New(10)))
	require.NoError(t, l.Transfer(context.Background(), usdc, "alice", "alice", amount.New(7)))
	require.True(t, l.BalanceOf(usdc, "alice").Equal(amount.New(10)))
}

func TestLedgerRejectsNegative(t *testing.T) {
	l := NewLedger()
	require.Error(t, l.Mint(usdc, "alice", amount.New(-1)))
	require.Error(t, l.Transfer(context.Background(), usdc, "alice", "bob", amount.New(-1)))
}

func TestLedgerHonoursCancelledContext(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, "alice", amount.New(10)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Transfer(ctx, usdc, "alice", "bob", amount.New(1)), context.Canceled)
	require.True(t, l.BalanceOf(usdc, "bob").IsZero())
}
