package worker

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/metrics"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

func TestQueueProcessorAgainstVault(t *testing.T) {
	const (
		asset identity.AssetID   = "USDC"
		alice identity.Principal = "alice"
	)
	ctx := context.Background()
	tokens := token.NewLedger()
	v := vault.New("vault", nil, tokens, strategy.NewDirectory(), auth.Static{}, vault.WithLogger(logger.Discard()))
	require.NoError(t, v.Init(auth.WithSigners(ctx, admin), vault.InitParams{
		Admin:     admin,
		Asset:     asset,
		Oracle:    "oracle",
		Treasury:  "treasury",
		Guardians: []identity.Principal{"g1"},
		Threshold: 1,
	}))
	require.NoError(t, v.SetWithdrawQueueThreshold(auth.WithSigners(ctx, admin), sdkmath.NewInt(10)))

	require.NoError(t, tokens.Mint(asset, alice, sdkmath.NewInt(100)))
	_, err := v.Deposit(auth.WithSigners(ctx, alice), alice, sdkmath.NewInt(100))
	require.NoError(t, err)
	res, err := v.Withdraw(auth.WithSigners(ctx, alice), alice, sdkmath.NewInt(60))
	require.NoError(t, err)
	require.True(t, res.Queued)

	collector := metrics.NewCollector("worker_test")
	p := NewQueueProcessor(v, admin, time.Hour, 10, logger.Discard(), collector)
	p.tick(ctx)

	require.True(t, tokens.BalanceOf(asset, alice).Equal(sdkmath.NewInt(60)))
	q, err := v.QueuedWithdrawals(ctx)
	require.NoError(t, err)
	require.Empty(t, q)
}
