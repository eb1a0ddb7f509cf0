package vault

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

func totals(assets, shares int64) State {
	return State{TotalAssets: sdkmath.NewInt(assets), TotalShares: sdkmath.NewInt(shares)}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name     string
		st       State
		toShares bool
		in       int64
		want     int64
	}{
		{"assets round down", totals(10, 4), false, 3, 7},
		{"shares round down", totals(3, 1), true, 10, 3},
		{"empty vault mints 1:1", totals(0, 0), true, 42, 42},
		{"no shares prices 1:1", totals(0, 0), false, 42, 42},
		{"no assets prices 1:1", totals(0, 5), false, 42, 42},
		{"assets without shares mints 1:1", totals(5, 0), true, 7, 7},
		{"zero amount", totals(10, 4), true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got sdkmath.Int
				err error
			)
			if tt.toShares {
				got, err = convertToShares(tt.st, sdkmath.NewInt(tt.in))
			} else {
				got, err = convertToAssets(tt.st, sdkmath.NewInt(tt.in))
			}
			require.NoError(t, err)
			requireInt(t, tt.want, got)
		})
	}
}

func TestConversionsRejectNegative(t *testing.T) {
	st := totals(10, 4)
	_, err := convertToShares(st, sdkmath.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeAmount)
	_, err = convertToAssets(st, sdkmath.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestConversionOverflow(t *testing.T) {
	st := State{TotalAssets: sdkmath.NewInt(1), TotalShares: amount.Max()}
	_, err := convertToShares(st, amount.Max())
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestTakeFees(t *testing.T) {
	st := totals(0, 0)
	st.FeeBps = 500
	got, err := takeFees(st, sdkmath.NewInt(1000))
	require.NoError(t, err)
	requireInt(t, 950, got)

	st.FeeBps = 0
	got, err = takeFees(st, sdkmath.NewInt(1000))
	require.NoError(t, err)
	requireInt(t, 1000, got)

	_, err = takeFees(st, sdkmath.NewInt(-5))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestVaultTakeFeesUsesConfiguredRate(t *testing.T) {
	h := newHarness(t)
	got, err := h.v.TakeFees(context.Background(), sdkmath.NewInt(1000))
	require.NoError(t, err)
	requireInt(t, 950, got)

	require.NoError(t, h.v.SetFeeBps(h.as(admin), 0))
	got, err = h.v.TakeFees(context.Background(), sdkmath.NewInt(1000))
	require.NoError(t, err)
	requireInt(t, 1000, got)

	require.ErrorIs(t, h.v.SetFeeBps(h.as(admin), 10_001), ErrInvalidFee)
}

func TestInit(t *testing.T) {
	h := newHarness(t)

	st := h.state()
	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, testAsset, st.Asset)
	assert.Equal(t, CurrentLayoutVersion, st.Version)
	assert.Equal(t, DefaultMaxStaleness, st.MaxStaleness)
	assert.False(t, st.Paused)
	requireInt(t, 0, st.TotalAssets)
	assert.True(t, st.MaxDepositPerUser.Equal(amount.Max()))

	err := h.v.Init(h.as(admin), InitParams{Admin: admin, Asset: testAsset, Guardians: []identity.Principal{g1}, Threshold: 1})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.Len(t, h.events.RecentByType(events.EventInitialized, 10), 1)
}

func TestInitValidation(t *testing.T) {
	newVault := func() *Vault {
		return New(vaultAddr, ledger.NewStore(nil), token.NewLedger(), strategy.NewDirectory(), auth.Static{}, WithLogger(logger.Discard()))
	}
	ctx := auth.WithSigners(context.Background(), admin)
	base := InitParams{Admin: admin, Asset: testAsset, Oracle: oracle, Treasury: treasury, Guardians: []identity.Principal{g1, g2}, Threshold: 2}

	p := base
	p.Threshold = 3
	require.ErrorIs(t, newVault().Init(ctx, p), ErrInvalidThreshold)

	p = base
	p.Threshold = 0
	require.ErrorIs(t, newVault().Init(ctx, p), ErrInvalidThreshold)

	p = base
	p.FeeBps = 20_000
	require.ErrorIs(t, newVault().Init(ctx, p), ErrInvalidFee)

	p = base
	p.Oracle = ""
	require.ErrorIs(t, newVault().Init(ctx, p), ErrUnauthorized)

	require.ErrorIs(t, newVault().Init(context.Background(), base), ErrUnauthorized)

	p = base
	p.Limits.MaxWithdrawPerTx = sdkmath.NewInt(-1)
	v := newVault()
	require.ErrorIs(t, v.Init(ctx, p), ErrNegativeAmount)
	_, err := v.Version(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized, "a rejected init stores nothing")
}

func TestInitWithLimits(t *testing.T) {
	v := New(vaultAddr, ledger.NewStore(nil), token.NewLedger(), strategy.NewDirectory(), auth.Static{}, WithLogger(logger.Discard()))
	ctx := auth.WithSigners(context.Background(), admin)
	require.NoError(t, v.Init(ctx, InitParams{
		Admin:     admin,
		Asset:     testAsset,
		Guardians: []identity.Principal{g1},
		Threshold: 1,
		Limits: InitLimits{
			MaxTotalAssets:         sdkmath.NewInt(5000),
			WithdrawQueueThreshold: sdkmath.NewInt(300),
			TimelockDuration:       60,
		},
	}))

	st, err := v.State(context.Background())
	require.NoError(t, err)
	requireInt(t, 5000, st.MaxTotalAssets)
	requireInt(t, 300, st.WithdrawQueueThreshold)
	assert.True(t, st.MaxDepositPerUser.Equal(amount.Max()))
	assert.True(t, st.MaxWithdrawPerTx.Equal(amount.Max()))
	assert.Equal(t, DefaultMaxStaleness, st.MaxStaleness)
	assert.Equal(t, uint64(60), st.TimelockDuration)
}

func TestCallsBeforeInit(t *testing.T) {
	v := New(vaultAddr, nil, token.NewLedger(), strategy.NewDirectory(), auth.Static{}, WithLogger(logger.Discard()))
	_, err := v.Deposit(auth.WithSigners(context.Background(), alice), alice, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = v.TotalAssets(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestDepositAndWithdraw(t *testing.T) {
	h := newHarness(t)

	requireInt(t, 100, h.deposit(alice, 100))
	requireInt(t, 50, h.deposit(bob, 50))

	st := h.state()
	requireInt(t, 150, st.TotalAssets)
	requireInt(t, 150, st.TotalShares)
	requireInt(t, 150, h.balance(vaultAddr))

	res, err := h.v.Withdraw(h.as(alice), alice, sdkmath.NewInt(40))
	require.NoError(t, err)
	assert.False(t, res.Queued)
	requireInt(t, 40, res.Assets)
	requireInt(t, 40, h.balance(alice))

	shares, err := h.v.SharesOf(context.Background(), alice)
	require.NoError(t, err)
	requireInt(t, 60, shares)

	st = h.state()
	requireInt(t, 110, st.TotalAssets)
	requireInt(t, 110, st.TotalShares)

	require.Len(t, h.events.RecentByType(events.EventDeposit, 10), 2)
	require.Len(t, h.events.RecentByType(events.EventWithdraw, 10), 1)
}

func TestDepositPricesAgainstPreDepositTotals(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1000)
	m := h.addStrategy(s1)
	h.setTargets(map[identity.Principal]int64{s1: 500})
	_, err := h.v.Rebalance(h.as(admin), 100)
	require.NoError(t, err)
	require.NoError(t, m.SimulatePriceDrift(context.Background(), sdkmath.NewInt(1000)))

	// Harvest books the strategy's 1000 on top of 1000 held: 2000 assets, 1000 shares.
	_, err = h.v.Harvest(h.as(admin))
	require.NoError(t, err)

	before := h.state()
	minted := h.deposit(bob, 300)
	want, err := convertToShares(before, sdkmath.NewInt(300))
	require.NoError(t, err)
	require.True(t, minted.Equal(want))
	requireInt(t, 150, minted)

	after := h.state()
	require.True(t, after.TotalAssets.Equal(before.TotalAssets.AddRaw(300)))
	require.True(t, after.TotalShares.Equal(before.TotalShares.Add(minted)))
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.v.Deposit(h.as(alice), alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.v.Deposit(h.as(alice), alice, sdkmath.NewInt(-3))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.v.Deposit(h.as(bob), alice, sdkmath.NewInt(10))
	require.ErrorIs(t, err, ErrUnauthorized)

	// Unfunded depositor: the transfer fails and nothing is booked.
	_, err = h.v.Deposit(h.as(alice), alice, sdkmath.NewInt(10))
	require.ErrorIs(t, err, ErrTransferFailed)
	requireInt(t, 0, h.state().TotalAssets)
}

func TestDepositRejectsZeroShares(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 1)
	m := h.addStrategy(s1)
	h.setTargets(map[identity.Principal]int64{s1: 1})
	_, err := h.v.Rebalance(h.as(admin), 0)
	require.NoError(t, err)
	require.NoError(t, m.SimulatePriceDrift(context.Background(), sdkmath.NewInt(100)))
	_, err = h.v.Harvest(h.as(admin))
	require.NoError(t, err)

	// 101 assets back 1 share; 50 assets buy 0 shares.
	require.NoError(t, h.tokens.Mint(testAsset, bob, sdkmath.NewInt(50)))
	_, err = h.v.Deposit(h.as(bob), bob, sdkmath.NewInt(50))
	require.ErrorIs(t, err, ErrZeroShares)
	requireInt(t, 50, h.balance(bob))
}

func TestWithdrawValidation(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 100)

	_, err := h.v.Withdraw(h.as(alice), alice, sdkmath.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = h.v.Withdraw(h.as(alice), alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.v.Withdraw(h.as(bob), alice, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrUnauthorized)

	requireInt(t, 100, h.state().TotalShares)
}

func TestAbortedCallLeavesNoEvents(t *testing.T) {
	h := newHarness(t)
	before := h.events.Count()
	_, err := h.v.Withdraw(h.as(alice), alice, sdkmath.NewInt(1))
	require.Error(t, err)
	require.Equal(t, before, h.events.Count())
}

func TestCodeIsStable(t *testing.T) {
	assert.Equal(t, uint32(2), Code(ErrNotInitialized))
	assert.Equal(t, uint32(11), Code(ErrContractPaused.Wrap("deposit")))
	assert.Equal(t, uint32(0), Code(nil))
}
