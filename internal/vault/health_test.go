package vault

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		expected, actual int64
		want             bool
	}{
		{0, 0, true},
		{0, 5000, true},
		{100, 100, true},
		{100, 110, true},
		{100, 111, false},
		{100, 90, true},
		{100, 89, false},
		{1000, 0, false},
	}
	for _, tt := range tests {
		got, err := isHealthy(sdkmath.NewInt(tt.expected), sdkmath.NewInt(tt.actual))
		require.NoError(t, err)
		assert.Equalf(t, tt.want, got, "expected %d actual %d", tt.expected, tt.actual)
	}
}

func TestCheckStrategyHealth(t *testing.T) {
	h := newHarness(t)
	h.deposit(alice, 2000)
	m := h.addStrategy(s1)
	h.setTargets(map[identity.Principal]int64{s1: 1000})
	_, err := h.v.Rebalance(h.as(admin), 100)
	require.NoError(t, err)

	_, err = h.v.CheckStrategyHealth(h.as(alice))
	require.ErrorIs(t, err, ErrUnauthorized)

	unhealthy, err := h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Empty(t, unhealthy)
	rec, found, err := h.v.StrategyHealth(context.Background(), s1)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.IsHealthy)
	requireInt(t, 1000, rec.LastKnownBalance)
	assert.Equal(t, h.ts(), rec.LastCheckTimestamp)

	ctx := context.Background()
	require.NoError(t, m.SimulatePriceDrift(ctx, sdkmath.NewInt(1100)))
	unhealthy, err = h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Empty(t, unhealthy, "10% drift is tolerated")

	require.NoError(t, m.SimulatePriceDrift(ctx, sdkmath.NewInt(1101)))
	unhealthy, err = h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Equal(t, []identity.Principal{s1}, unhealthy)

	// Still unhealthy: reported again, flagged once.
	unhealthy, err = h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Equal(t, []identity.Principal{s1}, unhealthy)
	flagged := h.events.RecentByType(events.EventStrategyFlagged, 10)
	require.Len(t, flagged, 1)
	assert.Equal(t, "1000", flagged[0].Metadata["expected"])

	require.NoError(t, m.SimulatePriceDrift(ctx, sdkmath.NewInt(1000)))
	unhealthy, err = h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Empty(t, unhealthy)
	rec, _, err = h.v.StrategyHealth(ctx, s1)
	require.NoError(t, err)
	assert.True(t, rec.IsHealthy)
}

func TestStrategyWithoutTargetIsHealthy(t *testing.T) {
	h := newHarness(t)
	m := h.addStrategy(s1)
	require.NoError(t, m.SimulatePriceDrift(context.Background(), sdkmath.NewInt(77)))

	unhealthy, err := h.v.CheckStrategyHealth(h.as(admin))
	require.NoError(t, err)
	assert.Empty(t, unhealthy)
}

func TestFlagStrategy(t *testing.T) {
	h := newHarness(t)
	h.addStrategy(s1)

	require.ErrorIs(t, h.v.FlagStrategy(h.as(admin), "ghost"), ErrStrategyNotFound)
	require.ErrorIs(t, h.v.FlagStrategy(h.as(alice), s1), ErrUnauthorized)
	require.NoError(t, h.v.FlagStrategy(h.as(admin), s1))

	rec, found, err := h.v.StrategyHealth(context.Background(), s1)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, rec.IsHealthy)

	flagged := h.events.RecentByType(events.EventStrategyFlagged, 10)
	require.Len(t, flagged, 1)
	assert.Equal(t, "manual", flagged[0].Metadata["reason"])
}
