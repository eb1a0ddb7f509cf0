package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/pkg/logger"
)

func TestSimulateDefaultScenario(t *testing.T) {
	steps, err := simulate(context.Background(), defaultSimParams(), logger.Discard())
	require.NoError(t, err)
	require.Len(t, steps, 8)

	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Step)
	}
	assert.Equal(t, []string{"init", "deposit", "add-strategies", "rebalance", "harvest", "health-check", "queue-withdraw", "process-queue"}, names)

	deposit := steps[1].Snapshot
	assert.Equal(t, "15000", deposit.TotalAssets.String())
	assert.Equal(t, "15000", deposit.TotalShares.String())

	assert.Equal(t, 2, steps[2].Snapshot.Strategies)
	assert.Equal(t, "0 unhealthy", steps[5].Detail)
	assert.Equal(t, 1, steps[6].Snapshot.QueuedRequests)
	assert.Equal(t, "queued=true", steps[6].Detail)

	last := steps[len(steps)-1].Snapshot
	assert.Zero(t, last.QueuedRequests)
	assert.Equal(t, "13000", last.TotalShares.String())
	assert.True(t, last.SharePrice.GT(deposit.SharePrice), "harvest raised the share price")
}

func TestSimulateStopsAtFailingStep(t *testing.T) {
	p := defaultSimParams()
	p.TargetA = 1_000_000
	steps, err := simulate(context.Background(), p, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step rebalance")
	require.Len(t, steps, 3, "snapshots up to the failing step are kept")
}

func TestPrintSteps(t *testing.T) {
	steps, err := simulate(context.Background(), defaultSimParams(), logger.Discard())
	require.NoError(t, err)

	var table bytes.Buffer
	require.NoError(t, printSteps(&table, steps, false))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, len(steps)+1)
	assert.True(t, strings.HasPrefix(lines[0], "STEP"))

	var raw bytes.Buffer
	require.NoError(t, printSteps(&raw, steps, true))
	var decoded []simStep
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Len(t, decoded, len(steps))
}

func TestGenerateKey(t *testing.T) {
	out, err := generateKey(false)
	require.NoError(t, err)
	_, err = address.StringToUint160(out.Address)
	require.NoError(t, err)
	assert.Len(t, out.PublicKey, 66)
	assert.Empty(t, out.WIF)

	out, err = generateKey(true)
	require.NoError(t, err)
	assert.NotEmpty(t, out.WIF)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "shieldctl dev\n", buf.String())
}
