package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const admin identity.Principal = "admin"

type fakeVault struct {
	mu        sync.Mutex
	queue     []vault.QueuedWithdrawal
	processed int
	limits    []uint32
	signers   []identity.Principal
	err       error
	checks    int
	unhealthy []identity.Principal
}

func (f *fakeVault) QueuedWithdrawals(context.Context) ([]vault.QueuedWithdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vault.QueuedWithdrawal(nil), f.queue...), nil
}

func (f *fakeVault) ProcessQueuedWithdrawals(ctx context.Context, limit uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	f.signers = auth.Signers(ctx)
	if f.err != nil {
		return 0, f.err
	}
	n := int(limit)
	if n > len(f.queue) {
		n = len(f.queue)
	}
	f.queue = f.queue[n:]
	f.processed += n
	return uint32(n), nil
}

func (f *fakeVault) Snapshot(context.Context) (vault.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return vault.Snapshot{Name: "test", QueuedRequests: len(f.queue)}, nil
}

func (f *fakeVault) CheckStrategyHealth(ctx context.Context) ([]identity.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	f.signers = auth.Signers(ctx)
	return f.unhealthy, f.err
}

func (f *fakeVault) state() (processed int, queued int, limits []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed, len(f.queue), append([]uint32(nil), f.limits...)
}

func entries(n int) []vault.QueuedWithdrawal {
	out := make([]vault.QueuedWithdrawal, n)
	for i := range out {
		out[i] = vault.QueuedWithdrawal{User: identity.Principal("user")}
	}
	return out
}

func TestQueueProcessorDrainsInBatches(t *testing.T) {
	fv := &fakeVault{queue: entries(5)}
	p := NewQueueProcessor(fv, admin, time.Hour, 2, logger.Discard(), nil)

	ctx := context.Background()
	p.tick(ctx)
	processed, queued, _ := fv.state()
	assert.Equal(t, 2, processed)
	assert.Equal(t, 3, queued)
	assert.Equal(t, []identity.Principal{admin}, fv.signers)

	p.tick(ctx)
	p.tick(ctx)
	p.tick(ctx)
	processed, queued, limits := fv.state()
	assert.Equal(t, 5, processed)
	assert.Zero(t, queued)
	assert.Equal(t, []uint32{2, 2, 2}, limits, "empty queue is not processed")
}

func TestQueueProcessorSurvivesErrors(t *testing.T) {
	fv := &fakeVault{queue: entries(1), err: vault.ErrContractPaused}
	p := NewQueueProcessor(fv, admin, time.Hour, 10, logger.Discard(), nil)
	p.tick(context.Background())

	fv.mu.Lock()
	fv.err = errors.New("backend down")
	fv.mu.Unlock()
	p.tick(context.Background())

	_, queued, limits := fv.state()
	assert.Equal(t, 1, queued)
	assert.Len(t, limits, 2)
}

func TestQueueProcessorLifecycle(t *testing.T) {
	fv := &fakeVault{queue: entries(3)}
	p := NewQueueProcessor(fv, admin, 5*time.Millisecond, 1, logger.Discard(), nil)
	assert.Equal(t, "queue-processor", p.Name())

	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx), "second start is a no-op")

	require.Eventually(t, func() bool {
		_, queued, _ := fv.state()
		return queued == 0
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	require.NoError(t, p.Stop(stopCtx), "second stop is a no-op")
}

func TestQueueProcessorDefaults(t *testing.T) {
	p := NewQueueProcessor(&fakeVault{}, admin, 0, 0, nil, nil)
	assert.Equal(t, 30*time.Second, p.interval)
	assert.Equal(t, uint32(25), p.batch)
}

func TestHealthMonitorRejectsBadSchedule(t *testing.T) {
	_, err := NewHealthMonitor(&fakeVault{}, admin, "every tuesday", logger.Discard(), nil)
	require.Error(t, err)

	m, err := NewHealthMonitor(&fakeVault{}, admin, "", logger.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultHealthSchedule, m.schedule)
}

func TestHealthMonitorRun(t *testing.T) {
	fv := &fakeVault{unhealthy: []identity.Principal{"strategy-1"}}
	m, err := NewHealthMonitor(fv, admin, "@every 1m", logger.Discard(), nil)
	require.NoError(t, err)

	m.run(context.Background())
	fv.mu.Lock()
	defer fv.mu.Unlock()
	assert.Equal(t, 1, fv.checks)
	assert.Equal(t, []identity.Principal{admin}, fv.signers)
}

func TestHealthMonitorLifecycle(t *testing.T) {
	m, err := NewHealthMonitor(&fakeVault{}, admin, "@every 1h", logger.Discard(), nil)
	require.NoError(t, err)
	assert.Equal(t, "health-monitor", m.Name())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx))
	require.NoError(t, m.Stop(stopCtx))
}

func TestFields(t *testing.T) {
	got := fields([]interface{}{"entry", 3, "dangling"})
	assert.Equal(t, map[string]interface{}{"entry": 3}, got)
}
