// Package worker runs the vault's background jobs: draining the withdrawal
// queue on a ticker and checking strategy health on a cron schedule.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/metrics"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

// QueueVault is the part of the vault the queue processor drives.
type QueueVault interface {
	QueuedWithdrawals(ctx context.Context) ([]vault.QueuedWithdrawal, error)
	ProcessQueuedWithdrawals(ctx context.Context, limit uint32) (uint32, error)
	Snapshot(ctx context.Context) (vault.Snapshot, error)
}

// QueueProcessor periodically settles queued withdrawals as the vault admin
// and publishes a state snapshot to metrics.
type QueueProcessor struct {
	vault    QueueVault
	admin    identity.Principal
	interval time.Duration
	batch    uint32
	log      *logger.Logger
	metrics  metrics.Recorder

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewQueueProcessor creates a processor. Zero interval and batch fall back
// to 30s and 25.
func NewQueueProcessor(v QueueVault, admin identity.Principal, interval time.Duration, batch uint32, log *logger.Logger, rec metrics.Recorder) *QueueProcessor {
	if log == nil {
		log = logger.NewDefault("queue-processor")
	}
	if rec == nil {
		rec = metrics.NewNoOpCollector()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch == 0 {
		batch = 25
	}
	return &QueueProcessor{
		vault:    v,
		admin:    admin,
		interval: interval,
		batch:    batch,
		log:      log,
		metrics:  rec,
	}
}

func (p *QueueProcessor) Name() string { return "queue-processor" }

func (p *QueueProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.WithField("interval", p.interval).WithField("batch", p.batch).Info("withdrawal queue processor started")
	return nil
}

func (p *QueueProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.log.Info("withdrawal queue processor stopped")
	return nil
}

// tick drains one batch and refreshes the snapshot gauges.
func (p *QueueProcessor) tick(ctx context.Context) {
	start := time.Now()
	processed, err := p.drain(ctx)
	p.metrics.RecordWorkerRun(p.Name(), time.Since(start), int(processed), err)

	switch {
	case errors.Is(err, vault.ErrContractPaused):
		p.log.Debug("vault paused; queue left untouched")
	case err != nil:
		p.log.WithError(err).WithField("code", vault.Code(err)).Warn("process queued withdrawals failed")
	case processed > 0:
		p.log.WithField("processed", processed).Info("queued withdrawals settled")
	}

	snap, err := p.vault.Snapshot(ctx)
	if err != nil {
		p.log.WithError(err).Warn("vault snapshot failed")
		return
	}
	p.metrics.RecordSnapshot(snap)
	p.metrics.UpdateUptime()
}

func (p *QueueProcessor) drain(ctx context.Context) (uint32, error) {
	q, err := p.vault.QueuedWithdrawals(ctx)
	if err != nil {
		return 0, err
	}
	if len(q) == 0 {
		return 0, nil
	}
	return p.vault.ProcessQueuedWithdrawals(auth.WithSigners(ctx, p.admin), p.batch)
}
