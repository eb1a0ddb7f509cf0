package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/metrics"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

// DefaultHealthSchedule checks strategies every five minutes.
const DefaultHealthSchedule = "*/5 * * * *"

// HealthVault is the part of the vault the health monitor drives.
type HealthVault interface {
	CheckStrategyHealth(ctx context.Context) ([]identity.Principal, error)
}

// HealthMonitor runs CheckStrategyHealth as the vault admin on a cron
// schedule.
type HealthMonitor struct {
	vault    HealthVault
	admin    identity.Principal
	schedule string
	log      *logger.Logger
	metrics  metrics.Recorder

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewHealthMonitor validates schedule (standard five-field cron or a
// descriptor such as "@every 1m") and returns a monitor.
func NewHealthMonitor(v HealthVault, admin identity.Principal, schedule string, log *logger.Logger, rec metrics.Recorder) (*HealthMonitor, error) {
	if schedule == "" {
		schedule = DefaultHealthSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("health schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = logger.NewDefault("health-monitor")
	}
	if rec == nil {
		rec = metrics.NewNoOpCollector()
	}
	return &HealthMonitor{vault: v, admin: admin, schedule: schedule, log: log, metrics: rec}, nil
}

func (m *HealthMonitor) Name() string { return "health-monitor" }

func (m *HealthMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithLogger(cronLogger{m.log}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.log})))
	if _, err := c.AddFunc(m.schedule, func() { m.run(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule health check: %w", err)
	}
	c.Start()

	m.cron = c
	m.cancel = cancel
	m.running = true
	m.log.WithField("schedule", m.schedule).Info("strategy health monitor started")
	return nil
}

func (m *HealthMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	c, cancel := m.cron, m.cancel
	m.running = false
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	m.log.Info("strategy health monitor stopped")
	return nil
}

func (m *HealthMonitor) run(ctx context.Context) {
	start := time.Now()
	unhealthy, err := m.vault.CheckStrategyHealth(auth.WithSigners(ctx, m.admin))
	m.metrics.RecordWorkerRun(m.Name(), time.Since(start), len(unhealthy), err)
	if err != nil {
		m.log.WithError(err).Warn("strategy health check failed")
		return
	}
	if len(unhealthy) > 0 {
		m.log.WithField("strategies", unhealthy).Warn("unhealthy strategies detected")
		return
	}
	m.log.Debug("all strategies healthy")
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
