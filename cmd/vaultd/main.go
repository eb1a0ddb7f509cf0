// Command vaultd runs a shield vault with its background workers and the
// read-only ops API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/config"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/httpapi"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/metrics"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/internal/worker"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// service is a background component with a managed lifecycle.
type service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", os.Getenv("SHIELD_CONFIG"), "path to the vaultd YAML config")
	envFile := flag.String("env", ".env", "dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Log
	logCfg.Component = "vaultd"
	log := logger.New(logCfg)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("vaultd stopped")
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	store := ledger.NewStore(backend)
	defer store.Close()

	tokens := token.NewLedger()
	dir := strategy.NewDirectory()
	asset := identity.AssetID(cfg.Vault.Asset)
	for _, addr := range cfg.Strategies {
		dir.Bind(identity.Principal(addr), strategy.NewMock(identity.Principal(addr)).WithFunds(tokens, asset))
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace)
	ring := events.NewRingBuffer(1024)
	unsubscribe := ring.Subscribe(collector.ObserveEvent)
	defer unsubscribe()

	v := vault.New(identity.Principal(cfg.Vault.Address), store, tokens, dir, auth.Static{},
		vault.WithName(cfg.Vault.Name),
		vault.WithEventSink(ring),
		vault.WithLogger(log.Named("vault")),
		vault.WithPrincipalValidator(cfg.Vault.Validator()),
	)
	if err := bootstrap(ctx, v, cfg.Vault, log); err != nil {
		return err
	}
	if snap, err := v.Snapshot(ctx); err == nil {
		collector.RecordSnapshot(snap)
	}

	admin := identity.Principal(cfg.Vault.Admin)
	var services []service
	if !cfg.Workers.Disabled {
		services = append(services, worker.NewQueueProcessor(v, admin, cfg.Workers.QueueInterval, cfg.Workers.QueueBatch, log.Named("queue-processor"), collector))
		hm, err := worker.NewHealthMonitor(v, admin, cfg.Workers.HealthSchedule, log.Named("health-monitor"), collector)
		if err != nil {
			return err
		}
		services = append(services, hm)
	}
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}

	limiterStop := make(chan struct{})
	defer close(limiterStop)
	limiter := httpapi.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst, log.Named("ratelimit"))
	limiter.StartCleanup(time.Minute, limiterStop)

	router := httpapi.NewRouter(httpapi.Deps{
		Vault:          v,
		Events:         ring,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Limiter:        limiter,
		Logger:         log.Named("httpapi"),
	})
	srv := httpapi.NewServer(cfg.Server.Addr, router, log.Named("httpapi"))
	errc := make(chan error, 1)
	srv.Start(errc)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case runErr = <-errc:
		log.WithError(runErr).Error("ops api failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("ops api shutdown")
	}
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log.WithError(err).WithField("service", services[i].Name()).Warn("stop failed")
		}
	}
	return runErr
}
