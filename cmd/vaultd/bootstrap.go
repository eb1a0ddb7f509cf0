package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/config"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/ledger/redisstore"
	"github.com/R3E-Network/shield_vault/internal/ledger/sqlstore"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

func openBackend(ctx context.Context, cfg config.Config) (ledger.Backend, error) {
	ns := cfg.Vault.Address
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.Storage.DSN, ns)
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Storage.DSN, ns)
	case config.DriverRedis:
		return redisstore.Open(ctx, redisstore.Options{
			Addr:      cfg.Storage.RedisAddr,
			Password:  cfg.Storage.RedisPassword,
			DB:        cfg.Storage.RedisDB,
			Namespace: ns,
		})
	default:
		return ledger.NewMemory(), nil
	}
}

// bootstrap initialises a fresh vault from configuration, limits included,
// in one commit. An already initialised vault is left as stored.
func bootstrap(ctx context.Context, v *vault.Vault, cfg config.VaultConfig, log *logger.Logger) error {
	_, err := v.Version(ctx)
	switch {
	case err == nil:
		log.Info("vault already initialised")
		return v.CheckVersion(ctx, v.LayoutVersion())
	case !errors.Is(err, vault.ErrNotInitialized):
		return err
	case cfg.Admin == "":
		log.Warn("vault not initialised and no admin configured; serving empty vault")
		return nil
	}

	limits, err := cfg.ParseLimits()
	if err != nil {
		return err
	}
	params := cfg.InitParams()
	params.Limits = vault.InitLimits{
		MaxDepositPerUser:      limits.MaxDepositPerUser,
		MaxTotalAssets:         limits.MaxTotalAssets,
		MaxWithdrawPerTx:       limits.MaxWithdrawPerTx,
		WithdrawQueueThreshold: limits.WithdrawQueueThreshold,
		MaxStaleness:           cfg.MaxStaleness,
		TimelockDuration:       cfg.TimelockDuration,
	}
	if err := v.Init(auth.WithSigners(ctx, identity.Principal(cfg.Admin)), params); err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	log.WithField("admin", cfg.Admin).WithField("asset", cfg.Asset).Info("vault initialised")
	return nil
}
