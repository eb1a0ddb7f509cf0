// Package config loads vaultd configuration from YAML and SHIELD_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the full daemon configuration.
type Config struct {
	Vault      VaultConfig   `yaml:"vault"`
	Storage    StorageConfig `yaml:"storage"`
	Server     ServerConfig  `yaml:"server"`
	Workers    WorkersConfig `yaml:"workers"`
	Log        logger.Config `yaml:"log"`
	Strategies []string      `yaml:"strategies"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

// VaultConfig holds the initialisation parameters and limits of the vault.
// Amount limits are decimal strings; empty means unlimited.
type VaultConfig struct {
	Name                   string   `yaml:"name" env:"SHIELD_VAULT_NAME"`
	Address                string   `yaml:"address" env:"SHIELD_VAULT_ADDRESS"`
	Admin                  string   `yaml:"admin" env:"SHIELD_VAULT_ADMIN"`
	Asset                  string   `yaml:"asset" env:"SHIELD_VAULT_ASSET"`
	Oracle                 string   `yaml:"oracle" env:"SHIELD_VAULT_ORACLE"`
	Treasury               string   `yaml:"treasury" env:"SHIELD_VAULT_TREASURY"`
	FeeBps                 uint32   `yaml:"fee_bps" env:"SHIELD_VAULT_FEE_BPS"`
	Guardians              []string `yaml:"guardians"`
	Threshold              uint32   `yaml:"threshold" env:"SHIELD_VAULT_THRESHOLD"`
	MaxDepositPerUser      string   `yaml:"max_deposit_per_user" env:"SHIELD_VAULT_MAX_DEPOSIT_PER_USER"`
	MaxTotalAssets         string   `yaml:"max_total_assets" env:"SHIELD_VAULT_MAX_TOTAL_ASSETS"`
	MaxWithdrawPerTx       string   `yaml:"max_withdraw_per_tx" env:"SHIELD_VAULT_MAX_WITHDRAW_PER_TX"`
	WithdrawQueueThreshold string   `yaml:"withdraw_queue_threshold" env:"SHIELD_VAULT_WITHDRAW_QUEUE_THRESHOLD"`
	MaxStaleness           uint64   `yaml:"max_staleness" env:"SHIELD_VAULT_MAX_STALENESS"`
	TimelockDuration       uint64   `yaml:"timelock_duration" env:"SHIELD_VAULT_TIMELOCK_DURATION"`
	NeoAddresses           bool     `yaml:"neo_addresses" env:"SHIELD_VAULT_NEO_ADDRESSES"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver        string `yaml:"driver" env:"SHIELD_STORAGE_DRIVER"`
	DSN           string `yaml:"dsn" env:"SHIELD_STORAGE_DSN"`
	RedisAddr     string `yaml:"redis_addr" env:"SHIELD_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"SHIELD_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"SHIELD_REDIS_DB"`
}

// ServerConfig configures the ops API.
type ServerConfig struct {
	Addr      string  `yaml:"addr" env:"SHIELD_SERVER_ADDR"`
	RateLimit float64 `yaml:"rate_limit" env:"SHIELD_SERVER_RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"SHIELD_SERVER_BURST"`
}

// WorkersConfig configures the background workers.
type WorkersConfig struct {
	QueueInterval  time.Duration `yaml:"queue_interval" env:"SHIELD_WORKERS_QUEUE_INTERVAL"`
	QueueBatch     uint32        `yaml:"queue_batch" env:"SHIELD_WORKERS_QUEUE_BATCH"`
	HealthSchedule string        `yaml:"health_schedule" env:"SHIELD_WORKERS_HEALTH_SCHEDULE"`
	Disabled       bool          `yaml:"disabled" env:"SHIELD_WORKERS_DISABLED"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"SHIELD_METRICS_NAMESPACE"`
}

// Default returns a configuration for a single in-memory dev vault.
func Default() Config {
	return Config{
		Vault: VaultConfig{
			Name:         "shield",
			Address:      "vault",
			Asset:        "USDC",
			MaxStaleness: vault.DefaultMaxStaleness,
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Server:  ServerConfig{Addr: ":8080", RateLimit: 20, Burst: 40},
		Workers: WorkersConfig{
			QueueInterval:  30 * time.Second,
			QueueBatch:     25,
			HealthSchedule: "*/5 * * * *",
		},
		Log:     logger.Config{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: "shield"},
	}
}

// Load reads path (if non-empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to decode environment: %w", err)
	}
	if raw := os.Getenv("SHIELD_VAULT_GUARDIANS"); raw != "" {
		cfg.Vault.Guardians = splitList(raw)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage: dsn is required for %s", c.Storage.Driver)
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage: redis_addr is required for redis")
		}
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}

	if c.Vault.Address == "" {
		return fmt.Errorf("vault: address is required")
	}
	if c.Vault.FeeBps > amount.BpsDenominator {
		return fmt.Errorf("vault: fee_bps %d exceeds %d", c.Vault.FeeBps, amount.BpsDenominator)
	}
	if len(c.Vault.Guardians) > 0 && (c.Vault.Threshold == 0 || int(c.Vault.Threshold) > len(c.Vault.Guardians)) {
		return fmt.Errorf("vault: threshold %d invalid for %d guardians", c.Vault.Threshold, len(c.Vault.Guardians))
	}
	for name, raw := range c.Vault.limits() {
		if _, err := parseLimit(raw); err != nil {
			return fmt.Errorf("vault: %s: %w", name, err)
		}
	}
	if c.Vault.NeoAddresses {
		for _, p := range c.Vault.principals() {
			if p.IsZero() {
				continue
			}
			if err := identity.NeoAddress(p); err != nil {
				return fmt.Errorf("vault: %w", err)
			}
		}
	}

	if c.Workers.QueueInterval < 0 {
		return fmt.Errorf("workers: queue_interval must not be negative")
	}
	return nil
}

func (v VaultConfig) limits() map[string]string {
	return map[string]string{
		"max_deposit_per_user":     v.MaxDepositPerUser,
		"max_total_assets":         v.MaxTotalAssets,
		"max_withdraw_per_tx":      v.MaxWithdrawPerTx,
		"withdraw_queue_threshold": v.WithdrawQueueThreshold,
	}
}

func (v VaultConfig) principals() []identity.Principal {
	out := []identity.Principal{
		identity.Principal(v.Address),
		identity.Principal(v.Admin),
		identity.Principal(v.Oracle),
		identity.Principal(v.Treasury),
	}
	return append(out, v.GuardianPrincipals()...)
}

// Validator returns the principal validator implied by NeoAddresses.
func (v VaultConfig) Validator() identity.Validator {
	if v.NeoAddresses {
		return identity.NeoAddress
	}
	return identity.AnyNonEmpty
}

// GuardianPrincipals converts the configured guardians.
func (v VaultConfig) GuardianPrincipals() []identity.Principal {
	out := make([]identity.Principal, 0, len(v.Guardians))
	for _, g := range v.Guardians {
		out = append(out, identity.Principal(g))
	}
	return out
}

// InitParams builds the vault initialisation parameters.
func (v VaultConfig) InitParams() vault.InitParams {
	return vault.InitParams{
		Admin:     identity.Principal(v.Admin),
		Asset:     identity.AssetID(v.Asset),
		Oracle:    identity.Principal(v.Oracle),
		Treasury:  identity.Principal(v.Treasury),
		FeeBps:    v.FeeBps,
		Guardians: v.GuardianPrincipals(),
		Threshold: v.Threshold,
	}
}

// Limits holds the parsed amount limits. Unset limits are amount.Max, which
// for the queue threshold means nothing is queued.
type Limits struct {
	MaxDepositPerUser      sdkmath.Int
	MaxTotalAssets         sdkmath.Int
	MaxWithdrawPerTx       sdkmath.Int
	WithdrawQueueThreshold sdkmath.Int
}

// ParseLimits parses the amount limits.
func (v VaultConfig) ParseLimits() (Limits, error) {
	var (
		l   Limits
		err error
	)
	if l.MaxDepositPerUser, err = parseLimit(v.MaxDepositPerUser); err != nil {
		return Limits{}, fmt.Errorf("max_deposit_per_user: %w", err)
	}
	if l.MaxTotalAssets, err = parseLimit(v.MaxTotalAssets); err != nil {
		return Limits{}, fmt.Errorf("max_total_assets: %w", err)
	}
	if l.MaxWithdrawPerTx, err = parseLimit(v.MaxWithdrawPerTx); err != nil {
		return Limits{}, fmt.Errorf("max_withdraw_per_tx: %w", err)
	}
	if l.WithdrawQueueThreshold, err = parseLimit(v.WithdrawQueueThreshold); err != nil {
		return Limits{}, fmt.Errorf("withdraw_queue_threshold: %w", err)
	}
	return l, nil
}

func parseLimit(raw string) (sdkmath.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return amount.Max(), nil
	}
	v, err := amount.Parse(raw)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if v.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("limit %s is negative", raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
