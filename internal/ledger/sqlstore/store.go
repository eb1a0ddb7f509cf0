// Package sqlstore implements ledger.Backend on a SQL database via sqlx.
// PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/shield_vault/internal/ledger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS vault_ledger (
	namespace TEXT NOT NULL,
	scope     TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BYTEA NOT NULL,
	PRIMARY KEY (namespace, scope, key)
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vault_ledger (
	namespace TEXT NOT NULL,
	scope     TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, scope, key)
)`

const upsertQuery = `
INSERT INTO vault_ledger (namespace, scope, key, value) VALUES (?, ?, ?, ?)
ON CONFLICT (namespace, scope, key) DO UPDATE SET value = excluded.value`

// Store is a SQL-backed ledger backend. Every vault gets its own namespace
// so several vaults can share one table.
type Store struct {
	db        *sqlx.DB
	namespace string
}

var _ ledger.Backend = (*Store)(nil)

// Open connects with driver and dsn and ensures the schema exists.
func Open(ctx context.Context, driver, dsn, namespace string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite serialises writers; a single connection keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	}
	s := New(db, namespace)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle without touching the schema.
func New(db *sqlx.DB, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{db: db, namespace: namespace}
}

// Migrate creates the ledger table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.db.DriverName() != DriverPostgres {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create vault_ledger: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, scope ledger.Scope, key string) ([]byte, bool, error) {
	var value []byte
	query := s.db.Rebind(`SELECT value FROM vault_ledger WHERE namespace = ? AND scope = ? AND key = ?`)
	err := s.db.GetContext(ctx, &value, query, s.namespace, scope.String(), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

func (s *Store) Apply(ctx context.Context, writes []ledger.Write) error {
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	upsert := tx.Rebind(upsertQuery)
	remove := tx.Rebind(`DELETE FROM vault_ledger WHERE namespace = ? AND scope = ? AND key = ?`)
	for _, w := range writes {
		if w.Delete {
			_, err = tx.ExecContext(ctx, remove, s.namespace, w.Scope.String(), w.Key)
		} else {
			_, err = tx.ExecContext(ctx, upsert, s.namespace, w.Scope.String(), w.Key, w.Value)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %s/%s: %w", w.Scope, w.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Keys lists the stored keys of a scope, ordered.
func (s *Store) Keys(ctx context.Context, scope ledger.Scope) ([]string, error) {
	var keys []string
	query := s.db.Rebind(`SELECT key FROM vault_ledger WHERE namespace = ? AND scope = ? ORDER BY key`)
	if err := s.db.SelectContext(ctx, &keys, query, s.namespace, scope.String()); err != nil {
		return nil, fmt.Errorf("list %s keys: %w", scope, err)
	}
	return keys, nil
}

func (s *Store) Close() error { return s.db.Close() }
