// Package redisstore implements ledger.Backend on Redis. Batches are applied
// in a MULTI/EXEC pipeline so a commit is all-or-nothing.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/shield_vault/internal/ledger"
)

// Store keeps ledger values under "<prefix>:<namespace>:<scope>:<key>".
type Store struct {
	client    redis.UniversalClient
	prefix    string
	namespace string
}

var _ ledger.Backend = (*Store)(nil)

// Options configures a redis backend.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Prefix    string
	Namespace string
}

// Open dials redis and pings it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix, opts.Namespace), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, prefix, namespace string) *Store {
	if prefix == "" {
		prefix = "shield"
	}
	if namespace == "" {
		namespace = "default"
	}
	return &Store{client: client, prefix: prefix, namespace: namespace}
}

func (s *Store) redisKey(scope ledger.Scope, key string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, s.namespace, scope, key)
}

func (s *Store) Get(ctx context.Context, scope ledger.Scope, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return raw, true, nil
}

func (s *Store) Apply(ctx context.Context, writes []ledger.Write) error {
	if len(writes) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			k := s.redisKey(w.Scope, w.Key)
			if w.Delete {
				pipe.Del(ctx, k)
				continue
			}
			pipe.Set(ctx, k, w.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply %d writes: %w", len(writes), err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }
