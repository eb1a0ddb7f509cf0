package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/ledger/ledgertest"
)

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Open(ctx, Options{Addr: addr, Prefix: "shield-test", Namespace: uuid.NewString()})
	require.NoError(t, err)
	defer s.Close()

	ledgertest.RunBackend(t, s)
}

func TestRedisKeyLayout(t *testing.T) {
	s := New(nil, "", "")
	require.Equal(t, "shield:default:persistent:position/alice", s.redisKey(ledger.ScopePersistent, "position/alice"))
	require.Equal(t, "shield:default:instance:state", s.redisKey(ledger.ScopeInstance, "state"))
}
