// Package ledgertest holds the behaviour every ledger.Backend must share.
package ledgertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
)

type position struct {
	Shares string `json:"shares"`
}

// RunBackend exercises b through a ledger.Store. b must start empty.
func RunBackend(t *testing.T, b ledger.Backend) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewStore(b)
	alice := ledger.PositionKey(identity.Principal("alice"))

	t.Run("missing key", func(t *testing.T) {
		var p position
		ok, err := store.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("commit makes writes visible", func(t *testing.T) {
		tx := store.Begin()
		require.NoError(t, tx.Set(alice, position{Shares: "10"}))
		require.NoError(t, tx.Set(ledger.Singleton(ledger.KindStrategies), []string{"s1"}))

		var p position
		ok, err := tx.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "10", p.Shares)

		ok, err = store.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.False(t, ok, "uncommitted write leaked")

		require.NoError(t, tx.Commit(ctx))

		ok, err = store.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "10", p.Shares)
	})

	t.Run("discard drops writes", func(t *testing.T) {
		tx := store.Begin()
		require.NoError(t, tx.Set(alice, position{Shares: "99"}))
		tx.Discard()

		var p position
		_, err := store.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.Equal(t, "10", p.Shares)
		require.ErrorIs(t, tx.Commit(ctx), ledger.ErrTxClosed)
	})

	t.Run("overwrite and delete", func(t *testing.T) {
		tx := store.Begin()
		require.NoError(t, tx.Set(alice, position{Shares: "11"}))
		require.NoError(t, tx.Commit(ctx))

		tx = store.Begin()
		require.NoError(t, tx.Delete(alice))
		has, err := tx.Has(ctx, alice)
		require.NoError(t, err)
		require.False(t, has)
		require.NoError(t, tx.Commit(ctx))

		var p position
		ok, err := store.Get(ctx, alice, &p)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("scopes are independent", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, b.Apply(ctx, []ledger.Write{
			{Scope: ledger.ScopeInstance, Key: "k", Value: []byte(`"instance"`)},
			{Scope: ledger.ScopePersistent, Key: "k", Value: []byte(`"persistent"`)},
		}))
		raw, ok, err := b.Get(ctx, ledger.ScopeInstance, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `"instance"`, string(raw))
		raw, ok, err = b.Get(ctx, ledger.ScopePersistent, "k")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `"persistent"`, string(raw))
	})
}
