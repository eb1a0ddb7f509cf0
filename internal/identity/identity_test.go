package identity

import (
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	addr := Principal(priv.Address())

	require.NoError(t, AnyNonEmpty("alice"))
	require.Error(t, AnyNonEmpty("  "))

	require.NoError(t, NeoAddress(addr))
	require.Error(t, NeoAddress("alice"))
	require.Error(t, NeoAddress(""))
}

func TestContains(t *testing.T) {
	list := []Principal{"a", "b", "c"}
	require.True(t, Contains(list, "b"))
	require.False(t, Contains(list, "d"))
	require.Equal(t, 2, IndexOf(list, "c"))
	require.Equal(t, -1, IndexOf(nil, "a"))
}
