package vault

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

const (
	testAsset identity.AssetID = "USDC"

	vaultAddr identity.Principal = "vault"
	admin     identity.Principal = "admin"
	oracle    identity.Principal = "oracle"
	treasury  identity.Principal = "treasury"
	g1        identity.Principal = "guardian-1"
	g2        identity.Principal = "guardian-2"
	g3        identity.Principal = "guardian-3"
	alice     identity.Principal = "alice"
	bob       identity.Principal = "bob"
	s1        identity.Principal = "strategy-1"
	s2        identity.Principal = "strategy-2"
)

var genesis = time.Unix(1_700_000_000, 0).UTC()

type harness struct {
	t      *testing.T
	v      *Vault
	store  *ledger.Store
	tokens *token.Ledger
	dir    *strategy.Directory
	events *events.RingBuffer
	now    time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		store:  ledger.NewStore(nil),
		tokens: token.NewLedger(),
		dir:    strategy.NewDirectory(),
		events: events.NewRingBuffer(512),
		now:    genesis,
	}
	h.v = h.open(opts...)
	require.NoError(t, h.v.Init(h.as(admin), InitParams{
		Admin:     admin,
		Asset:     testAsset,
		Oracle:    oracle,
		Treasury:  treasury,
		FeeBps:    500,
		Guardians: []identity.Principal{g1, g2, g3},
		Threshold: 2,
	}))
	return h
}

// open builds another vault over the harness's store and collaborators.
func (h *harness) open(opts ...Option) *Vault {
	base := []Option{
		WithClock(func() time.Time { return h.now }),
		WithEventSink(h.events),
		WithLogger(logger.Discard()),
	}
	return New(vaultAddr, h.store, h.tokens, h.dir, auth.Static{}, append(base, opts...)...)
}

func (h *harness) as(ps ...identity.Principal) context.Context {
	return auth.WithSigners(context.Background(), ps...)
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) ts() uint64 { return uint64(h.now.Unix()) }

func (h *harness) deposit(user identity.Principal, amt int64) sdkmath.Int {
	h.t.Helper()
	require.NoError(h.t, h.tokens.Mint(testAsset, user, sdkmath.NewInt(amt)))
	minted, err := h.v.Deposit(h.as(user), user, sdkmath.NewInt(amt))
	require.NoError(h.t, err)
	return minted
}

func (h *harness) propose(a Action) uint64 {
	h.t.Helper()
	id, err := h.v.ProposeAction(h.as(g1), g1, a)
	require.NoError(h.t, err)
	return id
}

// govern proposes a and collects the second approval.
func (h *harness) govern(a Action) uint64 {
	h.t.Helper()
	id := h.propose(a)
	require.NoError(h.t, h.v.ApproveAction(h.as(g2), g2, id))
	return id
}

func (h *harness) addModule(addr identity.Principal, m strategy.Module) {
	h.t.Helper()
	h.dir.Bind(addr, m)
	h.govern(AddStrategy(addr))
}

func (h *harness) addStrategy(addr identity.Principal) *strategy.Mock {
	h.t.Helper()
	m := strategy.NewMock(addr).WithFunds(h.tokens, testAsset)
	h.addModule(addr, m)
	return m
}

func (h *harness) setTargets(targets map[identity.Principal]int64) {
	h.t.Helper()
	h.advance(time.Second)
	allocs := make([]Allocation, 0, len(targets))
	for _, addr := range []identity.Principal{s1, s2} {
		if amt, ok := targets[addr]; ok {
			allocs = append(allocs, Allocation{Strategy: addr, Target: sdkmath.NewInt(amt)})
		}
	}
	require.NoError(h.t, h.v.SetOracleData(h.as(oracle), allocs, h.ts()))
}

func (h *harness) state() State {
	h.t.Helper()
	st, err := h.v.State(context.Background())
	require.NoError(h.t, err)
	return st
}

func (h *harness) balance(p identity.Principal) sdkmath.Int {
	return h.tokens.BalanceOf(testAsset, p)
}

func requireInt(t *testing.T, want int64, got sdkmath.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.False(t, got.IsNil(), msgAndArgs...)
	require.Equalf(t, sdkmath.NewInt(want).String(), got.String(), "amount mismatch %v", msgAndArgs)
}
