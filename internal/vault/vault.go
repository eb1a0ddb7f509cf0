// Package vault implements the pooled-asset vault: share accounting, caps
// and pause guards, the withdrawal queue, strategy rebalancing and health,
// guardian governance and storage versioning.
//
// Every exported mutating method is one atomic call. The vault's state is
// loaded into a write-buffered ledger transaction, the operation runs
// against it and the buffer is committed only if the operation succeeds.
// Calls are serialised by a per-vault mutex. Token transfers and strategy
// calls are external effects and cannot be undone, so operations order
// their checks before any external effect.
package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/ledger"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

// CurrentLayoutVersion is the storage layout this code reads and writes.
const CurrentLayoutVersion uint32 = 1

// Migration upgrades stored data from version-1 to version inside the
// migrating call's transaction.
type Migration func(ctx context.Context, tx *ledger.Tx, st *State) error

// Vault is a single vault instance bound to its collaborators.
type Vault struct {
	mu sync.Mutex

	name       string
	address    identity.Principal
	store      *ledger.Store
	tokens     token.Port
	strategies strategy.Resolver
	authz      auth.Provider
	sink       events.Sink
	log        *logger.Logger
	clock      func() time.Time
	validate   identity.Validator

	layoutVersion uint32
	migrations    map[uint32]Migration
}

// Option customises a Vault.
type Option func(*Vault)

// WithName sets the vault name attached to events and logs.
func WithName(name string) Option { return func(v *Vault) { v.name = name } }

// WithClock replaces the wall clock. Timestamps are whole seconds.
func WithClock(clock func() time.Time) Option { return func(v *Vault) { v.clock = clock } }

// WithEventSink sets where committed and diagnostic events are published.
func WithEventSink(sink events.Sink) Option { return func(v *Vault) { v.sink = sink } }

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option { return func(v *Vault) { v.log = log } }

// WithPrincipalValidator sets the syntax check applied to configured principals.
func WithPrincipalValidator(fn identity.Validator) Option {
	return func(v *Vault) { v.validate = fn }
}

// WithLayoutVersion declares the storage layout version the running code
// expects. Mutating calls fail with ErrVersionMismatch on any other version.
func WithLayoutVersion(version uint32) Option {
	return func(v *Vault) { v.layoutVersion = version }
}

// WithMigration registers the step that upgrades storage to version.
func WithMigration(version uint32, m Migration) Option {
	return func(v *Vault) { v.migrations[version] = m }
}

// New creates a vault. address is the vault's own account on the token port.
func New(address identity.Principal, store *ledger.Store, tokens token.Port, strategies strategy.Resolver, authz auth.Provider, opts ...Option) *Vault {
	v := &Vault{
		name:          "shield",
		address:       address,
		store:         store,
		tokens:        tokens,
		strategies:    strategies,
		authz:         authz,
		sink:          events.NoOpLogger{},
		clock:         time.Now,
		validate:      identity.AnyNonEmpty,
		layoutVersion: CurrentLayoutVersion,
		migrations:    make(map[uint32]Migration),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = logger.NewDefault("vault")
	}
	if v.store == nil {
		v.store = ledger.NewStore(nil)
	}
	return v
}

// Address returns the vault's own principal.
func (v *Vault) Address() identity.Principal { return v.address }

// Name returns the vault name.
func (v *Vault) Name() string { return v.name }

// LayoutVersion returns the storage layout version the code expects.
func (v *Vault) LayoutVersion() uint32 { return v.layoutVersion }

func (v *Vault) now() uint64 {
	ts := v.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// =============================================================================
// Call machinery
// =============================================================================

// call is the per-invocation context: buffered storage, loaded state and the
// events to publish on commit.
type call struct {
	ctx    context.Context
	v      *Vault
	op     string
	tx     *ledger.Tx
	st     State
	now    uint64
	events []events.Event
	// governed is set while a governance action executes; authorization
	// was established by the approvals.
	governed bool
}

// committed wraps an error whose call must still commit its buffered
// writes and events before the error is reported.
type committed struct{ err error }

func (c committed) Error() string { return c.err.Error() }
func (c committed) Unwrap() error { return c.err }

func commitThenFail(err error) error { return committed{err: err} }

type callOpts struct {
	anyVersion bool
}

func (v *Vault) mutate(ctx context.Context, op string, fn func(c *call) error) error {
	return v.run(ctx, op, callOpts{}, fn)
}

func (v *Vault) run(ctx context.Context, op string, opts callOpts, fn func(c *call) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, err := v.begin(ctx, op)
	if err != nil {
		return err
	}
	if !opts.anyVersion && c.st.Version != v.layoutVersion {
		c.tx.Discard()
		return ErrVersionMismatch.Wrapf("stored version %d, expected %d", c.st.Version, v.layoutVersion)
	}
	return v.finish(c, fn(c))
}

func (v *Vault) begin(ctx context.Context, op string) (*call, error) {
	c := &call{ctx: ctx, v: v, op: op, tx: v.store.Begin(), now: v.now()}
	ok, err := c.tx.Get(ctx, ledger.Singleton(ledger.KindState), &c.st)
	if err != nil {
		c.tx.Discard()
		return nil, err
	}
	if !ok {
		c.tx.Discard()
		return nil, ErrNotInitialized
	}
	c.st.normalize()
	return c, nil
}

func (v *Vault) finish(c *call, err error) error {
	var keep committed
	if err != nil && !errors.As(err, &keep) {
		c.tx.Discard()
		v.log.WithField("op", c.op).WithField("code", Code(err)).WithError(err).Warn("vault call aborted")
		return err
	}

	if serr := c.tx.Set(ledger.Singleton(ledger.KindState), c.st); serr != nil {
		c.tx.Discard()
		return serr
	}
	if cerr := c.tx.Commit(c.ctx); cerr != nil {
		v.log.WithField("op", c.op).WithError(cerr).Warn("vault commit failed")
		return cerr
	}
	for _, e := range c.events {
		v.sink.Log(e)
	}
	v.log.WithField("op", c.op).WithField("events", len(c.events)).Debug("vault call committed")

	if keep.err != nil {
		return keep.err
	}
	return nil
}

// view runs fn against committed state without writing.
func (v *Vault) view(ctx context.Context, fn func(c *call) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, err := v.begin(ctx, "view")
	if err != nil {
		return err
	}
	defer c.tx.Discard()
	return fn(c)
}

func timeOf(ts uint64) time.Time { return time.Unix(int64(ts), 0).UTC() }

// emit queues an event for publication on commit.
func (c *call) emit(b *events.EventBuilder) {
	c.events = append(c.events, b.Vault(c.v.name).At(timeOf(c.now)).Build())
}

// diagnose publishes immediately, whatever the call's outcome.
func (c *call) diagnose(b *events.EventBuilder) {
	c.v.sink.Log(b.Vault(c.v.name).At(timeOf(c.now)).Diagnostic().Build())
}

// =============================================================================
// Guards
// =============================================================================

func (c *call) require(p identity.Principal) error {
	if c.governed {
		return nil
	}
	if err := c.v.authz.Require(c.ctx, p); err != nil {
		return ErrUnauthorized.Wrapf("%s: %v", p, err)
	}
	return nil
}

func (c *call) requireAny(ps ...identity.Principal) error {
	if c.governed {
		return nil
	}
	if err := auth.RequireAny(c.ctx, c.v.authz, ps...); err != nil {
		return ErrUnauthorized.Wrapf("%v: %v", ps, err)
	}
	return nil
}

func (c *call) requireAdmin() error { return c.require(c.st.Admin) }

func (c *call) requireNotPaused() error {
	if c.st.Paused {
		return ErrContractPaused.Wrap(c.op)
	}
	return nil
}

// checked maps arithmetic failures to the vault's error codes.
func checked(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, amount.ErrOverflow) || errors.Is(err, amount.ErrDivisionByZero) {
		return ErrArithmeticOverflow.Wrapf("%s: %v", what, err)
	}
	return err
}

// =============================================================================
// Storage helpers
// =============================================================================

func (c *call) position(user identity.Principal) (Position, error) {
	var p Position
	if _, err := c.tx.Get(c.ctx, ledger.PositionKey(user), &p); err != nil {
		return Position{}, err
	}
	p.Shares = amount.OrZero(p.Shares)
	return p, nil
}

func (c *call) setPosition(user identity.Principal, p Position) error {
	return c.tx.Set(ledger.PositionKey(user), p)
}

func (c *call) strategyList() ([]identity.Principal, error) {
	var list []identity.Principal
	_, err := c.tx.Get(c.ctx, ledger.Singleton(ledger.KindStrategies), &list)
	return list, err
}

func (c *call) setStrategyList(list []identity.Principal) error {
	return c.tx.Set(ledger.Singleton(ledger.KindStrategies), list)
}

func (c *call) allocations() ([]Allocation, error) {
	var list []Allocation
	_, err := c.tx.Get(c.ctx, ledger.Singleton(ledger.KindAllocations), &list)
	for i := range list {
		list[i].Target = amount.OrZero(list[i].Target)
	}
	return list, err
}

func (c *call) setAllocations(list []Allocation) error {
	return c.tx.Set(ledger.Singleton(ledger.KindAllocations), list)
}

func (c *call) queue() ([]QueuedWithdrawal, error) {
	var q []QueuedWithdrawal
	_, err := c.tx.Get(c.ctx, ledger.Singleton(ledger.KindQueue), &q)
	return q, err
}

func (c *call) setQueue(q []QueuedWithdrawal) error {
	return c.tx.Set(ledger.Singleton(ledger.KindQueue), q)
}

func (c *call) guardians() (GuardianSet, error) {
	var g GuardianSet
	_, err := c.tx.Get(c.ctx, ledger.Singleton(ledger.KindGuardians), &g)
	return g, err
}

func (c *call) setGuardians(g GuardianSet) error {
	return c.tx.Set(ledger.Singleton(ledger.KindGuardians), g)
}

func (c *call) health(addr identity.Principal) (StrategyHealth, bool, error) {
	var h StrategyHealth
	ok, err := c.tx.Get(c.ctx, ledger.HealthKey(addr), &h)
	h.LastKnownBalance = amount.OrZero(h.LastKnownBalance)
	return h, ok, err
}

func (c *call) setHealth(addr identity.Principal, h StrategyHealth) error {
	return c.tx.Set(ledger.HealthKey(addr), h)
}

func (c *call) proposal(id uint64) (Proposal, error) {
	var p Proposal
	ok, err := c.tx.Get(c.ctx, ledger.ProposalKey(id), &p)
	if err != nil {
		return Proposal{}, err
	}
	if !ok {
		return Proposal{}, ErrProposalNotFound.Wrapf("proposal %d", id)
	}
	return p, nil
}

func (c *call) setProposal(p Proposal) error {
	return c.tx.Set(ledger.ProposalKey(p.ID), p)
}

func (c *call) nextProposalID() (uint64, error) {
	var next uint64
	if _, err := c.tx.Get(c.ctx, ledger.Singleton(ledger.KindNextProposalID), &next); err != nil {
		return 0, err
	}
	if next == 0 {
		next = 1
	}
	if err := c.tx.Set(ledger.Singleton(ledger.KindNextProposalID), next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// =============================================================================
// External effects
// =============================================================================

func (c *call) transfer(from, to identity.Principal, amt sdkmath.Int) error {
	if amt.IsZero() {
		return nil
	}
	if err := c.v.tokens.Transfer(c.ctx, c.st.Asset, from, to, amt); err != nil {
		return ErrTransferFailed.Wrapf("%s %s -> %s: %v", amt, from, to, err)
	}
	return nil
}

func (c *call) module(addr identity.Principal) (strategy.Module, error) {
	m, err := c.v.strategies.Resolve(addr)
	if err != nil {
		return nil, ErrStrategyCall.Wrapf("resolve %s: %v", addr, err)
	}
	return m, nil
}
