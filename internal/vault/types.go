package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/R3E-Network/shield_vault/internal/amount"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// DefaultMaxStaleness is the oracle freshness window in seconds.
const DefaultMaxStaleness uint64 = 3600

// =============================================================================
// Vault State
// =============================================================================

// State is the singleton vault record.
type State struct {
	Admin    identity.Principal `json:"admin"`
	Asset    identity.AssetID   `json:"asset"`
	Oracle   identity.Principal `json:"oracle"`
	Treasury identity.Principal `json:"treasury"`
	FeeBps   uint32             `json:"fee_bps"`

	TotalAssets sdkmath.Int `json:"total_assets"`
	TotalShares sdkmath.Int `json:"total_shares"`

	Paused  bool   `json:"paused"`
	Version uint32 `json:"version"`

	MaxDepositPerUser sdkmath.Int `json:"max_deposit_per_user"`
	MaxTotalAssets    sdkmath.Int `json:"max_total_assets"`
	MaxWithdrawPerTx  sdkmath.Int `json:"max_withdraw_per_tx"`

	OracleLastUpdate uint64 `json:"oracle_last_update"`
	MaxStaleness     uint64 `json:"max_staleness"`
	TimelockDuration uint64 `json:"timelock_duration"`

	WithdrawQueueThreshold sdkmath.Int `json:"withdraw_queue_threshold"`
}

// InitParams configures a fresh vault.
type InitParams struct {
	Admin     identity.Principal
	Asset     identity.AssetID
	Oracle    identity.Principal
	Treasury  identity.Principal
	FeeBps    uint32
	Guardians []identity.Principal
	Threshold uint32
	Limits    InitLimits
}

// InitLimits seeds the guard settings in the same commit as Init. Nil
// amounts keep their unlimited defaults and a zero MaxStaleness keeps
// DefaultMaxStaleness.
type InitLimits struct {
	MaxDepositPerUser      sdkmath.Int
	MaxTotalAssets         sdkmath.Int
	MaxWithdrawPerTx       sdkmath.Int
	WithdrawQueueThreshold sdkmath.Int
	MaxStaleness           uint64
	TimelockDuration       uint64
}

func (l InitLimits) validate() error {
	for _, f := range []struct {
		name string
		v    sdkmath.Int
	}{
		{"per-user cap", l.MaxDepositPerUser},
		{"total cap", l.MaxTotalAssets},
		{"withdraw cap", l.MaxWithdrawPerTx},
		{"queue threshold", l.WithdrawQueueThreshold},
	} {
		if f.v.IsNil() {
			continue
		}
		if err := nonNegative(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(v, def sdkmath.Int) sdkmath.Int {
	if v.IsNil() {
		return def
	}
	return v
}

func newState(p InitParams, version uint32) State {
	staleness := p.Limits.MaxStaleness
	if staleness == 0 {
		staleness = DefaultMaxStaleness
	}
	return State{
		Admin:                  p.Admin,
		Asset:                  p.Asset,
		Oracle:                 p.Oracle,
		Treasury:               p.Treasury,
		FeeBps:                 p.FeeBps,
		TotalAssets:            amount.Zero(),
		TotalShares:            amount.Zero(),
		Version:                version,
		MaxDepositPerUser:      orDefault(p.Limits.MaxDepositPerUser, amount.Max()),
		MaxTotalAssets:         orDefault(p.Limits.MaxTotalAssets, amount.Max()),
		MaxWithdrawPerTx:       orDefault(p.Limits.MaxWithdrawPerTx, amount.Max()),
		MaxStaleness:           staleness,
		TimelockDuration:       p.Limits.TimelockDuration,
		WithdrawQueueThreshold: orDefault(p.Limits.WithdrawQueueThreshold, amount.Max()),
	}
}

// normalize fills amounts that decoded as unset.
func (s *State) normalize() {
	s.TotalAssets = amount.OrZero(s.TotalAssets)
	s.TotalShares = amount.OrZero(s.TotalShares)
	s.MaxDepositPerUser = amount.OrZero(s.MaxDepositPerUser)
	s.MaxTotalAssets = amount.OrZero(s.MaxTotalAssets)
	s.MaxWithdrawPerTx = amount.OrZero(s.MaxWithdrawPerTx)
	s.WithdrawQueueThreshold = amount.OrZero(s.WithdrawQueueThreshold)
}

// =============================================================================
// Positions, Strategies and Queue
// =============================================================================

// Position is a user's share balance.
type Position struct {
	Shares sdkmath.Int `json:"shares"`
}

// Allocation is the oracle's desired balance for one strategy.
type Allocation struct {
	Strategy identity.Principal `json:"strategy"`
	Target   sdkmath.Int        `json:"target"`
}

// StrategyHealth is the last recorded health check of a strategy.
type StrategyHealth struct {
	LastKnownBalance   sdkmath.Int `json:"last_known_balance"`
	LastCheckTimestamp uint64      `json:"last_check_timestamp"`
	IsHealthy          bool        `json:"is_healthy"`
}

// QueuedWithdrawal is a withdrawal request waiting for admin processing.
type QueuedWithdrawal struct {
	User      identity.Principal `json:"user"`
	Shares    sdkmath.Int        `json:"shares"`
	Timestamp uint64             `json:"timestamp"`
}

// WithdrawResult reports the outcome of Withdraw.
type WithdrawResult struct {
	// Assets is the asset value of the withdrawn shares at request time.
	Assets sdkmath.Int `json:"assets"`
	// Queued is true when the request went to the withdrawal queue instead
	// of settling immediately.
	Queued bool `json:"queued"`
}

// RebalanceMove describes what happened to one strategy during a rebalance.
type RebalanceMove struct {
	Strategy    identity.Principal `json:"strategy"`
	Target      sdkmath.Int        `json:"target"`
	Before      sdkmath.Int        `json:"before"`
	After       sdkmath.Int        `json:"after"`
	Deposited   sdkmath.Int        `json:"deposited"`
	Withdrawn   sdkmath.Int        `json:"withdrawn"`
	SlippageBps sdkmath.Int        `json:"slippage_bps"`
	Exceeded    bool               `json:"exceeded"`
}

// RebalanceReport summarises a rebalance run.
type RebalanceReport struct {
	MaxSlippageBps uint32          `json:"max_slippage_bps"`
	Moves          []RebalanceMove `json:"moves"`
}

// Exceeded returns the strategies whose slippage was above the bound.
func (r RebalanceReport) Exceeded() []identity.Principal {
	var out []identity.Principal
	for _, m := range r.Moves {
		if m.Exceeded {
			out = append(out, m.Strategy)
		}
	}
	return out
}

// =============================================================================
// Governance
// =============================================================================

// ActionKind names a governance action variant.
type ActionKind string

const (
	ActionSetPaused   ActionKind = "set_paused"
	ActionAddStrategy ActionKind = "add_strategy"
	ActionRebalance   ActionKind = "rebalance"
)

// Action is a governance action. Only the fields of its Kind are meaningful.
type Action struct {
	Kind           ActionKind         `json:"kind"`
	Paused         bool               `json:"paused,omitempty"`
	Strategy       identity.Principal `json:"strategy,omitempty"`
	MaxSlippageBps uint32             `json:"max_slippage_bps,omitempty"`
}

// SetPaused builds a pause toggle action.
func SetPaused(paused bool) Action { return Action{Kind: ActionSetPaused, Paused: paused} }

// AddStrategy builds a strategy registration action.
func AddStrategy(addr identity.Principal) Action {
	return Action{Kind: ActionAddStrategy, Strategy: addr}
}

// Rebalance builds a governance rebalance action.
func Rebalance(maxSlippageBps uint32) Action {
	return Action{Kind: ActionRebalance, MaxSlippageBps: maxSlippageBps}
}

// Validate checks the action is a known, well-formed variant.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionSetPaused, ActionRebalance:
		return nil
	case ActionAddStrategy:
		if a.Strategy.IsZero() {
			return fmt.Errorf("add_strategy: empty strategy address")
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// String renders the action for logs and events.
func (a Action) String() string {
	switch a.Kind {
	case ActionSetPaused:
		return fmt.Sprintf("set_paused(%t)", a.Paused)
	case ActionAddStrategy:
		return fmt.Sprintf("add_strategy(%s)", a.Strategy)
	case ActionRebalance:
		return fmt.Sprintf("rebalance(%d)", a.MaxSlippageBps)
	default:
		return string(a.Kind)
	}
}

// Proposal is a guardian-approved governance action.
type Proposal struct {
	ID         uint64               `json:"id"`
	Proposer   identity.Principal   `json:"proposer"`
	Action     Action               `json:"action"`
	Approvals  []identity.Principal `json:"approvals"`
	Executed   bool                 `json:"executed"`
	ProposedAt uint64               `json:"proposed_at"`
	Status     ProposalStatus       `json:"status"`
}

// ApprovedBy reports whether guardian approved the proposal.
func (p Proposal) ApprovedBy(guardian identity.Principal) bool {
	return identity.Contains(p.Approvals, guardian)
}

// GuardianSet is the multisig membership and approval threshold.
type GuardianSet struct {
	Guardians []identity.Principal `json:"guardians"`
	Threshold uint32               `json:"threshold"`
}

// Validate checks 1 <= threshold <= len(guardians) with unique members.
func (g GuardianSet) Validate() error {
	seen := make(map[identity.Principal]struct{}, len(g.Guardians))
	for _, guardian := range g.Guardians {
		if guardian.IsZero() {
			return ErrInvalidThreshold.Wrap("empty guardian address")
		}
		if _, dup := seen[guardian]; dup {
			return ErrGuardianExists.Wrapf("guardian %s listed twice", guardian)
		}
		seen[guardian] = struct{}{}
	}
	if g.Threshold < 1 || int(g.Threshold) > len(g.Guardians) {
		return ErrInvalidThreshold.Wrapf("threshold %d with %d guardians", g.Threshold, len(g.Guardians))
	}
	return nil
}
