package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/shield_vault/internal/auth"
	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
	"github.com/R3E-Network/shield_vault/internal/strategy"
	"github.com/R3E-Network/shield_vault/internal/token"
	"github.com/R3E-Network/shield_vault/internal/vault"
	"github.com/R3E-Network/shield_vault/pkg/logger"
)

const (
	simAsset    identity.AssetID   = "USDC"
	simVault    identity.Principal = "vault"
	simAdmin    identity.Principal = "admin"
	simOracle   identity.Principal = "oracle"
	simTreasury identity.Principal = "treasury"
	simAlice    identity.Principal = "alice"
	simBob      identity.Principal = "bob"
	simStratA   identity.Principal = "strategy-a"
	simStratB   identity.Principal = "strategy-b"
)

var simGuardians = []identity.Principal{"guardian-1", "guardian-2", "guardian-3"}

// simParams tunes the simulated scenario.
type simParams struct {
	AliceDeposit int64
	BobDeposit   int64
	TargetA      int64
	TargetB      int64
	DriftA       int64
	QueueShares  int64
	FeeBps       uint32
	MaxSlippage  uint32
}

func defaultSimParams() simParams {
	return simParams{
		AliceDeposit: 10_000,
		BobDeposit:   5_000,
		TargetA:      6_000,
		TargetB:      4_000,
		DriftA:       6_600,
		QueueShares:  2_000,
		FeeBps:       100,
		MaxSlippage:  100,
	}
}

// simStep is the vault state after one scenario step.
type simStep struct {
	Step     string         `json:"step"`
	Detail   string         `json:"detail,omitempty"`
	Snapshot vault.Snapshot `json:"snapshot"`
}

var (
	simOpts    = defaultSimParams()
	simJSON    bool
	simVerbose bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an end-to-end scenario on an in-memory vault",
	Long: `Run a complete vault lifecycle against in-memory storage and mock strategies:
deposits, governance-approved strategy registration, oracle targets, rebalance,
yield drift and harvest, a health check and a queued withdrawal.

A snapshot of the vault is printed after every step.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := logger.Discard()
		if simVerbose {
			log = logger.New(logger.Config{Level: "debug", Output: cmd.ErrOrStderr(), Component: "simulate"})
		}
		steps, err := simulate(cmd.Context(), simOpts, log)
		if len(steps) > 0 {
			if perr := printSteps(cmd.OutOrStdout(), steps, simJSON); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	f := simulateCmd.Flags()
	f.Int64Var(&simOpts.AliceDeposit, "alice", simOpts.AliceDeposit, "alice's deposit")
	f.Int64Var(&simOpts.BobDeposit, "bob", simOpts.BobDeposit, "bob's deposit")
	f.Int64Var(&simOpts.TargetA, "target-a", simOpts.TargetA, "oracle target for strategy-a")
	f.Int64Var(&simOpts.TargetB, "target-b", simOpts.TargetB, "oracle target for strategy-b")
	f.Int64Var(&simOpts.DriftA, "drift-a", simOpts.DriftA, "strategy-a balance after yield drift")
	f.Int64Var(&simOpts.QueueShares, "queue-shares", simOpts.QueueShares, "shares bob withdraws through the queue")
	f.Uint32Var(&simOpts.FeeBps, "fee-bps", simOpts.FeeBps, "vault fee in basis points")
	f.Uint32Var(&simOpts.MaxSlippage, "max-slippage", simOpts.MaxSlippage, "rebalance slippage bound in basis points")
	f.BoolVar(&simJSON, "json", false, "print snapshots as JSON")
	f.BoolVar(&simVerbose, "verbose", false, "log vault activity to stderr")
}

type simulation struct {
	ctx    context.Context
	v      *vault.Vault
	tokens *token.Ledger
	dir    *strategy.Directory
	mocks  map[identity.Principal]*strategy.Mock
	events *events.RingBuffer
	now    time.Time
	steps  []simStep
}

func (s *simulation) as(p ...identity.Principal) context.Context {
	return auth.WithSigners(s.ctx, p...)
}

func (s *simulation) record(step, detail string) error {
	snap, err := s.v.Snapshot(s.ctx)
	if err != nil {
		return err
	}
	s.steps = append(s.steps, simStep{Step: step, Detail: detail, Snapshot: snap})
	s.now = s.now.Add(time.Minute)
	return nil
}

func (s *simulation) deposit(user identity.Principal, amt int64) (sdkmath.Int, error) {
	if err := s.tokens.Mint(simAsset, user, sdkmath.NewInt(amt)); err != nil {
		return sdkmath.Int{}, err
	}
	return s.v.Deposit(s.as(user), user, sdkmath.NewInt(amt))
}

// govern proposes a as the first guardian and approves it with the second.
func (s *simulation) govern(a vault.Action) error {
	id, err := s.v.ProposeAction(s.as(simGuardians[0]), simGuardians[0], a)
	if err != nil {
		return err
	}
	return s.v.ApproveAction(s.as(simGuardians[1]), simGuardians[1], id)
}

// simulate runs the scenario and returns the snapshots recorded so far,
// even when a step fails.
func simulate(ctx context.Context, p simParams, log *logger.Logger) ([]simStep, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &simulation{
		ctx:    ctx,
		tokens: token.NewLedger(),
		dir:    strategy.NewDirectory(),
		mocks:  map[identity.Principal]*strategy.Mock{},
		events: events.NewRingBuffer(256),
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.v = vault.New(simVault, nil, s.tokens, s.dir, auth.Static{},
		vault.WithName("simulation"),
		vault.WithClock(func() time.Time { return s.now }),
		vault.WithEventSink(s.events),
		vault.WithLogger(log),
	)
	for _, addr := range []identity.Principal{simStratA, simStratB} {
		m := strategy.NewMock(addr).WithFunds(s.tokens, simAsset)
		s.mocks[addr] = m
		s.dir.Bind(addr, m)
	}

	steps := []struct {
		name string
		run  func() (string, error)
	}{
		{"init", func() (string, error) {
			return "", s.v.Init(s.as(simAdmin), vault.InitParams{
				Admin:     simAdmin,
				Asset:     simAsset,
				Oracle:    simOracle,
				Treasury:  simTreasury,
				FeeBps:    p.FeeBps,
				Guardians: simGuardians,
				Threshold: 2,
			})
		}},
		{"deposit", func() (string, error) {
			a, err := s.deposit(simAlice, p.AliceDeposit)
			if err != nil {
				return "", err
			}
			b, err := s.deposit(simBob, p.BobDeposit)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("alice minted %s, bob minted %s", a, b), nil
		}},
		{"add-strategies", func() (string, error) {
			for _, addr := range []identity.Principal{simStratA, simStratB} {
				if err := s.govern(vault.AddStrategy(addr)); err != nil {
					return "", err
				}
			}
			return "approved by 2 of 3 guardians", nil
		}},
		{"rebalance", func() (string, error) {
			allocs := []vault.Allocation{
				{Strategy: simStratA, Target: sdkmath.NewInt(p.TargetA)},
				{Strategy: simStratB, Target: sdkmath.NewInt(p.TargetB)},
			}
			if err := s.v.SetOracleData(s.as(simOracle), allocs, uint64(s.now.Unix())); err != nil {
				return "", err
			}
			report, err := s.v.Rebalance(s.as(simOracle), p.MaxSlippage)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d strategies moved", len(report.Moves)), nil
		}},
		{"harvest", func() (string, error) {
			if err := s.mocks[simStratA].SimulatePriceDrift(s.ctx, sdkmath.NewInt(p.DriftA)); err != nil {
				return "", err
			}
			yield, err := s.v.Harvest(s.as(simAdmin))
			if err != nil {
				return "", err
			}
			return "yield " + yield.String(), nil
		}},
		{"health-check", func() (string, error) {
			flagged, err := s.v.CheckStrategyHealth(s.as(simAdmin))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d unhealthy", len(flagged)), nil
		}},
		{"queue-withdraw", func() (string, error) {
			if err := s.v.SetWithdrawQueueThreshold(s.as(simAdmin), sdkmath.NewInt(p.QueueShares-1)); err != nil {
				return "", err
			}
			res, err := s.v.Withdraw(s.as(simBob), simBob, sdkmath.NewInt(p.QueueShares))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("queued=%t", res.Queued), nil
		}},
		{"process-queue", func() (string, error) {
			n, err := s.v.ProcessQueuedWithdrawals(s.as(simAdmin), 10)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d processed, bob holds %s", n, s.tokens.BalanceOf(simAsset, simBob)), nil
		}},
	}

	for _, step := range steps {
		detail, err := step.run()
		if err != nil {
			return s.steps, fmt.Errorf("step %s: %w", step.name, err)
		}
		if err := s.record(step.name, detail); err != nil {
			return s.steps, err
		}
	}
	return s.steps, nil
}

func printSteps(w io.Writer, steps []simStep, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(steps)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tTOTAL ASSETS\tTOTAL SHARES\tSHARE PRICE\tSTRATEGIES\tQUEUED\tDETAIL")
	for _, s := range steps {
		snap := s.Snapshot
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.Step, snap.TotalAssets, snap.TotalShares, snap.SharePrice, snap.Strategies, snap.QueuedRequests, s.Detail)
	}
	return tw.Flush()
}
