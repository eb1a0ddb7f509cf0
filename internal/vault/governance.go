package vault

import (
	"context"
	"errors"
	"strconv"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

// Governance entrypoints are not pause-gated: a paused vault must remain
// unpausable.

func (c *call) requireGuardian(p identity.Principal) (GuardianSet, error) {
	if err := c.require(p); err != nil {
		return GuardianSet{}, err
	}
	g, err := c.guardians()
	if err != nil {
		return GuardianSet{}, err
	}
	if !identity.Contains(g.Guardians, p) {
		return GuardianSet{}, ErrUnauthorized.Wrapf("%s is not a guardian", p)
	}
	return g, nil
}

func (c *call) timelockElapsed(p Proposal) bool {
	var elapsed uint64
	if c.now > p.ProposedAt {
		elapsed = c.now - p.ProposedAt
	}
	return elapsed >= c.st.TimelockDuration
}

func proposalEvent(kind events.EventType, p Proposal) *events.EventBuilder {
	return events.NewEvent(kind).
		Metadata("proposal_id", strconv.FormatUint(p.ID, 10)).
		Metadata("action", p.Action.String()).
		Metadata("approvals", strconv.Itoa(len(p.Approvals)))
}

// ProposeAction opens a proposal approved by its proposer and returns its id.
// With a threshold of one the action runs immediately, or waits for the
// timelock if one is configured.
func (v *Vault) ProposeAction(ctx context.Context, proposer identity.Principal, action Action) (uint64, error) {
	var id uint64
	err := v.mutate(ctx, "propose_action", func(c *call) error {
		g, err := c.requireGuardian(proposer)
		if err != nil {
			return err
		}
		if err := action.Validate(); err != nil {
			return ErrInvalidAction.Wrap(err.Error())
		}
		next, err := c.nextProposalID()
		if err != nil {
			return err
		}

		p := Proposal{
			ID:         next,
			Proposer:   proposer,
			Action:     action,
			Approvals:  []identity.Principal{proposer},
			ProposedAt: c.now,
			Status:     ProposalPending,
		}
		c.emit(proposalEvent(events.EventProposed, p).Principal(proposer.String()))
		id = p.ID

		if g.Threshold <= 1 {
			if _, err := c.tryExecute(&p); err != nil {
				return err
			}
		}
		return c.setProposal(p)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ApproveAction records guardian's approval. Reaching the threshold executes
// the action; under an unelapsed timelock the approval is kept and
// ErrTimelockNotElapsed is returned.
func (v *Vault) ApproveAction(ctx context.Context, guardian identity.Principal, id uint64) error {
	return v.mutate(ctx, "approve_action", func(c *call) error {
		g, err := c.requireGuardian(guardian)
		if err != nil {
			return err
		}
		p, err := c.proposal(id)
		if err != nil {
			return err
		}
		if p.Executed {
			return ErrProposalExecuted.Wrapf("proposal %d", id)
		}
		if p.ApprovedBy(guardian) {
			return ErrAlreadyApproved.Wrapf("%s on proposal %d", guardian, id)
		}

		p.Approvals = append(p.Approvals, guardian)
		c.emit(proposalEvent(events.EventApproved, p).Principal(guardian.String()))

		if len(p.Approvals) < int(g.Threshold) {
			return c.setProposal(p)
		}
		waiting, err := c.tryExecute(&p)
		if err != nil {
			return err
		}
		if err := c.setProposal(p); err != nil {
			return err
		}
		if waiting {
			return commitThenFail(ErrTimelockNotElapsed.Wrapf("proposal %d", id))
		}
		return nil
	})
}

// ExecuteAction runs an approved proposal whose timelock has elapsed.
func (v *Vault) ExecuteAction(ctx context.Context, guardian identity.Principal, id uint64) error {
	return v.mutate(ctx, "execute_action", func(c *call) error {
		g, err := c.requireGuardian(guardian)
		if err != nil {
			return err
		}
		p, err := c.proposal(id)
		if err != nil {
			return err
		}
		if p.Executed {
			return ErrProposalExecuted.Wrapf("proposal %d", id)
		}
		if len(p.Approvals) < int(g.Threshold) {
			return ErrInsufficientApprovals.Wrapf("proposal %d has %d of %d", id, len(p.Approvals), g.Threshold)
		}
		if !c.timelockElapsed(p) {
			return ErrTimelockNotElapsed.Wrapf("proposal %d", id)
		}
		if _, err := c.tryExecute(&p); err != nil {
			return err
		}
		return c.setProposal(p)
	})
}

// tryExecute runs p's action if the timelock allows. waiting reports that
// the proposal is now parked behind the timelock. The caller persists p.
func (c *call) tryExecute(p *Proposal) (waiting bool, err error) {
	if !c.timelockElapsed(*p) {
		if p.Status == ProposalPending {
			if err := p.transition(ProposalTimelocked); err != nil {
				return false, err
			}
			c.emit(proposalEvent(events.EventTimelockStarted, *p).
				Metadata("unlocks_at", strconv.FormatUint(p.ProposedAt+c.st.TimelockDuration, 10)))
		}
		return true, nil
	}

	runErr := c.dispatch(p.Action)
	var keep committed
	if runErr != nil && !errors.As(runErr, &keep) {
		return false, runErr
	}
	if err := p.transition(ProposalExecuted); err != nil {
		return false, err
	}
	c.emit(proposalEvent(events.EventTimelockExecuted, *p).ErrorFrom(runErr))
	if runErr != nil {
		if err := c.setProposal(*p); err != nil {
			return false, err
		}
		return false, runErr
	}
	return false, nil
}

// dispatch executes a governance action with the approvals as authorization.
func (c *call) dispatch(a Action) error {
	c.governed = true
	defer func() { c.governed = false }()

	switch a.Kind {
	case ActionSetPaused:
		c.st.Paused = a.Paused
		c.emit(events.NewEvent(events.EventPaused).Metadata("paused", strconv.FormatBool(a.Paused)))
		return nil
	case ActionAddStrategy:
		return c.addStrategy(a.Strategy)
	case ActionRebalance:
		if err := c.requireNotPaused(); err != nil {
			return err
		}
		_, err := c.rebalance(a.MaxSlippageBps)
		return err
	default:
		return ErrInvalidAction.Wrapf("kind %q", a.Kind)
	}
}

// =============================================================================
// Guardian management
// =============================================================================

func (c *call) emitGuardians(g GuardianSet, change string, who identity.Principal) {
	c.emit(events.NewEvent(events.EventGuardiansUpdated).
		Principal(who.String()).
		Metadata("change", change).
		Metadata("guardians", strconv.Itoa(len(g.Guardians))).
		Metadata("threshold", strconv.FormatUint(uint64(g.Threshold), 10)))
}

// AddGuardian adds a guardian. Admin only.
func (v *Vault) AddGuardian(ctx context.Context, guardian identity.Principal) error {
	return v.mutate(ctx, "add_guardian", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		if err := c.v.validate(guardian); err != nil {
			return ErrUnauthorized.Wrapf("invalid guardian: %v", err)
		}
		g, err := c.guardians()
		if err != nil {
			return err
		}
		if identity.Contains(g.Guardians, guardian) {
			return ErrGuardianExists.Wrapf("guardian %s", guardian)
		}
		g.Guardians = append(g.Guardians, guardian)
		if err := c.setGuardians(g); err != nil {
			return err
		}
		c.emitGuardians(g, "added", guardian)
		return nil
	})
}

// RemoveGuardian removes a guardian, refusing to drop below the threshold.
// Approvals already recorded on open proposals are kept.
func (v *Vault) RemoveGuardian(ctx context.Context, guardian identity.Principal) error {
	return v.mutate(ctx, "remove_guardian", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		g, err := c.guardians()
		if err != nil {
			return err
		}
		idx := identity.IndexOf(g.Guardians, guardian)
		if idx < 0 {
			return ErrNotGuardian.Wrapf("%s", guardian)
		}
		next := GuardianSet{
			Guardians: append(append([]identity.Principal(nil), g.Guardians[:idx]...), g.Guardians[idx+1:]...),
			Threshold: g.Threshold,
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := c.setGuardians(next); err != nil {
			return err
		}
		c.emitGuardians(next, "removed", guardian)
		return nil
	})
}

// SetThreshold changes the number of approvals a proposal needs.
func (v *Vault) SetThreshold(ctx context.Context, threshold uint32) error {
	return v.mutate(ctx, "set_threshold", func(c *call) error {
		if err := c.requireAdmin(); err != nil {
			return err
		}
		g, err := c.guardians()
		if err != nil {
			return err
		}
		g.Threshold = threshold
		if err := g.Validate(); err != nil {
			return err
		}
		if err := c.setGuardians(g); err != nil {
			return err
		}
		c.emitGuardians(g, "threshold", c.st.Admin)
		return nil
	})
}

// Proposal returns a proposal by id.
func (v *Vault) Proposal(ctx context.Context, id uint64) (Proposal, error) {
	var p Proposal
	err := v.view(ctx, func(c *call) error {
		var err error
		p, err = c.proposal(id)
		return err
	})
	return p, err
}

// Guardians returns the guardian set and threshold.
func (v *Vault) Guardians(ctx context.Context) (GuardianSet, error) {
	var g GuardianSet
	err := v.view(ctx, func(c *call) error {
		var err error
		g, err = c.guardians()
		return err
	})
	return g, err
}

// Threshold returns the number of approvals a proposal needs.
func (v *Vault) Threshold(ctx context.Context) (uint32, error) {
	g, err := v.Guardians(ctx)
	return g.Threshold, err
}
