package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/shield_vault/internal/events"
	"github.com/R3E-Network/shield_vault/internal/identity"
)

func TestProposalNeedsThreshold(t *testing.T) {
	h := newHarness(t)

	id := h.propose(SetPaused(true))
	assert.Equal(t, uint64(1), id)

	p, err := h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ProposalPending, p.Status)
	assert.Equal(t, []identity.Principal{g1}, p.Approvals)
	assert.Equal(t, h.ts(), p.ProposedAt)

	require.ErrorIs(t, h.v.ExecuteAction(h.as(g1), g1, id), ErrInsufficientApprovals)
	require.ErrorIs(t, h.v.ApproveAction(h.as(g1), g1, id), ErrAlreadyApproved)

	paused, err := h.v.Paused(context.Background())
	require.NoError(t, err)
	require.False(t, paused)

	require.NoError(t, h.v.ApproveAction(h.as(g2), g2, id))
	paused, err = h.v.Paused(context.Background())
	require.NoError(t, err)
	require.True(t, paused)

	p, err = h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, p.Executed)
	assert.Equal(t, ProposalExecuted, p.Status)

	require.ErrorIs(t, h.v.ApproveAction(h.as(g3), g3, id), ErrProposalExecuted)
	require.ErrorIs(t, h.v.ExecuteAction(h.as(g3), g3, id), ErrProposalExecuted)
	require.Len(t, h.events.RecentByType(events.EventTimelockExecuted, 10), 1)
}

func TestGovernanceCallerChecks(t *testing.T) {
	h := newHarness(t)

	_, err := h.v.ProposeAction(h.as(alice), alice, SetPaused(true))
	require.ErrorIs(t, err, ErrUnauthorized)

	// A guardian who did not sign is rejected too.
	_, err = h.v.ProposeAction(h.as(g2), g1, SetPaused(true))
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.v.ProposeAction(h.as(g1), g1, Action{Kind: "mint"})
	require.ErrorIs(t, err, ErrInvalidAction)

	require.ErrorIs(t, h.v.ApproveAction(h.as(g2), g2, 42), ErrProposalNotFound)

	id := h.propose(SetPaused(true))
	require.ErrorIs(t, h.v.ApproveAction(h.as(alice), alice, id), ErrUnauthorized)
}

func TestProposalIDsIncrease(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, uint64(1), h.propose(SetPaused(true)))
	assert.Equal(t, uint64(2), h.propose(SetPaused(false)))
	assert.Equal(t, uint64(3), h.propose(Rebalance(50)))
}

func TestTimelock(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.v.SetTimelockDuration(h.as(admin), 3600))

	id := h.propose(SetPaused(true))
	err := h.v.ApproveAction(h.as(g2), g2, id)
	require.ErrorIs(t, err, ErrTimelockNotElapsed)

	// The approval is kept even though the call reported an error.
	p, err := h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, p.Approvals, 2)
	assert.Equal(t, ProposalTimelocked, p.Status)
	assert.False(t, p.Executed)
	require.Len(t, h.events.RecentByType(events.EventTimelockStarted, 10), 1)

	h.advance(3599 * time.Second)
	require.ErrorIs(t, h.v.ExecuteAction(h.as(g3), g3, id), ErrTimelockNotElapsed)

	h.advance(time.Second)
	require.NoError(t, h.v.ExecuteAction(h.as(g3), g3, id))
	paused, err := h.v.Paused(context.Background())
	require.NoError(t, err)
	require.True(t, paused)

	require.ErrorIs(t, h.v.ExecuteAction(h.as(g3), g3, id), ErrProposalExecuted)
	require.Len(t, h.events.RecentByType(events.EventTimelockExecuted, 10), 1)
}

func TestSingleApprovalThreshold(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.v.SetThreshold(h.as(admin), 1))

	id := h.propose(SetPaused(true))
	p, err := h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, p.Executed)

	require.NoError(t, h.v.SetTimelockDuration(h.as(admin), 60))
	id = h.propose(SetPaused(false))
	p, err = h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ProposalTimelocked, p.Status)

	h.advance(time.Minute)
	require.NoError(t, h.v.ExecuteAction(h.as(g1), g1, id))
	paused, err := h.v.Paused(context.Background())
	require.NoError(t, err)
	require.False(t, paused)
}

func TestFailedActionDiscardsApproval(t *testing.T) {
	h := newHarness(t)
	h.addStrategy(s1)

	id := h.propose(AddStrategy(s1))
	require.ErrorIs(t, h.v.ApproveAction(h.as(g2), g2, id), ErrAlreadyRegistered)

	p, err := h.v.Proposal(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, p.Approvals, 1)
	assert.False(t, p.Executed)
}

func TestGuardianManagement(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(admin)
	const g4 identity.Principal = "guardian-4"

	require.NoError(t, h.v.AddGuardian(ctx, g4))
	require.ErrorIs(t, h.v.AddGuardian(ctx, g4), ErrGuardianExists)
	require.ErrorIs(t, h.v.AddGuardian(h.as(g1), "guardian-5"), ErrUnauthorized)

	require.NoError(t, h.v.SetThreshold(ctx, 4))
	require.ErrorIs(t, h.v.SetThreshold(ctx, 5), ErrInvalidThreshold)
	require.ErrorIs(t, h.v.SetThreshold(ctx, 0), ErrInvalidThreshold)
	require.ErrorIs(t, h.v.RemoveGuardian(ctx, g4), ErrInvalidThreshold)

	require.NoError(t, h.v.SetThreshold(ctx, 2))
	require.NoError(t, h.v.RemoveGuardian(ctx, g4))
	require.NoError(t, h.v.RemoveGuardian(ctx, g3))
	require.ErrorIs(t, h.v.RemoveGuardian(ctx, g2), ErrInvalidThreshold)
	require.ErrorIs(t, h.v.RemoveGuardian(ctx, g3), ErrNotGuardian)

	g, err := h.v.Guardians(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []identity.Principal{g1, g2}, g.Guardians)
	threshold, err := h.v.Threshold(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), threshold)

	// Removed guardians can no longer propose.
	_, err = h.v.ProposeAction(h.as(g3), g3, SetPaused(true))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestProposalTransitions(t *testing.T) {
	assert.True(t, CanTransition(ProposalPending, ProposalTimelocked))
	assert.True(t, CanTransition(ProposalPending, ProposalExecuted))
	assert.True(t, CanTransition(ProposalTimelocked, ProposalExecuted))
	assert.False(t, CanTransition(ProposalExecuted, ProposalPending))
	assert.False(t, CanTransition(ProposalTimelocked, ProposalPending))
	assert.True(t, ProposalExecuted.IsTerminal())

	p := Proposal{Status: ProposalExecuted, Executed: true}
	var terr TransitionError
	require.ErrorAs(t, p.transition(ProposalTimelocked), &terr)
	assert.Equal(t, ProposalExecuted, terr.From)

	for _, s := range []ProposalStatus{ProposalPending, ProposalTimelocked, ProposalExecuted} {
		data, err := s.MarshalJSON()
		require.NoError(t, err)
		var back ProposalStatus
		require.NoError(t, back.UnmarshalJSON(data))
		assert.Equal(t, s, back)
	}
	_, err := ParseProposalStatus("vetoed")
	require.Error(t, err)
}
