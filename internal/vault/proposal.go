package vault

import (
	"encoding/json"
	"fmt"
)

// ProposalStatus is the lifecycle position of a governance proposal.
type ProposalStatus int32

const (
	// ProposalPending is collecting approvals.
	ProposalPending ProposalStatus = iota

	// ProposalTimelocked reached its threshold and waits for the timelock.
	ProposalTimelocked

	// ProposalExecuted has run its action. Terminal.
	ProposalExecuted
)

// String returns the string representation of the status.
func (s ProposalStatus) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalTimelocked:
		return "timelocked"
	case ProposalExecuted:
		return "executed"
	default:
		return fmt.Sprintf("proposal_status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s ProposalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ProposalStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseProposalStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseProposalStatus converts a string to ProposalStatus.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch s {
	case "pending":
		return ProposalPending, nil
	case "timelocked", "approved":
		return ProposalTimelocked, nil
	case "executed":
		return ProposalExecuted, nil
	default:
		return ProposalPending, fmt.Errorf("unknown proposal status %q", s)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s ProposalStatus) IsTerminal() bool { return s == ProposalExecuted }

// ValidProposalTransitions defines allowed status transitions.
var ValidProposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalPending:    {ProposalTimelocked, ProposalExecuted},
	ProposalTimelocked: {ProposalExecuted},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to ProposalStatus) bool {
	for _, s := range ValidProposalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid status transition.
type TransitionError struct {
	From ProposalStatus
	To   ProposalStatus
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid proposal transition: %s -> %s", e.From, e.To)
}

// transition moves p to status or reports why it cannot.
func (p *Proposal) transition(to ProposalStatus) error {
	if p.Status == to {
		return nil
	}
	if !CanTransition(p.Status, to) {
		return TransitionError{From: p.Status, To: to}
	}
	p.Status = to
	p.Executed = to == ProposalExecuted
	return nil
}
