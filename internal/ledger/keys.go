package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/R3E-Network/shield_vault/internal/identity"
)

// Scope is the durability class of a stored value.
type Scope uint8

const (
	// ScopeInstance holds singleton vault configuration and lists.
	ScopeInstance Scope = iota + 1
	// ScopePersistent holds per-principal and per-proposal records.
	ScopePersistent
)

// String returns the scope name used by backends as a namespace.
func (s Scope) String() string {
	switch s {
	case ScopeInstance:
		return "instance"
	case ScopePersistent:
		return "persistent"
	default:
		return fmt.Sprintf("scope(%d)", s)
	}
}

// Kind enumerates the typed storage keys.
type Kind string

const (
	KindState          Kind = "state"
	KindStrategies     Kind = "strategies"
	KindAllocations    Kind = "allocations"
	KindQueue          Kind = "queue"
	KindGuardians      Kind = "guardians"
	KindNextProposalID Kind = "next_proposal_id"
	KindPosition       Kind = "position"
	KindHealth         Kind = "health"
	KindProposal       Kind = "proposal"
)

var kindScopes = map[Kind]Scope{
	KindState:          ScopeInstance,
	KindStrategies:     ScopeInstance,
	KindAllocations:    ScopeInstance,
	KindQueue:          ScopeInstance,
	KindGuardians:      ScopeInstance,
	KindNextProposalID: ScopeInstance,
	KindPosition:       ScopePersistent,
	KindHealth:         ScopePersistent,
	KindProposal:       ScopePersistent,
}

// Key addresses one stored value. Singleton kinds leave Principal and ID
// empty; composite kinds carry the principal or the proposal id.
type Key struct {
	Kind      Kind
	Principal identity.Principal
	ID        uint64
}

// Singleton returns the key of a singleton kind.
func Singleton(kind Kind) Key { return Key{Kind: kind} }

// PositionKey addresses a user's share position.
func PositionKey(user identity.Principal) Key {
	return Key{Kind: KindPosition, Principal: user}
}

// HealthKey addresses a strategy's health record.
func HealthKey(strategy identity.Principal) Key {
	return Key{Kind: KindHealth, Principal: strategy}
}

// ProposalKey addresses a governance proposal.
func ProposalKey(id uint64) Key {
	return Key{Kind: KindProposal, ID: id}
}

// Scope returns the durability class of the key.
func (k Key) Scope() Scope {
	if s, ok := kindScopes[k.Kind]; ok {
		return s
	}
	return ScopePersistent
}

// String encodes the key as "<kind>" or "<kind>/<principal|id>".
func (k Key) String() string {
	switch k.Kind {
	case KindPosition, KindHealth:
		return string(k.Kind) + "/" + string(k.Principal)
	case KindProposal:
		return string(k.Kind) + "/" + strconv.FormatUint(k.ID, 10)
	default:
		return string(k.Kind)
	}
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	kind, rest, composite := strings.Cut(s, "/")
	k := Key{Kind: Kind(kind)}
	if _, ok := kindScopes[k.Kind]; !ok {
		return Key{}, fmt.Errorf("unknown key kind %q", kind)
	}
	switch k.Kind {
	case KindPosition, KindHealth:
		if !composite || rest == "" {
			return Key{}, fmt.Errorf("key %q: missing principal", s)
		}
		k.Principal = identity.Principal(rest)
	case KindProposal:
		id, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("key %q: %w", s, err)
		}
		k.ID = id
	default:
		if composite {
			return Key{}, fmt.Errorf("key %q: singleton kind has suffix", s)
		}
	}
	return k, nil
}
