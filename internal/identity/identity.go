// Package identity defines the opaque principal identifiers used for users,
// the vault itself, strategies, the oracle and guardians.
package identity

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
)

// Principal identifies an account that can hold assets or authorize calls.
type Principal string

// String implements fmt.Stringer.
func (p Principal) String() string { return string(p) }

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return strings.TrimSpace(string(p)) == "" }

// AssetID identifies the base asset a vault accounts in.
type AssetID string

// String implements fmt.Stringer.
func (a AssetID) String() string { return string(a) }

// Validator checks principal syntax before it is stored.
type Validator func(Principal) error

// AnyNonEmpty accepts every non-blank principal.
func AnyNonEmpty(p Principal) error {
	if p.IsZero() {
		return fmt.Errorf("principal is empty")
	}
	return nil
}

// NeoAddress accepts only base58check Neo N3 addresses.
func NeoAddress(p Principal) error {
	if err := AnyNonEmpty(p); err != nil {
		return err
	}
	if _, err := address.StringToUint160(string(p)); err != nil {
		return fmt.Errorf("principal %q is not a neo address: %w", p, err)
	}
	return nil
}

// Contains reports whether p is in list.
func Contains(list []Principal, p Principal) bool {
	return IndexOf(list, p) >= 0
}

// IndexOf returns the position of p in list or -1.
func IndexOf(list []Principal, p Principal) int {
	for i, candidate := range list {
		if candidate == p {
			return i
		}
	}
	return -1
}
