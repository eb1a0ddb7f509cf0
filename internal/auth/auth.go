// Package auth answers one question for the vault: did this principal
// authorize the current call?
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/shield_vault/internal/identity"
)

// ErrNotAuthorized is returned when a principal did not authorize the call.
var ErrNotAuthorized = errors.New("principal did not authorize call")

// Provider verifies authorization of principals for the call carried by ctx.
// Implementations must not mutate state.
type Provider interface {
	Require(ctx context.Context, principal identity.Principal) error
}

// RequireAny succeeds when at least one of principals authorized the call.
func RequireAny(ctx context.Context, p Provider, principals ...identity.Principal) error {
	var last error
	for _, principal := range principals {
		if principal.IsZero() {
			continue
		}
		err := p.Require(ctx, principal)
		if err == nil {
			return nil
		}
		last = err
	}
	if last == nil {
		last = ErrNotAuthorized
	}
	return last
}

type signersKey struct{}

// WithSigners returns a context in which the given principals have signed.
// Signers accumulate across nested calls.
func WithSigners(ctx context.Context, principals ...identity.Principal) context.Context {
	existing := Signers(ctx)
	merged := make([]identity.Principal, 0, len(existing)+len(principals))
	merged = append(merged, existing...)
	merged = append(merged, principals...)
	return context.WithValue(ctx, signersKey{}, merged)
}

// Signers returns the principals attached by WithSigners.
func Signers(ctx context.Context) []identity.Principal {
	if v, ok := ctx.Value(signersKey{}).([]identity.Principal); ok {
		return v
	}
	return nil
}

// Static trusts the signer list attached to the context. It is the provider
// for in-process callers (CLI, workers, tests) that already authenticated.
type Static struct{}

var _ Provider = Static{}

func (Static) Require(ctx context.Context, principal identity.Principal) error {
	if identity.Contains(Signers(ctx), principal) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotAuthorized, principal)
}

// Chain accepts a principal if any provider does.
type Chain []Provider

var _ Provider = Chain(nil)

func (c Chain) Require(ctx context.Context, principal identity.Principal) error {
	err := fmt.Errorf("%w: %s", ErrNotAuthorized, principal)
	for _, p := range c {
		perr := p.Require(ctx, principal)
		if perr == nil {
			return nil
		}
		err = perr
	}
	return err
}
