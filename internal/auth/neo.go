package auth

import (
	"context"
	"crypto/elliptic"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"

	"github.com/R3E-Network/shield_vault/internal/identity"
)

// Signature is one secp256r1 signature over a request payload.
type Signature struct {
	PublicKey []byte `json:"public_key"` // compressed
	Signature []byte `json:"signature"`
}

// SignedRequest carries a call payload and the signatures authorizing it.
type SignedRequest struct {
	Payload    []byte      `json:"payload"`
	Signatures []Signature `json:"signatures"`
}

type signedRequestKey struct{}

// WithSignedRequest attaches req to ctx for NeoSignatures to verify.
func WithSignedRequest(ctx context.Context, req SignedRequest) context.Context {
	return context.WithValue(ctx, signedRequestKey{}, req)
}

// Sign produces a Signature of payload with priv.
func Sign(priv *keys.PrivateKey, payload []byte) Signature {
	return Signature{
		PublicKey: priv.PublicKey().Bytes(),
		Signature: priv.Sign(payload),
	}
}

// NeoSignatures authorizes principals that are Neo N3 addresses whose key
// signed the request payload attached to the context.
type NeoSignatures struct{}

var _ Provider = NeoSignatures{}

func (NeoSignatures) Require(ctx context.Context, principal identity.Principal) error {
	req, ok := ctx.Value(signedRequestKey{}).(SignedRequest)
	if !ok {
		return fmt.Errorf("%w: %s: no signed request", ErrNotAuthorized, principal)
	}
	digest := hash.Sha256(req.Payload).BytesBE()
	for _, sig := range req.Signatures {
		pub, err := keys.NewPublicKeyFromBytes(sig.PublicKey, elliptic.P256())
		if err != nil {
			continue
		}
		if pub.Address() != principal.String() {
			continue
		}
		if pub.Verify(sig.Signature, digest) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: no valid signature", ErrNotAuthorized, principal)
}
