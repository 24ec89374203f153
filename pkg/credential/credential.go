// Package credential defines the facilitator-issued wire Credential, the
// client-held StoredCredential, and the derived lifecycle state machine
// (valid / expired / exhausted).
package credential

import (
	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/poseidon"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
)

// Credential is the immutable record returned by the facilitator and proved
// about by the client. Wire (de)serialization lives in pkg/wire; this type
// holds the decoded, suite-validated representation.
type Credential struct {
	Suite           string
	ServiceID       field.Element
	Tier            int
	IdentityBudget  int
	IssuedAt        int64
	ExpiresAt       int64
	Commitment      curve.Point
	Signature       schnorr.Signature
	KeyID           string // optional, empty if unset
}

// SigningMessage computes m = Poseidon_h7(service_id, tier, identity_budget,
// issued_at, expires_at, C.x, C.y), the exact message the facilitator signs
// and every verifier (client, circuit) re-derives.
func (c Credential) SigningMessage() field.Element {
	return poseidon.Hash7(
		c.ServiceID,
		field.FromUint64(uint64(c.Tier)),
		field.FromUint64(uint64(c.IdentityBudget)),
		field.FromUint64(uint64(c.IssuedAt)),
		field.FromUint64(uint64(c.ExpiresAt)),
		c.Commitment.X,
		c.Commitment.Y,
	)
}

// VerifySignature checks the facilitator's signature over SigningMessage
// against facilitatorPubkey, per Invariant 2. Out-of-language verification
// is a convenience check; the canonical verifier remains the ZK circuit.
func (c Credential) VerifySignature(facilitatorPubkey curve.Point) bool {
	return schnorr.Verify(facilitatorPubkey, c.SigningMessage(), c.Signature)
}

// State is the derived lifecycle state of a stored credential (Invariant 3).
type State string

const (
	StateValid     State = "valid"
	StateExpired   State = "expired"
	StateExhausted State = "exhausted"
)

// StoredCredential is the wire Credential plus the client-held secrets and
// usage counter. It is created on first successful settlement, mutated only
// by the presentation-index selector (PresentationCount), and destroyed on
// explicit clear or when the derived State is no longer StateValid.
type StoredCredential struct {
	Credential          Credential
	NullifierSeed       field.Element
	BlindingFactor      field.Element
	FacilitatorPubkey   curve.Point
	PresentationCount   int
	ObtainedAt          int64 // monotonic anchor for the time-bucket strategy
}

// DeriveState computes the lifecycle state from (now, expires_at,
// presentation_count, identity_budget). Expiry is checked before exhaustion
// so a credential that is both past its budget and expired reports expired.
func (sc StoredCredential) DeriveState(now int64) State {
	if now >= sc.Credential.ExpiresAt {
		return StateExpired
	}
	if sc.PresentationCount >= sc.Credential.IdentityBudget {
		return StateExhausted
	}
	return StateValid
}

// IsUsable reports whether the credential can still produce a presentation.
func (sc StoredCredential) IsUsable(now int64) bool {
	return sc.DeriveState(now) == StateValid
}
