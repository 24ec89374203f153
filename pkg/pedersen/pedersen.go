// Package pedersen implements the hiding, binding commitment used to anchor
// a client's (nullifier_seed, blinding_factor) into a credential at
// issuance: C = secret*G0 + blinding*G1 with generator index 0.
package pedersen

import (
	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
)

// Commit returns secret*G0 + blinding*G1 using Pedersen generator index 0.
// Both inputs are already field elements; callers reduce raw secrets with
// field.FromBigInt/field.Random before calling this.
func Commit(secret, blinding field.Element) curve.Point {
	g0, g1 := curve.PedersenGenerators()
	left := curve.ScalarMul(g0, secret.BigInt())
	right := curve.ScalarMul(g1, blinding.BigInt())
	return curve.Add(left, right)
}

// Verify reports whether commitment is exactly Commit(secret, blinding),
// i.e. the client-side check in Invariant 1: a mismatch signals a malicious
// facilitator only when checked against a facilitator-echoed value, or a
// corrupted store when checked against a locally recomputed one.
func Verify(commitment curve.Point, secret, blinding field.Element) bool {
	return Commit(secret, blinding).Equal(commitment)
}
