// Package proofabi fixes the public-input/output layout of the credential
// proof statement and the narrow Prover/Verifier interfaces the ZK backend
// is reached through (the backend itself — a Noir/UltraHonk circuit — is an
// external collaborator, out of scope per spec §1).
package proofabi

import (
	"context"
	"fmt"

	"github.com/x402zk/credential-gateway/pkg/field"
)

// PublicIOLength fixes the concatenated public input + public output vector
// length. The normative statement (§4.2) names 7 elements, but this
// implementation follows the reference's richer verification call (§4.4.3),
// which also binds expires_at as a public input — an explicit choice of the
// suite's open question on public I/O arity (see SPEC_FULL.md §"OPEN
// QUESTION DECISIONS"). Prover and Verifier MUST agree on this constant.
const PublicIOLength = 8

// PublicInputs is the prover/verifier's public-input half of the statement,
// in normative order: [service_id, current_time, origin_id,
// facilitator_pubkey.x, facilitator_pubkey.y].
type PublicInputs struct {
	ServiceID   field.Element
	CurrentTime int64
	OriginID    field.Element
	PubkeyX     field.Element
	PubkeyY     field.Element
}

// PublicOutputs is the circuit's public-output half: [origin_token, tier,
// expires_at].
type PublicOutputs struct {
	OriginToken field.Element
	Tier        int64
	ExpiresAt   int64
}

// ConcatenatedIO lays PublicInputs and PublicOutputs out in the normative
// order a Verifier receives them.
func ConcatenatedIO(in PublicInputs, out PublicOutputs) []field.Element {
	return []field.Element{
		in.ServiceID,
		field.FromUint64(uint64(in.CurrentTime)),
		in.OriginID,
		in.PubkeyX,
		in.PubkeyY,
		out.OriginToken,
		field.FromUint64(uint64(out.Tier)),
		field.FromUint64(uint64(out.ExpiresAt)),
	}
}

// Witness carries every private input the prover needs to satisfy the
// statement in §4.2: knowledge of (nullifier_seed, blinding_factor,
// credential fields, signature, identity_index) such that the commitment,
// signature, service binding, expiry, and identity-budget constraints hold
// and the circuit emits (origin_token, tier) as public outputs.
type Witness struct {
	NullifierSeed    field.Element
	BlindingFactor   field.Element
	ServiceID        field.Element
	Tier             int64
	IdentityBudget   int64
	IssuedAt         int64
	ExpiresAt        int64
	CommitmentX      field.Element
	CommitmentY      field.Element
	SignatureRX      field.Element
	SignatureRY      field.Element
	SignatureSLow    field.Element // low 128 bits of s
	SignatureSHigh   field.Element // high 128 bits of s
	IdentityIndex    int64
}

// ProofResult is what a Prover returns: opaque proof bytes plus the public
// I/O vector it attests to (length PublicIOLength).
type ProofResult struct {
	Proof    []byte
	PublicIO []field.Element
}

// Prover is the external ZK backend's proving half.
type Prover interface {
	Prove(ctx context.Context, witness Witness, publicInputs PublicInputs) (ProofResult, error)
}

// VerifyRequest is what a Verifier checks: an opaque proof against a public
// I/O vector of length PublicIOLength.
type VerifyRequest struct {
	Proof        []byte
	PublicInputs []field.Element
}

// VerifyResult reports whether the proof holds.
type VerifyResult struct {
	Valid bool
	Error string
}

// Verifier is the external ZK backend's verification half. Init MUST be
// safely callable concurrently (single-flight), and the
// backend MUST survive an error inside Verify without needing Destroy+Init
// again.
type Verifier interface {
	Init(ctx context.Context) error
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
	Destroy(ctx context.Context) error
}

// ValidatePublicInputs rejects any vector shorter than PublicIOLength
// (Testable Property 7).
func ValidatePublicInputs(pi []field.Element) error {
	if len(pi) < PublicIOLength {
		return fmt.Errorf("proofabi: public inputs too short: got %d, want >= %d", len(pi), PublicIOLength)
	}
	return nil
}
