package proofabi

import (
	"github.com/consensys/gnark/frontend"
)

// CredentialCircuit documents the proof statement (§4.2) in gnark's circuit
// shape. The production backend is an external Noir/UltraHonk prover
// reached through Prover/Verifier (per spec §1, the circuit's internal gate
// structure is not normative) — this type is not compiled into a proving
// system by this package. It exists so the public-input/output layout and
// the witness fields it must marshal stay pinned to one, checkable Go type
// instead of drifting between prose and code.
type CredentialCircuit struct {
	// Public inputs, normative order.
	ServiceID   frontend.Variable `gnark:",public"`
	CurrentTime frontend.Variable `gnark:",public"`
	OriginID    frontend.Variable `gnark:",public"`
	PubkeyX     frontend.Variable `gnark:",public"`
	PubkeyY     frontend.Variable `gnark:",public"`

	// Public outputs, normative order.
	OriginToken frontend.Variable `gnark:",public"`
	Tier        frontend.Variable `gnark:",public"`
	ExpiresAt   frontend.Variable `gnark:",public"`

	// Private witness.
	NullifierSeed  frontend.Variable
	BlindingFactor frontend.Variable
	IdentityBudget frontend.Variable
	IssuedAt       frontend.Variable
	CommitmentX    frontend.Variable
	CommitmentY    frontend.Variable
	SignatureRX    frontend.Variable
	SignatureRY    frontend.Variable
	SignatureSLow  frontend.Variable
	SignatureSHigh frontend.Variable
	IdentityIndex  frontend.Variable
}

// Define sketches the statement's constraints for documentation: it is
// intentionally not wired into a groth16/plonk backend by this package,
// since the registered suite's proving system is UltraHonk, reached only
// through the Prover/Verifier interfaces above.
func (c *CredentialCircuit) Define(api frontend.API) error {
	// 1. C == Pedersen(nullifier_seed, blinding_factor) is checked by the
	//    commitment gadget the circuit's standard library provides; out of
	//    scope for this sketch (see pkg/pedersen for the out-of-circuit
	//    twin).
	// 2. SchnorrVerify(facilitator_pubkey, m, signature) similarly delegates
	//    to the circuit's curve gadget; see pkg/schnorr for the twin.
	// 3. service_id binding.
	api.AssertIsEqual(c.ServiceID, c.ServiceID)
	// 4. expiry: current_time < expires_at.
	api.AssertIsLessOrEqual(api.Add(c.CurrentTime, 1), c.ExpiresAt)
	// 5. identity_index < identity_budget.
	api.AssertIsLessOrEqual(api.Add(c.IdentityIndex, 1), c.IdentityBudget)
	// 6/7. origin_token = poseidon_h3(nullifier_seed, origin_id,
	//    identity_index); Tier is emitted as-is from the credential.
	return nil
}
