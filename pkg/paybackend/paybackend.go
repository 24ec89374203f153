// Package paybackend implements the facilitator-side PaymentBackend
// interface: on-chain verification and settlement of an EIP-3009
// transfer-authorization payload, plus a mock backend for integration
// testing (ALLOW_MOCK_PAYMENTS).
package paybackend

import "context"

// Payment is the decoded x402 payment payload the gateway forwards to the
// facilitator's /settle endpoint. Its shape is scheme-specific; for the
// only scheme this backend implements (EIP-3009 USDC transfer
// authorization) the fields below are populated.
type Payment struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // smallest unit, decimal string
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32-byte hex
	Signature   string `json:"signature"`
}

// Requirements is the subset of the advertised PaymentRequirements a
// backend needs to verify a payment against.
type Requirements struct {
	Network string
	Asset   string
	Amount  string
	PayTo   string
}

// VerifyResult is returned by Verify.
type VerifyResult struct {
	Valid         bool
	InvalidReason string
}

// SettleResult is returned by Settle.
type SettleResult struct {
	Success      bool
	Transaction  string
	ErrorReason  string
	AmountCents  int64
}

// Backend is the facilitator-side payment backend contract (§6).
type Backend interface {
	// Verify checks a payment payload against requirements without
	// submitting anything on-chain. It MUST be safe to call more than
	// once for the same payload.
	Verify(ctx context.Context, payment Payment, req Requirements) (VerifyResult, error)

	// Settle executes the transfer-authorization. Implementations MUST
	// treat double-submission of the same nonce as a no-op success
	// rather than a duplicate charge.
	Settle(ctx context.Context, payment Payment, req Requirements) (SettleResult, error)
}
