// Package facilitator implements the credential issuer (§4.3): settlement
// mediation against a payment backend, tier selection, and credential
// minting.
package facilitator

import (
	"context"
	"fmt"
	"time"

	"github.com/x402zk/credential-gateway/pkg/credential"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/paybackend"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// IssuerError carries a structured error kind alongside a human message, so
// HTTP handlers can map it to the right status code via wire.HTTPStatus.
type IssuerError struct {
	Kind    wire.ErrorKind
	Message string
}

func (e *IssuerError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func issuerErr(kind wire.ErrorKind, format string, args ...interface{}) error {
	return &IssuerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Issuer is the facilitator's credential-minting service.
type Issuer struct {
	ServiceID string
	KeyID     string
	Keys      *KeyManager
	Payments  paybackend.Backend
	Tiers     []Tier // sorted descending by MinAmountCents
	Now       func() time.Time
}

// NewIssuer constructs an Issuer. tiers must already be sorted descending by
// MinAmountCents (LoadTiersFromFile/DefaultTiers both guarantee this).
func NewIssuer(serviceID, keyID string, keys *KeyManager, payments paybackend.Backend, tiers []Tier) *Issuer {
	return &Issuer{
		ServiceID: serviceID,
		KeyID:     keyID,
		Keys:      keys,
		Payments:  payments,
		Tiers:     tiers,
		Now:       time.Now,
	}
}

// GetInfo returns the facilitator's advertised identity and tier table.
func (iss *Issuer) GetInfo() (wire.FacilitatorInfo, error) {
	pubkey, err := iss.Keys.PublicKey()
	if err != nil {
		return wire.FacilitatorInfo{}, err
	}
	tiers := make([]wire.TierInfo, len(iss.Tiers))
	for i, t := range iss.Tiers {
		tiers[i] = wire.TierInfo{Tier: t.Tier, PriceUSDC: t.PriceUSDC, IdentityLimit: t.IdentityLimit, DurationSeconds: t.DurationSeconds}
	}
	return wire.FacilitatorInfo{
		ServiceID:         iss.ServiceID,
		FacilitatorPubkey: suite.Prefixed(suite.Pedersen_Schnorr_Poseidon_UltraHonk, suite.EncodePoint(pubkey)),
		CredentialSuites:  suite.Registered,
		Tiers:             tiers,
	}, nil
}

// JWKS returns the facilitator's key set in JWKS-style shape.
func (iss *Issuer) JWKS() (wire.JWKSResponse, error) {
	pubkey, err := iss.Keys.PublicKey()
	if err != nil {
		return wire.JWKSResponse{}, err
	}
	return wire.JWKSResponse{
		Keys: []wire.JWK{{
			Kid: iss.KeyID,
			Alg: "ZK-Schnorr-Poseidon",
			Kty: "ZK",
			Crv: "BN254",
			X:   pubkey.X.Hex(),
			Y:   pubkey.Y.Hex(),
		}},
	}, nil
}

// Settle runs the settle algorithm of §4.3 end to end: parse commitment,
// verify and settle the payment, select a tier, sign a credential.
func (iss *Issuer) Settle(ctx context.Context, req wire.SettlementRequest, payment paybackend.Payment) (wire.SettlementResponse, error) {
	commitmentHex := req.Extensions.ZKCredential.Commitment
	suiteName, pointHex, err := suite.SplitPrefixed(commitmentHex)
	if err != nil {
		return wire.SettlementResponse{}, issuerErr(wire.ErrUnsupportedSuite, "%v", err)
	}
	commitment, err := suite.DecodePoint(pointHex)
	if err != nil {
		return wire.SettlementResponse{}, issuerErr(wire.ErrInvalidProof, "malformed commitment: %v", err)
	}

	reqs := paybackend.Requirements{
		Network: req.PaymentRequirements.Network,
		Asset:   req.PaymentRequirements.Asset,
		Amount:  req.PaymentRequirements.Amount,
		PayTo:   req.PaymentRequirements.PayTo,
	}

	verifyResult, err := iss.Payments.Verify(ctx, payment, reqs)
	if err != nil {
		return wire.SettlementResponse{}, issuerErr(wire.ErrPaymentVerificationFailed, "%v", err)
	}
	if !verifyResult.Valid {
		return wire.SettlementResponse{}, issuerErr(wire.ErrPaymentVerificationFailed, "%s", verifyResult.InvalidReason)
	}

	settleResult, err := iss.Payments.Settle(ctx, payment, reqs)
	if err != nil {
		return wire.SettlementResponse{}, issuerErr(wire.ErrPaymentSettlementFailed, "%v", err)
	}
	if !settleResult.Success {
		return wire.SettlementResponse{}, issuerErr(wire.ErrPaymentSettlementFailed, "%s", settleResult.ErrorReason)
	}

	tier, ok := iss.selectTier(settleResult.AmountCents)
	if !ok {
		return wire.SettlementResponse{}, issuerErr(wire.ErrBelowMinimumTier, "paid %d cents qualifies for no tier", settleResult.AmountCents)
	}

	issuedAt := iss.Now().Unix()
	expiresAt := issuedAt + tier.DurationSeconds

	cred := credential.Credential{
		Suite:          suiteName,
		ServiceID:      field.StringToField(iss.ServiceID),
		Tier:           tier.Tier,
		IdentityBudget: tier.IdentityLimit,
		IssuedAt:       issuedAt,
		ExpiresAt:      expiresAt,
		Commitment:     commitment,
		KeyID:          iss.KeyID,
	}

	m := cred.SigningMessage()
	sig, err := schnorr.Sign(iss.Keys.SecretKey(), m)
	if err != nil {
		return wire.SettlementResponse{}, fmt.Errorf("facilitator: sign credential: %w", err)
	}
	cred.Signature = sig

	resp := wire.SettlementResponse{
		PaymentReceipt: wire.PaymentReceipt{
			Status:     "settled",
			TxHash:     settleResult.Transaction,
			AmountUSDC: centsToUSDC(settleResult.AmountCents),
		},
	}
	resp.Extensions.ZKCredential.Credential = wire.CredentialWire{
		Suite:          suiteName,
		ServiceID:      iss.ServiceID,
		Tier:           cred.Tier,
		IdentityBudget: cred.IdentityBudget,
		IssuedAt:       cred.IssuedAt,
		ExpiresAt:      cred.ExpiresAt,
		Commitment:     suite.Prefixed(suiteName, suite.EncodePoint(commitment)),
		Signature:      suite.Prefixed(suiteName, suite.EncodeSignature(sig)),
		KeyID:          cred.KeyID,
	}
	return resp, nil
}

// selectTier picks the highest tier whose MinAmountCents does not exceed
// paidCents. iss.Tiers must be sorted descending.
func (iss *Issuer) selectTier(paidCents int64) (Tier, bool) {
	for _, t := range iss.Tiers {
		if paidCents >= t.MinAmountCents {
			return t, true
		}
	}
	return Tier{}, false
}

func centsToUSDC(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
