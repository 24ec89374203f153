package facilitator

import (
	"context"
	"testing"
	"time"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/paybackend"
	"github.com/x402zk/credential-gateway/pkg/pedersen"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

func testKeyManager(t *testing.T) *KeyManager {
	t.Helper()
	km, err := NewKeyManager("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd")
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	return km
}

func testCommitment() curve.Point {
	return pedersen.Commit(field.FromUint64(42), field.FromUint64(99))
}

func settleRequest(commitment curve.Point, paidValue string) wire.SettlementRequest {
	var req wire.SettlementRequest
	req.Payment = map[string]interface{}{
		"from":        "0x1111111111111111111111111111111111111111",
		"to":          "0x2222222222222222222222222222222222222222",
		"value":       paidValue,
		"validAfter":  0,
		"validBefore": 9999999999,
		"nonce":       "0xabcd000000000000000000000000000000000000000000000000000000000",
		"signature":   "0x" + repeatHex(65),
	}
	req.PaymentRequirements = wire.PaymentRequirements{
		Scheme:  "exact",
		Network: "eip155:8453",
		Asset:   "0x3333333333333333333333333333333333333333",
		Amount:  "100",
		PayTo:   "0x2222222222222222222222222222222222222222",
	}
	req.Extensions.ZKCredential.Commitment = suite.Prefixed(suite.Pedersen_Schnorr_Poseidon_UltraHonk, suite.EncodePoint(commitment))
	return req
}

func repeatHex(n int) string {
	out := make([]byte, n*2)
	for i := range out {
		out[i] = 'a'
	}
	return string(out)
}

func TestIssuerSettleSelectsTierAndSigns(t *testing.T) {
	km := testKeyManager(t)
	mock := paybackend.NewMockBackend()
	tiers := DefaultTiers()
	iss := NewIssuer("test-service", "k1", km, mock, tiers)
	iss.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	commitment := testCommitment()
	req := settleRequest(commitment, "1000000") // 1,000,000 smallest units / 10^4 = 100 cents -> tier 1

	resp, err := iss.Settle(context.Background(), req, paybackend.Payment{
		From: "0x1111111111111111111111111111111111111111",
		To:   "0x2222222222222222222222222222222222222222",
		Value: "1000000",
		Nonce: "0xabcd00000000000000000000000000000000000000000000000000000000",
	})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if resp.PaymentReceipt.Status != "settled" {
		t.Errorf("expected settled status, got %q", resp.PaymentReceipt.Status)
	}
	cred := resp.Extensions.ZKCredential.Credential
	if cred.Tier != 1 {
		t.Errorf("expected tier 1 for 100 cents paid, got %d", cred.Tier)
	}
	if cred.ExpiresAt != cred.IssuedAt+tiers[1].DurationSeconds {
		t.Errorf("expires_at does not match issued_at + tier duration")
	}
	if cred.Commitment == "" || cred.Signature == "" {
		t.Error("expected non-empty commitment and signature on the returned credential")
	}
}

func TestIssuerSettleBelowMinimumTier(t *testing.T) {
	km := testKeyManager(t)
	mock := paybackend.NewMockBackend()
	iss := NewIssuer("test-service", "k1", km, mock, DefaultTiers())

	commitment := testCommitment()
	req := settleRequest(commitment, "1") // 1 unit -> 0 cents, below every tier's minimum

	_, err := iss.Settle(context.Background(), req, paybackend.Payment{
		From:  "0x1111111111111111111111111111111111111111",
		To:    "0x2222222222222222222222222222222222222222",
		Value: "1",
		Nonce: "0xabcd00000000000000000000000000000000000000000000000000000000",
	})
	issuerErr, ok := err.(*IssuerError)
	if !ok {
		t.Fatalf("expected *IssuerError, got %T: %v", err, err)
	}
	if issuerErr.Kind != wire.ErrBelowMinimumTier {
		t.Errorf("expected below_minimum_tier, got %v", issuerErr.Kind)
	}
}

func TestIssuerSettleUnsupportedSuite(t *testing.T) {
	km := testKeyManager(t)
	mock := paybackend.NewMockBackend()
	iss := NewIssuer("test-service", "k1", km, mock, DefaultTiers())

	req := settleRequest(testCommitment(), "1000000")
	req.Extensions.ZKCredential.Commitment = "bogus-suite:0x00"

	_, err := iss.Settle(context.Background(), req, paybackend.Payment{Value: "1000000", Nonce: "0xab"})
	issuerErr, ok := err.(*IssuerError)
	if !ok {
		t.Fatalf("expected *IssuerError, got %T: %v", err, err)
	}
	if issuerErr.Kind != wire.ErrUnsupportedSuite {
		t.Errorf("expected unsupported_suite, got %v", issuerErr.Kind)
	}
}

func TestIssuerGetInfoAndJWKSAgreeOnPubkey(t *testing.T) {
	km := testKeyManager(t)
	iss := NewIssuer("svc", "kid-1", km, paybackend.NewMockBackend(), DefaultTiers())

	info, err := iss.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo: %v", err)
	}
	jwks, err := iss.JWKS()
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}
	if len(jwks.Keys) != 1 {
		t.Fatalf("expected exactly one JWKS key, got %d", len(jwks.Keys))
	}
	_, pointHex, err := suite.SplitPrefixed(info.FacilitatorPubkey)
	if err != nil {
		t.Fatalf("SplitPrefixed: %v", err)
	}
	pk, err := suite.DecodePoint(pointHex)
	if err != nil {
		t.Fatalf("DecodePoint: %v", err)
	}
	if pk.X.Hex() != jwks.Keys[0].X || pk.Y.Hex() != jwks.Keys[0].Y {
		t.Error("GetInfo and JWKS disagree on the facilitator public key")
	}
}

func TestKeyManagerConcurrentDerivationReturnsSameKey(t *testing.T) {
	km := testKeyManager(t)
	results := make(chan curve.Point, 8)
	for i := 0; i < 8; i++ {
		go func() {
			pk, err := km.PublicKey()
			if err != nil {
				t.Error(err)
			}
			results <- pk
		}()
	}
	first := <-results
	for i := 1; i < 8; i++ {
		pk := <-results
		if !pk.Equal(first) {
			t.Error("concurrent PublicKey() calls returned different points")
		}
	}
}
