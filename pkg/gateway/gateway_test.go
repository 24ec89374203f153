package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/x402zk/credential-gateway/pkg/config"
	"github.com/x402zk/credential-gateway/pkg/facilitator"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

func testFacilitatorPubkey(t *testing.T) string {
	t.Helper()
	km, err := facilitator.NewKeyManager("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd")
	if err != nil {
		t.Fatalf("NewKeyManager: %v", err)
	}
	pubkey, err := km.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	return suite.Prefixed(suite.Pedersen_Schnorr_Poseidon_UltraHonk, suite.EncodePoint(pubkey))
}

func testConfig(t *testing.T, skipVerification bool) *config.GatewayConfig {
	t.Helper()
	cfg := &config.GatewayConfig{
		ServiceID:                    "test-service",
		FacilitatorURL:               "http://facilitator.example/settle",
		MinTier:                      1,
		SkipProofVerification:        skipVerification,
		RateLimitMaxRequestsPerToken: 2,
		RateLimitWindowSeconds:       60,
		PaymentAmount:                "1000000",
		PaymentAsset:                 "0x3333333333333333333333333333333333333333",
		PaymentRecipient:             "0x2222222222222222222222222222222222222222",
		Network:                      "eip155:8453",
		ResourceDescription:          "a protected resource",
		CORSOrigins:                  []string{"*"},
	}
	if !skipVerification {
		cfg.FacilitatorPubkey = testFacilitatorPubkey(t)
	}
	return cfg
}

type fakeFacilitatorClient struct {
	status int
	body   []byte
	err    error
}

func (f *fakeFacilitatorClient) Settle(ctx context.Context, body []byte) (int, []byte, error) {
	return f.status, f.body, f.err
}

type fakeVerifier struct {
	valid bool
	err   error
}

func (f *fakeVerifier) Init(ctx context.Context) error    { return nil }
func (f *fakeVerifier) Destroy(ctx context.Context) error { return nil }
func (f *fakeVerifier) Verify(ctx context.Context, req proofabi.VerifyRequest) (proofabi.VerifyResult, error) {
	if f.err != nil {
		return proofabi.VerifyResult{}, f.err
	}
	return proofabi.VerifyResult{Valid: f.valid}, nil
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	tier, _ := TierFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte{byte(tier)})
}

func TestProtectWritesDiscoveryChallengeOnBareRequest(t *testing.T) {
	cfg := testConfig(t, false)
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", nil)
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var challenge wire.PaymentRequired
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if len(challenge.Accepts) != 1 || challenge.Accepts[0].PayTo != cfg.PaymentRecipient {
		t.Errorf("unexpected accepts entry: %+v", challenge.Accepts)
	}
	if challenge.Extensions.ZKCredential.FacilitatorURL != cfg.FacilitatorURL {
		t.Errorf("expected challenge to advertise the configured facilitator url")
	}
}

func TestProtectMediatesPaymentAndRelaysCredential(t *testing.T) {
	cfg := testConfig(t, false)
	var settleResp wire.SettlementResponse
	settleResp.PaymentReceipt = wire.PaymentReceipt{Status: "settled", TxHash: "0xabc"}
	settleResp.Extensions.ZKCredential.Credential = wire.CredentialWire{Suite: suite.Pedersen_Schnorr_Poseidon_UltraHonk}
	respBytes, _ := json.Marshal(settleResp)

	fc := &fakeFacilitatorClient{status: http.StatusOK, body: respBytes}
	m, err := New(cfg, fc, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	body, _ := json.Marshal(map[string]interface{}{
		"payment": map[string]interface{}{"from": "0x1"},
		"extensions": map[string]interface{}{
			"zk_credential": map[string]interface{}{"commitment": "pedersen-schnorr-poseidon-ultrahonk:0x04aa"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "https://api.example.com/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var success wire.PaymentMediationSuccess
	if err := json.Unmarshal(rec.Body.Bytes(), &success); err != nil {
		t.Fatalf("decode success body: %v", err)
	}
	if success.X402.PaymentResponse.TxHash != "0xabc" {
		t.Errorf("expected relayed receipt, got %+v", success.X402.PaymentResponse)
	}
}

func TestProtectMapsFacilitatorFailureTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		err        error
		wantStatus int
	}{
		{"transport error", 0, errTransport, http.StatusServiceUnavailable},
		{"client rejection", http.StatusBadRequest, nil, http.StatusPaymentRequired},
		{"facilitator down", http.StatusServiceUnavailable, nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t, false)
			fc := &fakeFacilitatorClient{status: tc.status, err: tc.err}
			m, err := New(cfg, fc, &fakeVerifier{valid: true})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer m.Close()

			body, _ := json.Marshal(map[string]interface{}{
				"payment": map[string]interface{}{"from": "0x1"},
				"extensions": map[string]interface{}{
					"zk_credential": map[string]interface{}{"commitment": "pedersen-schnorr-poseidon-ultrahonk:0x04aa"},
				},
			})
			req := httptest.NewRequest(http.MethodPost, "https://api.example.com/widgets", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			m.Protect(okHandler)(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestProtectVerifiesPresentationAndInvokesHandler(t *testing.T) {
	cfg := testConfig(t, false)
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	now := time.Now().Unix()
	env := wire.PresentationEnvelope{
		Version: wire.SuiteVersion,
		Suite:   suite.Pedersen_Schnorr_Poseidon_UltraHonk,
		Proof:   base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		PublicOutputs: wire.PublicOutputsWire{
			OriginToken: "0x" + repeatHexChar('a', 64),
			Tier:        2,
			ExpiresAt:   now + 3600,
			CurrentTime: &now,
		},
	}
	body, _ := json.Marshal(map[string]interface{}{"zk_credential": env})
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Bytes()[0] != 2 {
		t.Errorf("expected downstream handler to see tier 2 via context, got %d", rec.Body.Bytes()[0])
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(cfg.RateLimitMaxRequestsPerToken) {
		t.Errorf("expected X-RateLimit-Limit %d, got %q", cfg.RateLimitMaxRequestsPerToken, got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got == "" {
		t.Error("expected X-RateLimit-Remaining to be set")
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Error("expected X-RateLimit-Reset to be set")
	}
}

func TestProtectRejectsExpiredCredential(t *testing.T) {
	cfg := testConfig(t, false)
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	now := time.Now().Unix()
	env := wire.PresentationEnvelope{
		Suite: suite.Pedersen_Schnorr_Poseidon_UltraHonk,
		Proof: base64.StdEncoding.EncodeToString([]byte{1}),
		PublicOutputs: wire.PublicOutputsWire{
			OriginToken: "0x" + repeatHexChar('a', 64),
			Tier:        2,
			ExpiresAt:   now - 1000,
			CurrentTime: &now,
		},
	}
	body, _ := json.Marshal(map[string]interface{}{"zk_credential": env})
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired credential, got %d", rec.Code)
	}
}

func TestProtectRejectsBelowMinimumTier(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.MinTier = 2
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	now := time.Now().Unix()
	env := wire.PresentationEnvelope{
		Suite: suite.Pedersen_Schnorr_Poseidon_UltraHonk,
		Proof: base64.StdEncoding.EncodeToString([]byte{1}),
		PublicOutputs: wire.PublicOutputsWire{
			OriginToken: "0x" + repeatHexChar('a', 64),
			Tier:        1,
			ExpiresAt:   now + 3600,
			CurrentTime: &now,
		},
	}
	body, _ := json.Marshal(map[string]interface{}{"zk_credential": env})
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for below-minimum tier, got %d", rec.Code)
	}
}

func TestProtectEnforcesRateLimitAfterWindowExhausted(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.RateLimitMaxRequestsPerToken = 1
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	now := time.Now().Unix()
	token := "0x" + repeatHexChar('b', 64)
	makeRequest := func() *httptest.ResponseRecorder {
		env := wire.PresentationEnvelope{
			Suite: suite.Pedersen_Schnorr_Poseidon_UltraHonk,
			Proof: base64.StdEncoding.EncodeToString([]byte{1}),
			PublicOutputs: wire.PublicOutputsWire{
				OriginToken: token,
				Tier:        2,
				ExpiresAt:   now + 3600,
				CurrentTime: &now,
			},
		}
		body, _ := json.Marshal(map[string]interface{}{"zk_credential": env})
		req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		m.Protect(okHandler)(rec, req)
		return rec
	}

	first := makeRequest()
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}
	second := makeRequest()
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate-limited, got %d", second.Code)
	}
}

func TestProtectDevModeSkipsCryptoButEnforcesExpiryAndTier(t *testing.T) {
	cfg := testConfig(t, true)
	m, err := New(cfg, &fakeFacilitatorClient{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	now := time.Now().Unix()
	env := wire.PresentationEnvelope{
		Suite: suite.Pedersen_Schnorr_Poseidon_UltraHonk,
		Proof: base64.StdEncoding.EncodeToString([]byte{1}),
		PublicOutputs: wire.PublicOutputsWire{
			OriginToken: "0x" + repeatHexChar('c', 64),
			Tier:        1,
			ExpiresAt:   now + 3600,
			CurrentTime: &now,
		},
	}
	body, _ := json.Marshal(map[string]interface{}{"zk_credential": env})
	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	m.Protect(okHandler)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected dev mode to allow a valid-shaped presentation without a verifier, got %d: %s", rec.Code, rec.Body.String())
	}

	expired := env
	expired.PublicOutputs.ExpiresAt = now - 1000
	body, _ = json.Marshal(map[string]interface{}{"zk_credential": expired})
	rec = httptest.NewRecorder()
	m.Protect(okHandler)(rec, httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected dev mode to reject an expired presentation with 401, got %d", rec.Code)
	}

	lowTier := env
	lowTier.PublicOutputs.Tier = 0
	body, _ = json.Marshal(map[string]interface{}{"zk_credential": lowTier})
	rec = httptest.NewRecorder()
	m.Protect(okHandler)(rec, httptest.NewRequest(http.MethodGet, "https://api.example.com/widgets", bytes.NewReader(body)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected dev mode to reject a below-minimum tier with 403, got %d", rec.Code)
	}
}

func TestMuxExposesRateLimitHeadersInCORS(t *testing.T) {
	cfg := testConfig(t, false)
	m, err := New(cfg, &fakeFacilitatorClient{}, &fakeVerifier{valid: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	mux := m.Mux("/widgets", okHandler)

	req := httptest.NewRequest(http.MethodOptions, "https://api.example.com/widgets", nil)
	req.Header.Set("Origin", "https://client.example")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	const want = "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset"
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != want {
		t.Errorf("expected Access-Control-Expose-Headers %q, got %q", want, got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://client.example" {
		t.Errorf("expected Access-Control-Allow-Origin to echo the request origin, got %q", got)
	}
}

var errTransport = &transportError{}

type transportError struct{}

func (e *transportError) Error() string { return "connection refused" }

func repeatHexChar(ch byte, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = ch
	}
	return string(out)
}
