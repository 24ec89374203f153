package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/origin"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// clockDriftTolerance bounds how far a presentation's current_time may
// diverge from the gateway's own clock before it is rejected (§4.4.3).
const clockDriftTolerance = 60 * time.Second

// expiryGrace extends a credential's usable lifetime past its on-chain
// expires_at by the same margin, absorbing clock skew between facilitator
// and resource server (§4.4.3 step 6).
const expiryGrace = 60

// writeDiscoveryChallenge serves the 402 challenge (§4.4.1) advertising the
// single payment option this gateway accepts and the zk-credential
// extension a client can use instead of paying again.
func (m *Middleware) writeDiscoveryChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := wire.PaymentRequired{
		X402Version: 2,
		Accepts: []wire.PaymentRequirements{{
			Scheme:            "exact",
			Network:           m.cfg.Network,
			Asset:             m.cfg.PaymentAsset,
			Amount:            m.cfg.PaymentAmount,
			PayTo:             m.cfg.PaymentRecipient,
			MaxTimeoutSeconds: 300,
			Resource:          wire.ResourceInfo{URL: requestURL(r)},
			Extra:             map[string]string{"description": m.cfg.ResourceDescription},
		}},
	}
	challenge.Extensions.ZKCredential = wire.ZKCredentialDiscovery{
		Version:           wire.SuiteVersion,
		CredentialSuites:  suite.Registered,
		FacilitatorPubkey: m.cfg.FacilitatorPubkey,
		FacilitatorURL:    m.cfg.FacilitatorURL,
	}
	writeJSON(w, http.StatusPaymentRequired, challenge)
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// handlePaymentMediation drives §4.4.2: forward the client's payment,
// plus its commitment, to the facilitator's /settle endpoint and relay
// either the credential it issues or a mapped failure.
func (m *Middleware) handlePaymentMediation(w http.ResponseWriter, r *http.Request, body requestBody) {
	if body.commitment() == "" {
		writeError(w, wire.ErrCredentialMissing, "payment present without extensions.zk_credential.commitment")
		return
	}

	var settleReq wire.SettlementRequest
	settleReq.Payment = body.raw.Payment
	settleReq.PaymentRequirements = wire.PaymentRequirements{
		Scheme:  "exact",
		Network: m.cfg.Network,
		Asset:   m.cfg.PaymentAsset,
		Amount:  m.cfg.PaymentAmount,
		PayTo:   m.cfg.PaymentRecipient,
	}
	settleReq.Extensions.ZKCredential.Commitment = body.commitment()

	reqBytes, err := json.Marshal(settleReq)
	if err != nil {
		writeError(w, wire.ErrPaymentProcessingError, "failed to build settlement request")
		return
	}

	status, respBody, err := m.facilitator.Settle(r.Context(), reqBytes)
	if err != nil {
		m.logger.Printf("facilitator settle transport error: %v", err)
		writeError(w, wire.ErrFacilitatorUnavailable, "facilitator is unreachable")
		return
	}

	switch {
	case status == http.StatusOK:
		var settleResp wire.SettlementResponse
		dec := json.NewDecoder(bytes.NewReader(respBody))
		if err := dec.Decode(&settleResp); err != nil {
			m.logger.Printf("facilitator returned malformed settlement response: %v", err)
			writeError(w, wire.ErrFacilitatorError, "facilitator returned a malformed response")
			return
		}
		var success wire.PaymentMediationSuccess
		success.X402.PaymentResponse = settleResp.PaymentReceipt
		success.ZKCredential.Credential = settleResp.Extensions.ZKCredential.Credential
		writeJSON(w, http.StatusOK, success)
	case status >= 400 && status < 500:
		writeError(w, wire.ErrPaymentRejected, "facilitator rejected the payment")
	case status >= 500:
		writeError(w, wire.ErrFacilitatorUnavailable, "facilitator is unavailable")
	default:
		writeError(w, wire.ErrFacilitatorError, fmt.Sprintf("facilitator returned unexpected status %d", status))
	}
}

// handleCredentialVerification drives §4.4.3: the 8-step check order ending
// in a rate-limit decision, then either invokes handler or fails closed.
func (m *Middleware) handleCredentialVerification(w http.ResponseWriter, r *http.Request, body requestBody, handler http.HandlerFunc) {
	env := body.raw.ZKCredential
	if env == nil {
		writeError(w, wire.ErrCredentialMissing, "missing zk_credential presentation")
		return
	}

	// Step 1: suite must be registered.
	if !suite.IsRegistered(env.Suite) {
		writeError(w, wire.ErrUnsupportedSuite, fmt.Sprintf("unsupported suite %q", env.Suite))
		return
	}

	// Step 2: the proof must be non-empty.
	proofBytes, err := base64.StdEncoding.DecodeString(env.Proof)
	if err != nil || len(proofBytes) == 0 {
		writeError(w, wire.ErrInvalidProof, "proof is missing or malformed")
		return
	}

	now := m.now()

	// Step 3: clock drift. current_time is optional on the wire; when
	// absent the gateway trusts its own clock for the public-input slot.
	currentTime := now.Unix()
	if env.PublicOutputs.CurrentTime != nil {
		currentTime = *env.PublicOutputs.CurrentTime
		drift := now.Unix() - currentTime
		if drift < 0 {
			drift = -drift
		}
		if time.Duration(drift)*time.Second > clockDriftTolerance {
			writeError(w, wire.ErrInvalidProof, "presentation clock drift exceeds tolerance")
			return
		}
	}

	// Step 4: derive origin_id from this request's canonical URL.
	originID, err := origin.ID(requestURL(r))
	if err != nil {
		writeError(w, wire.ErrInvalidProof, "failed to derive origin id")
		return
	}

	originTokenElem, err := field.FromHex(env.PublicOutputs.OriginToken)
	if err != nil {
		writeError(w, wire.ErrInvalidProof, "malformed origin_token")
		return
	}

	// Step 5: cryptographic verification, unless explicitly skipped for
	// local development.
	if !m.cfg.SkipProofVerification {
		publicInputs := proofabi.PublicInputs{
			ServiceID:   field.StringToField(m.cfg.ServiceID),
			CurrentTime: currentTime,
			OriginID:    originID,
			PubkeyX:     m.facPubkey.X,
			PubkeyY:     m.facPubkey.Y,
		}
		publicOutputs := proofabi.PublicOutputs{
			OriginToken: originTokenElem,
			Tier:        int64(env.PublicOutputs.Tier),
			ExpiresAt:   env.PublicOutputs.ExpiresAt,
		}
		io := proofabi.ConcatenatedIO(publicInputs, publicOutputs)
		result, err := m.verifier.Verify(r.Context(), proofabi.VerifyRequest{Proof: proofBytes, PublicInputs: io})
		if err != nil {
			m.logger.Printf("proof verification error: %v", err)
			writeError(w, wire.ErrInvalidProof, "proof verification failed")
			return
		}
		if !result.Valid {
			writeError(w, wire.ErrInvalidProof, "proof is invalid")
			return
		}
	}

	// Step 6: expiry, with grace for clock skew.
	if now.Unix() >= env.PublicOutputs.ExpiresAt+expiryGrace {
		writeError(w, wire.ErrCredentialExpired, "credential has expired")
		return
	}

	// Step 7: minimum tier.
	if env.PublicOutputs.Tier < m.cfg.MinTier {
		writeError(w, wire.ErrTierInsufficient, fmt.Sprintf("tier %d is below the required minimum %d", env.PublicOutputs.Tier, m.cfg.MinTier))
		return
	}

	// Step 8: rate limit, keyed by origin_token so unlinkable presentations
	// each get their own budget.
	result := m.limiter.Check(env.PublicOutputs.OriginToken)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.cfg.RateLimitMaxRequestsPerToken))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		writeError(w, wire.ErrRateLimited, "rate limit exceeded for this origin token")
		return
	}

	ctx := context.WithValue(r.Context(), tierContextKey, env.PublicOutputs.Tier)
	ctx = context.WithValue(ctx, originTokenContextKey, env.PublicOutputs.OriginToken)
	handler(w, r.WithContext(ctx))
}
