package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/x402zk/credential-gateway/pkg/credential"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/pedersen"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// SettleAndObtainCredential drives §4.6.1: it samples fresh commitment
// secrets, POSTs a settlement request carrying paymentPayload to the
// facilitator, verifies the facilitator echoed back the same commitment it
// was given (rejecting with ErrMaliciousFacilitator otherwise), and
// persists the resulting StoredCredential under serviceID in the client's
// Store.
func (c *Client) SettleAndObtainCredential(
	ctx context.Context,
	serviceID string,
	facilitatorURL string,
	paymentPayload interface{},
	paymentRequirements wire.PaymentRequirements,
) (credential.StoredCredential, error) {
	nullifierSeed, err := field.Random()
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: sample nullifier seed: %w", err)
	}
	blindingFactor, err := field.Random()
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: sample blinding factor: %w", err)
	}

	commitment := pedersen.Commit(nullifierSeed, blindingFactor)
	suiteName := suite.Pedersen_Schnorr_Poseidon_UltraHonk
	commitmentWire := suite.Prefixed(suiteName, suite.EncodePoint(commitment))

	var settleReq wire.SettlementRequest
	settleReq.RequestID = uuid.NewString()
	settleReq.Payment = paymentPayload
	settleReq.PaymentRequirements = paymentRequirements
	settleReq.Extensions.ZKCredential.Commitment = commitmentWire

	reqBody, err := json.Marshal(settleReq)
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: marshal settlement request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, facilitatorURL, bytes.NewReader(reqBody))
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: build settlement request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: settlement request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: read settlement response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return credential.StoredCredential{}, fmt.Errorf("client: facilitator settlement failed with status %d: %s", resp.StatusCode, respBody)
	}

	var settleResp wire.SettlementResponse
	if err := decodeJSON(respBody, &settleResp); err != nil {
		return credential.StoredCredential{}, err
	}

	credWire := settleResp.Extensions.ZKCredential.Credential
	_, returnedHex, err := suite.SplitPrefixed(credWire.Commitment)
	if err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: parse returned commitment: %w", err)
	}
	_, expectedHex, _ := suite.SplitPrefixed(commitmentWire)
	if !strings.EqualFold(returnedHex, expectedHex) {
		return credential.StoredCredential{}, ErrMaliciousFacilitator
	}

	cred, err := credentialFromWire(credWire, field.StringToField(credWire.ServiceID))
	if err != nil {
		return credential.StoredCredential{}, err
	}

	facilitatorPubkey, _ := c.lookupFacilitatorPubkey(facilitatorURL)

	stored := credential.StoredCredential{
		Credential:        cred,
		NullifierSeed:     nullifierSeed,
		BlindingFactor:    blindingFactor,
		FacilitatorPubkey: facilitatorPubkey,
		PresentationCount: 0,
		ObtainedAt:        time.Now().Unix(),
	}

	if err := c.store.Set(ctx, serviceID, stored); err != nil {
		return credential.StoredCredential{}, fmt.Errorf("client: persist credential: %w", err)
	}

	return stored, nil
}
