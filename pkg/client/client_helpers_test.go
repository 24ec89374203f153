package client

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// newChallengeHandler serves a fixed 402 discovery challenge mirroring the
// gateway's discovery branch (§4.4.1), pointed at a given facilitator.
func newChallengeHandler(t *testing.T, info wire.FacilitatorInfo, facilitatorSettleURL string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var challenge wire.PaymentRequired
		challenge.X402Version = 2
		challenge.Accepts = []wire.PaymentRequirements{{
			Scheme:  "exact",
			Network: "eip155:8453",
			Asset:   "0x3333333333333333333333333333333333333333",
			Amount:  "1000000",
			PayTo:   "0x2222222222222222222222222222222222222222",
			Resource: wire.ResourceInfo{URL: "https://api.example.com" + r.URL.Path},
		}}
		challenge.Extensions.ZKCredential = wire.ZKCredentialDiscovery{
			Version:           wire.SuiteVersion,
			CredentialSuites:  []string{suite.Pedersen_Schnorr_Poseidon_UltraHonk},
			FacilitatorPubkey: info.FacilitatorPubkey,
			FacilitatorURL:    facilitatorSettleURL,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(challenge)
	}
}

// callGetInfo fetches GET /info from a running facilitator server.
func callGetInfo(baseURL string) (wire.FacilitatorInfo, error) {
	resp, err := http.Get(baseURL + "/info")
	if err != nil {
		return wire.FacilitatorInfo{}, err
	}
	defer resp.Body.Close()
	var info wire.FacilitatorInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return wire.FacilitatorInfo{}, err
	}
	return info, nil
}
