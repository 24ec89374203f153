package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// DiscoveryResult is what Discover extracts from a protected resource's
// 402 challenge (§4.6.1).
type DiscoveryResult struct {
	PaymentRequirements wire.PaymentRequirements
	Suite               string
	FacilitatorPubkey   curve.Point
	FacilitatorURL      string
}

// Discover GETs url, requires a 402 response, and parses out the payment
// requirements and the zk_credential discovery extension.
func (c *Client) Discover(ctx context.Context, url string) (DiscoveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("client: build discovery request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("client: discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		return DiscoveryResult{}, fmt.Errorf("client: expected 402 from %s, got %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("client: read discovery response: %w", err)
	}

	var challenge wire.PaymentRequired
	if err := decodeJSON(body, &challenge); err != nil {
		return DiscoveryResult{}, err
	}
	if len(challenge.Accepts) == 0 {
		return DiscoveryResult{}, fmt.Errorf("client: 402 challenge carries no accepts[] entry")
	}

	discovery := challenge.Extensions.ZKCredential
	if len(discovery.CredentialSuites) == 0 {
		return DiscoveryResult{}, fmt.Errorf("client: 402 challenge carries no registered credential suites")
	}
	suiteName := discovery.CredentialSuites[0]
	if !suite.IsRegistered(suiteName) {
		return DiscoveryResult{}, fmt.Errorf("client: %w: %q", suite.ErrUnsupportedSuite, suiteName)
	}

	_, pubkeyHex, err := suite.SplitPrefixed(discovery.FacilitatorPubkey)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("client: parse facilitator pubkey: %w", err)
	}
	pubkey, err := suite.DecodePoint(pubkeyHex)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("client: decode facilitator pubkey: %w", err)
	}

	c.cacheFacilitatorPubkey(discovery.FacilitatorURL, pubkey)

	return DiscoveryResult{
		PaymentRequirements: challenge.Accepts[0],
		Suite:               suiteName,
		FacilitatorPubkey:   pubkey,
		FacilitatorURL:       discovery.FacilitatorURL,
	}, nil
}
