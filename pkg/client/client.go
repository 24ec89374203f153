// Package client implements the credential-holding, proof-producing side
// of the protocol (§4.6): discovery of a protected resource's payment
// requirements, settlement against a facilitator to obtain a credential,
// and building authenticated requests that carry a zero-knowledge
// presentation instead of a repeated on-chain payment.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/x402zk/credential-gateway/pkg/clientstore"
	"github.com/x402zk/credential-gateway/pkg/credential"
	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/presentation"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
	"github.com/x402zk/credential-gateway/pkg/proofcache"
	"github.com/x402zk/credential-gateway/pkg/suite"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// ErrMaliciousFacilitator is returned by SettleAndObtainCredential when the
// facilitator's echoed commitment does not match the client's locally
// computed one (§4.6.1 step 5).
var ErrMaliciousFacilitator = fmt.Errorf("client: %s", wire.ErrMaliciousFacilitator)

// Client is the credential-holder/prover role. It is safe for concurrent
// use against distinct service ids; concurrent use against the same
// service id is serialized through the underlying Store's own locking.
type Client struct {
	httpClient *http.Client
	store      clientstore.Store
	selector   *presentation.Selector
	cache      *proofcache.Cache
	prover     proofabi.Prover
	logger     *log.Logger

	mu                 sync.Mutex
	facilitatorPubkeys map[string]curve.Point // keyed by facilitator URL
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default *http.Client (e.g. for custom
// timeouts or transports in tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger overrides the client's default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithProofCache overrides the default proof cache.
func WithProofCache(cache *proofcache.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// New constructs a Client. store, selector, and prover are required
// collaborators; prover may be nil if the caller only intends to use
// discovery and settlement (no AuthenticatedRequest calls).
func New(store clientstore.Store, selector *presentation.Selector, prover proofabi.Prover, opts ...Option) *Client {
	c := &Client{
		httpClient:         &http.Client{Timeout: 30 * time.Second},
		store:              store,
		selector:           selector,
		cache:              proofcache.New(proofcache.DefaultCapacity, 5*time.Minute),
		prover:             prover,
		logger:             log.New(log.Writer(), "[ZKCredClient] ", log.LstdFlags),
		facilitatorPubkeys: make(map[string]curve.Point),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheFacilitatorPubkey remembers the parsed facilitator public key for a
// given facilitator URL, per §4.6.1 ("Cache the parsed facilitator public
// key by URL").
func (c *Client) cacheFacilitatorPubkey(facilitatorURL string, pk curve.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facilitatorPubkeys[facilitatorURL] = pk
}

func (c *Client) lookupFacilitatorPubkey(facilitatorURL string) (curve.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pk, ok := c.facilitatorPubkeys[facilitatorURL]
	return pk, ok
}

func decodeJSON(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("client: decode response body: %w", err)
	}
	return nil
}

// credentialFromWire validates and decodes a wire.CredentialWire into the
// internal credential.Credential representation, rejecting an
// unregistered suite.
func credentialFromWire(w wire.CredentialWire, expectedServiceID field.Element) (credential.Credential, error) {
	if !suite.IsRegistered(w.Suite) {
		return credential.Credential{}, fmt.Errorf("client: %w: %q", suite.ErrUnsupportedSuite, w.Suite)
	}
	_, commitmentHex, err := suite.SplitPrefixed(w.Commitment)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("client: parse credential commitment: %w", err)
	}
	commitment, err := suite.DecodePoint(commitmentHex)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("client: decode credential commitment: %w", err)
	}
	_, sigHex, err := suite.SplitPrefixed(w.Signature)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("client: parse credential signature: %w", err)
	}
	sig, err := suite.DecodeSignature(sigHex)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("client: decode credential signature: %w", err)
	}

	return credential.Credential{
		Suite:          w.Suite,
		ServiceID:      expectedServiceID,
		Tier:           w.Tier,
		IdentityBudget: w.IdentityBudget,
		IssuedAt:       w.IssuedAt,
		ExpiresAt:      w.ExpiresAt,
		Commitment:     commitment,
		Signature:      sig,
		KeyID:          w.KeyID,
	}, nil
}
