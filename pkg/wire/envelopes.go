package wire

// SuiteVersion is the credential extension's wire version.
const SuiteVersion = "0.2.0"

// PaymentRequirements mirrors x402 v2's accepts[] entry.
type PaymentRequirements struct {
	Scheme            string            `json:"scheme"`
	Network            string            `json:"network"` // CAIP-2
	Asset              string            `json:"asset"`
	Amount             string            `json:"amount"`
	PayTo              string            `json:"payTo"`
	MaxTimeoutSeconds  int               `json:"maxTimeoutSeconds"`
	Resource           ResourceInfo      `json:"resource"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// ResourceInfo echoes the protected resource's absolute URL back to the
// client.
type ResourceInfo struct {
	URL string `json:"url"`
}

// ZKCredentialDiscovery is the 402 challenge's extension block.
type ZKCredentialDiscovery struct {
	Version          string   `json:"version"`
	CredentialSuites []string `json:"credential_suites"`
	FacilitatorPubkey string  `json:"facilitator_pubkey"`
	FacilitatorURL    string  `json:"facilitator_url"`
}

// PaymentRequired is the full body of a 402 response.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Extensions  struct {
		ZKCredential ZKCredentialDiscovery `json:"zk_credential"`
	} `json:"extensions"`
}

// CredentialWire is the facilitator-issued credential as it appears on the
// wire (§3 "Credential (on wire)").
type CredentialWire struct {
	Suite           string `json:"suite"`
	ServiceID       string `json:"service_id"`
	Tier            int    `json:"tier"`
	IdentityBudget  int    `json:"identity_budget"`
	IssuedAt        int64  `json:"issued_at"`
	ExpiresAt       int64  `json:"expires_at"`
	Commitment      string `json:"commitment"`
	Signature       string `json:"signature"`
	KeyID           string `json:"kid,omitempty"`
}

// SettlementCommitment is the client-supplied commitment extension on a
// settlement request.
type SettlementCommitment struct {
	Commitment string `json:"commitment"`
}

// SettlementRequest is POSTed by the gateway (on behalf of a client) to the
// facilitator's /settle endpoint.
type SettlementRequest struct {
	RequestID           string                `json:"request_id,omitempty"`
	Payment             interface{}           `json:"payment"`
	PaymentRequirements PaymentRequirements   `json:"paymentRequirements"`
	Extensions          struct {
		ZKCredential SettlementCommitment `json:"zk_credential"`
	} `json:"extensions"`
}

// PaymentReceipt is the facilitator's settlement receipt.
type PaymentReceipt struct {
	Status     string `json:"status"`
	TxHash     string `json:"tx_hash"`
	AmountUSDC string `json:"amount_usdc"`
}

// SettlementResponse is the facilitator's response to /settle.
type SettlementResponse struct {
	PaymentReceipt PaymentReceipt `json:"payment_receipt"`
	Extensions     struct {
		ZKCredential struct {
			Credential CredentialWire `json:"credential"`
		} `json:"zk_credential"`
	} `json:"extensions"`
}

// PaymentMediationSuccess is the gateway's 200 response on the
// payment-mediation branch.
type PaymentMediationSuccess struct {
	X402 struct {
		PaymentResponse PaymentReceipt `json:"payment_response"`
	} `json:"x402"`
	ZKCredential struct {
		Credential CredentialWire `json:"credential"`
	} `json:"zk_credential"`
}

// PublicOutputsWire is the credential-presentation envelope's
// public_outputs block.
type PublicOutputsWire struct {
	OriginToken string `json:"origin_token"`
	Tier        int    `json:"tier"`
	ExpiresAt   int64  `json:"expires_at"`
	CurrentTime *int64 `json:"current_time,omitempty"`
}

// PresentationEnvelope is body.zk_credential on a credential-presenting
// request.
type PresentationEnvelope struct {
	Version       string            `json:"version"`
	Suite         string            `json:"suite"`
	KeyID         string            `json:"kid,omitempty"`
	Proof         string            `json:"proof"` // base64
	PublicOutputs PublicOutputsWire `json:"public_outputs"`
}

// RequestBody is the strict, tagged-variant decoding of a protected
// request's body: at most one of Payment or ZKCredential is present, per
// the middleware's three-branch dispatch (§4.4).
type RequestBody struct {
	Payment      interface{}            `json:"payment,omitempty"`
	Extensions   *RequestExtensions     `json:"extensions,omitempty"`
	ZKCredential *PresentationEnvelope  `json:"zk_credential,omitempty"`
}

// RequestExtensions carries the commitment on a payment-bearing request.
type RequestExtensions struct {
	ZKCredential *SettlementCommitment `json:"zk_credential,omitempty"`
}

// JWK is one entry of the facilitator's JWKS-style key listing.
type JWK struct {
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKSResponse is the body of GET /.well-known/zk-credential-keys.
type JWKSResponse struct {
	Keys []JWK `json:"keys"`
}

// TierInfo describes one facilitator access tier.
type TierInfo struct {
	Tier            int    `json:"tier"`
	PriceUSDC       string `json:"price_usdc"`
	IdentityLimit   int    `json:"identity_limit"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// FacilitatorInfo is the body of GET /info.
type FacilitatorInfo struct {
	ServiceID        string     `json:"service_id"`
	FacilitatorPubkey string    `json:"facilitator_pubkey"`
	CredentialSuites []string   `json:"credential_suites"`
	Tiers            []TierInfo `json:"tiers"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	TotalTokens   int64   `json:"total_tokens"`
	TotalRequests int64   `json:"total_requests"`
	UptimeSeconds float64 `json:"uptime,omitempty"`
}
