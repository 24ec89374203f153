package config

import "fmt"

// GatewayConfig configures the resource-server middleware (pkg/gateway).
type GatewayConfig struct {
	ServiceID             string
	FacilitatorPubkey     string
	FacilitatorURL        string
	MinTier               int
	SkipProofVerification bool

	RateLimitMaxRequestsPerToken int
	RateLimitWindowSeconds       int

	PaymentAmount    string
	PaymentAsset     string
	PaymentRecipient string
	Network          string // CAIP-2
	ResourceDescription string

	ListenAddr  string
	CORSOrigins []string
}

// LoadGatewayConfig reads gateway configuration from the environment.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		ServiceID:             getEnv("SERVICE_ID", ""),
		FacilitatorPubkey:     getEnv("FACILITATOR_PUBKEY", ""),
		FacilitatorURL:        getEnv("FACILITATOR_URL", ""),
		MinTier:               getEnvInt("MIN_TIER", 0),
		SkipProofVerification: getEnvBool("SKIP_PROOF_VERIFICATION", false),

		RateLimitMaxRequestsPerToken: getEnvInt("RATE_LIMIT_MAX_REQUESTS_PER_TOKEN", 100),
		RateLimitWindowSeconds:       getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),

		PaymentAmount:       getEnv("PAYMENT_AMOUNT", ""),
		PaymentAsset:        getEnv("PAYMENT_ASSET", ""),
		PaymentRecipient:    getEnv("PAYMENT_RECIPIENT", ""),
		Network:             getEnv("NETWORK", "eip155:8453"),
		ResourceDescription: getEnv("RESOURCE_DESCRIPTION", ""),

		ListenAddr:  getEnv("GATEWAY_LISTEN_ADDR", "0.0.0.0:8402"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),
	}
	return cfg, cfg.Validate()
}

// Validate fails closed: the facilitator's URL is always required, and its
// public key is required unless verification is skipped, matching the teacher's "fatal at
// startup" policy for missing configuration (§7 Propagation policy).
func (c *GatewayConfig) Validate() error {
	if c.ServiceID == "" {
		return fmt.Errorf("config: SERVICE_ID is required")
	}
	if c.FacilitatorURL == "" {
		return fmt.Errorf("config: FACILITATOR_URL is required")
	}
	if !c.SkipProofVerification && c.FacilitatorPubkey == "" {
		return fmt.Errorf("config: FACILITATOR_PUBKEY is required unless SKIP_PROOF_VERIFICATION=true")
	}
	if c.RateLimitMaxRequestsPerToken <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_MAX_REQUESTS_PER_TOKEN must be positive")
	}
	if c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	return nil
}
