package config

import "fmt"

// FacilitatorConfig configures the facilitator/issuer (pkg/facilitator).
type FacilitatorConfig struct {
	ServiceID         string
	SecretKeyHex      string // hex-encoded Schnorr scalar; see pkg/facilitator/keymanager.go
	KeyID             string
	TiersFile         string // optional YAML tier table, see pkg/facilitator/tiers.go
	AllowMockPayments bool

	// EVM payment configuration (pkg/paybackend.Eip3009Backend).
	EthereumRPCURL    string
	EthChainID        int64
	USDCContractAddr  string
	SettlementSignerKeyHex string

	ListenAddr string
}

// LoadFacilitatorConfig reads facilitator configuration from the
// environment.
func LoadFacilitatorConfig() (*FacilitatorConfig, error) {
	cfg := &FacilitatorConfig{
		ServiceID:         getEnv("FACILITATOR_SERVICE_ID", ""),
		SecretKeyHex:      getEnv("FACILITATOR_SECRET_KEY", ""),
		KeyID:             getEnv("FACILITATOR_KID", "default"),
		TiersFile:         getEnv("FACILITATOR_TIERS_FILE", ""),
		AllowMockPayments: getEnvBool("ALLOW_MOCK_PAYMENTS", false),

		EthereumRPCURL:         getEnv("ETHEREUM_URL", ""),
		EthChainID:             getEnvInt64("ETH_CHAIN_ID", 8453),
		USDCContractAddr:       getEnv("USDC_CONTRACT_ADDRESS", ""),
		SettlementSignerKeyHex: getEnv("SETTLEMENT_SIGNER_KEY", ""),

		ListenAddr: getEnv("FACILITATOR_LISTEN_ADDR", "0.0.0.0:8403"),
	}
	return cfg, cfg.Validate()
}

// Validate fails closed on missing required secrets, mirroring the
// teacher's "no weak defaults" security configuration policy.
func (c *FacilitatorConfig) Validate() error {
	if c.ServiceID == "" {
		return fmt.Errorf("config: FACILITATOR_SERVICE_ID is required")
	}
	if c.SecretKeyHex == "" {
		return fmt.Errorf("config: FACILITATOR_SECRET_KEY is required")
	}
	if !c.AllowMockPayments {
		if c.EthereumRPCURL == "" || c.USDCContractAddr == "" {
			return fmt.Errorf("config: ETHEREUM_URL and USDC_CONTRACT_ADDRESS are required unless ALLOW_MOCK_PAYMENTS=true")
		}
	}
	return nil
}
