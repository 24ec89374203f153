// Command facilitator runs the credential issuer's HTTP surface: /health,
// /info, /.well-known/zk-credential-keys, and /settle.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/x402zk/credential-gateway/pkg/config"
	"github.com/x402zk/credential-gateway/pkg/facilitator"
	"github.com/x402zk/credential-gateway/pkg/paybackend"
)

func main() {
	logger := log.New(log.Writer(), "[Facilitator] ", log.LstdFlags)

	cfg, err := config.LoadFacilitatorConfig()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	keys, err := facilitator.NewKeyManager(cfg.SecretKeyHex)
	if err != nil {
		logger.Fatalf("key manager: %v", err)
	}

	tiers := facilitator.DefaultTiers()
	if cfg.TiersFile != "" {
		tiers, err = facilitator.LoadTiersFromFile(cfg.TiersFile)
		if err != nil {
			logger.Fatalf("load tiers: %v", err)
		}
	}

	backend, err := newPaymentBackend(cfg)
	if err != nil {
		logger.Fatalf("payment backend: %v", err)
	}

	issuer := facilitator.NewIssuer(cfg.ServiceID, cfg.KeyID, keys, backend, tiers)
	handlers := facilitator.NewHandlers(issuer, logger)

	logger.Printf("listening on %s (service_id=%s, tiers=%d)", cfg.ListenAddr, cfg.ServiceID, len(tiers))
	if err := http.ListenAndServe(cfg.ListenAddr, handlers.Mux()); err != nil {
		logger.Fatalf("listen: %v", err)
	}
}

func newPaymentBackend(cfg *config.FacilitatorConfig) (paybackend.Backend, error) {
	if cfg.AllowMockPayments {
		return paybackend.NewMockBackend(), nil
	}
	backend, err := paybackend.NewEip3009Backend(cfg.EthereumRPCURL, cfg.EthChainID, cfg.SettlementSignerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("construct eip3009 backend: %w", err)
	}
	return backend, nil
}
