// Command gateway runs the resource-server middleware in front of a
// placeholder protected handler, demonstrating the three-branch dispatch:
// 402 discovery challenge, payment mediation, and credential verification.
package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/x402zk/credential-gateway/pkg/config"
	"github.com/x402zk/credential-gateway/pkg/gateway"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
)

func main() {
	logger := log.New(log.Writer(), "[Gateway] ", log.LstdFlags)

	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	facilitatorClient := gateway.NewHTTPFacilitatorClient(cfg.FacilitatorURL)

	var verifier proofabi.Verifier
	if !cfg.SkipProofVerification {
		logger.Fatalf("config: no production proofabi.Verifier backend is wired into this build; set SKIP_PROOF_VERIFICATION=true for local development or link a Verifier implementation")
	}

	middleware, err := gateway.New(cfg, facilitatorClient, verifier, gateway.WithLogger(logger))
	if err != nil {
		logger.Fatalf("gateway: %v", err)
	}
	defer middleware.Close()

	mux := middleware.Mux("/", placeholderResource)

	logger.Printf("listening on %s (service_id=%s, min_tier=%d)", cfg.ListenAddr, cfg.ServiceID, cfg.MinTier)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		logger.Fatalf("listen: %v", err)
	}
}

func placeholderResource(w http.ResponseWriter, r *http.Request) {
	tier, _ := gateway.TierFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "tier": tier})
}
