// Command zkcred-keygen generates a facilitator Schnorr keypair: a random
// secret scalar and its derived public key, printed suite-prefixed and
// ready to drop into FACILITATOR_SECRET_KEY / FacilitatorPubkey config.
package main

import (
	"fmt"
	"os"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
	"github.com/x402zk/credential-gateway/pkg/suite"
)

func main() {
	sk, err := curve.RandomScalar()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	pubkey := schnorr.DerivePublicKey(sk)

	fmt.Printf("FACILITATOR_SECRET_KEY=0x%x\n", sk)
	fmt.Printf("FACILITATOR_PUBKEY=%s\n", suite.Prefixed(suite.Pedersen_Schnorr_Poseidon_UltraHonk, suite.EncodePoint(pubkey)))
}
