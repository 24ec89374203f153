package facilitator

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
)

// KeyManager derives and caches the facilitator's Schnorr public key from
// its configured secret key. Derivation is single-flight: concurrent first
// callers share one in-flight computation (§5 "Single-flight
// initialization"), implemented as a mutex-guarded lazy cell. Derivation
// cannot fail, so once it completes the result is cached for good.
type KeyManager struct {
	mu         sync.Mutex
	secretKey  *big.Int
	pubkey     curve.Point
	derived    bool
	inFlight   chan struct{}
}

// NewKeyManager parses the hex-encoded Schnorr secret scalar.
func NewKeyManager(secretKeyHex string) (*KeyManager, error) {
	hexStr := strings.TrimPrefix(secretKeyHex, "0x")
	sk, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, fmt.Errorf("facilitator: invalid secret key hex")
	}
	if sk.Sign() <= 0 || sk.Cmp(curve.Order) >= 0 {
		return nil, fmt.Errorf("facilitator: secret key out of range")
	}
	return &KeyManager{secretKey: sk}, nil
}

// PublicKey returns the cached derived public key, computing it on first
// call. Concurrent first calls block on the same derivation instead of
// racing to compute it independently.
func (k *KeyManager) PublicKey() (curve.Point, error) {
	k.mu.Lock()
	if k.derived {
		pk := k.pubkey
		k.mu.Unlock()
		return pk, nil
	}
	if k.inFlight != nil {
		ch := k.inFlight
		k.mu.Unlock()
		<-ch
		return k.PublicKey()
	}
	ch := make(chan struct{})
	k.inFlight = ch
	k.mu.Unlock()

	pk := schnorr.DerivePublicKey(k.secretKey)

	k.mu.Lock()
	k.pubkey = pk
	k.derived = true
	k.inFlight = nil
	k.mu.Unlock()
	close(ch)

	return pk, nil
}

// SecretKey returns the configured scalar for signing operations.
func (k *KeyManager) SecretKey() *big.Int {
	return k.secretKey
}
