// Package suite names the single registered cryptographic suite for
// v0.2.0 and the wire encodings shared by every suite-scoped value
// (commitments, public keys, signatures).
package suite

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
)

// Pedersen_Schnorr_Poseidon_UltraHonk is the only suite registered in
// v0.2.0.
const Pedersen_Schnorr_Poseidon_UltraHonk = "pedersen-schnorr-poseidon-ultrahonk"

// Registered lists every suite this implementation accepts.
var Registered = []string{Pedersen_Schnorr_Poseidon_UltraHonk}

// IsRegistered reports whether name is a known suite.
func IsRegistered(name string) bool {
	for _, s := range Registered {
		if s == name {
			return true
		}
	}
	return false
}

// EncodePoint returns the uncompressed point encoding "0x04" + X(64 hex) +
// Y(64 hex), WITHOUT the suite prefix.
func EncodePoint(p curve.Point) string {
	x := p.X.Bytes32()
	y := p.Y.Bytes32()
	return "0x04" + hex.EncodeToString(x[:]) + hex.EncodeToString(y[:])
}

// DecodePoint parses the "0x04"+X+Y encoding produced by EncodePoint.
func DecodePoint(s string) (curve.Point, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s) != 2+64+64 {
		return curve.Point{}, fmt.Errorf("suite: malformed point encoding (want %d hex chars, got %d)", 2+64+64, len(s))
	}
	if s[:2] != "04" {
		return curve.Point{}, fmt.Errorf("suite: point must be uncompressed (0x04 prefix)")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return curve.Point{}, fmt.Errorf("suite: decode point hex: %w", err)
	}
	x := field.Mod(new(big.Int).SetBytes(raw[1:33]))
	y := field.Mod(new(big.Int).SetBytes(raw[33:65]))
	p := curve.Point{X: x, Y: y}
	if !p.IsOnCurve() {
		return curve.Point{}, fmt.Errorf("suite: point is not on-curve")
	}
	return p, nil
}

// EncodeSignature returns "0x" + Rx(64) + Ry(64) + s(64), WITHOUT the suite
// prefix. The scalar s is encoded as a single 32-byte big-endian value here;
// the prover ABI splits it into 128-bit low/high halves separately (see
// pkg/proofabi).
func EncodeSignature(sig schnorr.Signature) string {
	rx := sig.R.X.Bytes32()
	ry := sig.R.Y.Bytes32()
	var sb [32]byte
	sig.S.FillBytes(sb[:])
	return "0x" + hex.EncodeToString(rx[:]) + hex.EncodeToString(ry[:]) + hex.EncodeToString(sb[:])
}

// DecodeSignature parses the encoding produced by EncodeSignature.
func DecodeSignature(s string) (schnorr.Signature, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s) != 192 {
		return schnorr.Signature{}, fmt.Errorf("suite: malformed signature encoding (want 192 hex chars, got %d)", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return schnorr.Signature{}, fmt.Errorf("suite: decode signature hex: %w", err)
	}
	rx := field.Mod(new(big.Int).SetBytes(raw[0:32]))
	ry := field.Mod(new(big.Int).SetBytes(raw[32:64]))
	sVal := new(big.Int).SetBytes(raw[64:96])
	return schnorr.Signature{R: curve.Point{X: rx, Y: ry}, S: sVal}, nil
}

// Prefixed returns "<suite>:<hexValue>".
func Prefixed(name, hexValue string) string {
	return name + ":" + hexValue
}

// SplitPrefixed splits a suite-prefixed value, rejecting an unregistered or
// missing suite.
func SplitPrefixed(s string) (suiteName, hexValue string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("suite: value is not suite-prefixed")
	}
	if !IsRegistered(parts[0]) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedSuite, parts[0])
	}
	return parts[0], parts[1], nil
}

// ErrUnsupportedSuite is returned when a wire value names a suite this
// implementation does not register.
var ErrUnsupportedSuite = fmt.Errorf("unsupported suite")
