// Package schnorr implements signing over the Grumpkin curve for facilitator
// credential signatures. The canonical verifier for a signature is the ZK
// circuit itself (§4.1); the in-language Verify here exists for
// spec-completeness and local sanity checks, not as the trust boundary.
package schnorr

import (
	"errors"
	"math/big"

	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/poseidon"
)

// ErrInvalidInput is returned for sk == 0 or sk >= group order.
var ErrInvalidInput = errors.New("schnorr: invalid input")

// Signature is (R, s): R a curve point, s a scalar reduced mod curve.Order.
type Signature struct {
	R curve.Point
	S *big.Int
}

// DerivePublicKey returns sk*G.
func DerivePublicKey(sk *big.Int) curve.Point {
	return curve.ScalarMul(curve.Base(), sk)
}

// Sign produces (R, s) over message m for private key sk.
//
//	k sampled uniformly in [1, n)
//	R = k*G
//	e = Poseidon([R.x, R.y, pk.x, pk.y, m])
//	s = (k + e*sk) mod n
func Sign(sk *big.Int, m field.Element) (Signature, error) {
	if sk.Sign() == 0 || sk.Cmp(curve.Order) >= 0 {
		return Signature{}, ErrInvalidInput
	}

	k, err := curve.RandomScalar()
	if err != nil {
		return Signature{}, err
	}
	R := curve.ScalarMul(curve.Base(), k)
	pk := DerivePublicKey(sk)

	e := poseidon.Hash(R.X, R.Y, pk.X, pk.Y, m)

	s := new(big.Int).Mul(e.BigInt(), sk)
	s.Add(s, k)
	s.Mod(s, curve.Order)

	return Signature{R: R, S: s}, nil
}

// Verify checks (R, s) against pubkey and message m. Implementations MAY
// omit this out-of-circuit verifier; when present it MUST fail for an
// off-curve or infinite public key.
func Verify(pubkey curve.Point, m field.Element, sig Signature) bool {
	if pubkey.Infinity || !pubkey.IsOnCurve() {
		return false
	}
	if sig.S == nil || sig.S.Sign() == 0 || sig.S.Cmp(curve.Order) >= 0 {
		return false
	}

	e := poseidon.Hash(sig.R.X, sig.R.Y, pubkey.X, pubkey.Y, m)

	// Check s*G == R + e*pubkey
	lhs := curve.ScalarMul(curve.Base(), sig.S)
	rhs := curve.Add(sig.R, curve.ScalarMul(pubkey, e.BigInt()))
	return lhs.Equal(rhs)
}
