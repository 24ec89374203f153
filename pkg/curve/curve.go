// Package curve implements the Grumpkin curve used by the Pedersen/Schnorr
// suite: its base field is the BN254 scalar field (pkg/field), which is what
// lets a Grumpkin point be committed to and hashed entirely with BN254
// scalar-field arithmetic inside a BN254 circuit.
package curve

import (
	"crypto/rand"
	"fmt"
	"math/big"

	bn254fp "github.com/consensys/gnark-crypto/ecc/bn254/fp"

	"github.com/x402zk/credential-gateway/pkg/field"
)

// curveB is Grumpkin's short-Weierstrass coefficient: y^2 = x^3 + curveB.
var curveB = big.NewInt(-17)

// Order is the Grumpkin group order, i.e. BN254's base field modulus. Scalars
// used in Schnorr signing and scalar multiplication are reduced modulo Order,
// which is distinct from field.Modulus (the curve's coordinate field).
var Order = bn254fp.Modulus()

// Point is a Grumpkin affine point; Infinity marks the point at infinity.
// The zero value is the (0,0) pseudo-point, which IsOnCurve rejects.
type Point struct {
	X, Y     field.Element
	Infinity bool
}

// Inf returns the identity element of the group.
func Inf() Point { return Point{Infinity: true} }

// IsOnCurve reports whether p satisfies y^2 = x^3 - 17 mod p and is not the
// rejected (0,0) pseudo-point.
func (p Point) IsOnCurve() bool {
	if p.Infinity {
		return true
	}
	if p.X.IsZero() && p.Y.IsZero() {
		return false
	}
	lhs := field.Mul(p.Y, p.Y)
	x3 := field.Mul(field.Mul(p.X, p.X), p.X)
	rhs := field.Add(x3, field.Mod(curveB))
	return lhs.Equal(rhs)
}

// Equal reports whether p and q denote the same point.
func (p Point) Equal(q Point) bool {
	if p.Infinity || q.Infinity {
		return p.Infinity == q.Infinity
	}
	return p.X.Equal(q.X) && p.Y.Equal(q.Y)
}

// Add returns p+q using the standard short-Weierstrass addition law.
func Add(p, q Point) Point {
	if p.Infinity {
		return q
	}
	if q.Infinity {
		return p
	}
	if p.X.Equal(q.X) {
		if field.Add(p.Y, q.Y).IsZero() {
			return Inf()
		}
		return Double(p)
	}

	// lambda = (q.Y - p.Y) / (q.X - p.X)
	num := field.Sub(q.Y, p.Y)
	den := field.Sub(q.X, p.X)
	lambda := field.Mul(num, inverse(den))

	x3 := field.Sub(field.Sub(field.Mul(lambda, lambda), p.X), q.X)
	y3 := field.Sub(field.Mul(lambda, field.Sub(p.X, x3)), p.Y)
	return Point{X: x3, Y: y3}
}

// Double returns p+p.
func Double(p Point) Point {
	if p.Infinity {
		return p
	}
	if p.Y.IsZero() {
		return Inf()
	}
	// lambda = 3x^2 / 2y  (curve has a=0)
	three := field.FromUint64(3)
	two := field.FromUint64(2)
	num := field.Mul(three, field.Mul(p.X, p.X))
	den := field.Mul(two, p.Y)
	lambda := field.Mul(num, inverse(den))

	x3 := field.Sub(field.Mul(lambda, lambda), field.Add(p.X, p.X))
	y3 := field.Sub(field.Mul(lambda, field.Sub(p.X, x3)), p.Y)
	return Point{X: x3, Y: y3}
}

// ScalarMul returns scalar*p using double-and-add. scalar is first reduced
// modulo Order.
func ScalarMul(p Point, scalar *big.Int) Point {
	k := new(big.Int).Mod(scalar, Order)
	result := Inf()
	addend := p
	for i := 0; i < k.BitLen(); i++ {
		if k.Bit(i) == 1 {
			result = Add(result, addend)
		}
		addend = Double(addend)
	}
	return result
}

// RandomScalar samples k uniformly in [1, Order).
func RandomScalar() (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, Order)
		if err != nil {
			return nil, fmt.Errorf("curve: sample scalar: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// inverse returns the multiplicative inverse of a nonzero field element.
func inverse(a field.Element) field.Element {
	if a.IsZero() {
		panic("curve: inverse of zero")
	}
	exp := new(big.Int).Sub(field.Modulus, big.NewInt(2))
	inv := new(big.Int).Exp(a.BigInt(), exp, field.Modulus)
	return field.Mod(inv)
}

// sqrt computes a square root of a modulo field.Modulus using Tonelli-Shanks,
// returning ok=false if a is not a quadratic residue.
func sqrt(a *big.Int) (*big.Int, bool) {
	p := field.Modulus
	if a.Sign() == 0 {
		return big.NewInt(0), true
	}
	legendre := new(big.Int).Exp(a, new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1), p)
	if legendre.Cmp(big.NewInt(1)) != 0 {
		return nil, false
	}

	// p mod 4 == 3 fast path.
	if new(big.Int).And(p, big.NewInt(3)).Cmp(big.NewInt(3)) == 0 {
		exp := new(big.Int).Rsh(new(big.Int).Add(p, big.NewInt(1)), 2)
		return new(big.Int).Exp(a, exp, p), true
	}

	// General Tonelli-Shanks.
	q := new(big.Int).Sub(p, big.NewInt(1))
	s := 0
	for q.Bit(0) == 0 {
		q.Rsh(q, 1)
		s++
	}
	var z *big.Int
	for c := big.NewInt(2); ; c.Add(c, big.NewInt(1)) {
		if new(big.Int).Exp(c, new(big.Int).Rsh(new(big.Int).Sub(p, big.NewInt(1)), 1), p).Cmp(new(big.Int).Sub(p, big.NewInt(1))) == 0 {
			z = new(big.Int).Set(c)
			break
		}
	}
	m := s
	c := new(big.Int).Exp(z, q, p)
	t := new(big.Int).Exp(a, q, p)
	rExp := new(big.Int).Rsh(new(big.Int).Add(q, big.NewInt(1)), 1)
	r := new(big.Int).Exp(a, rExp, p)

	for t.Cmp(big.NewInt(1)) != 0 {
		i, tt := 0, new(big.Int).Set(t)
		for tt.Cmp(big.NewInt(1)) != 0 {
			tt.Mul(tt, tt)
			tt.Mod(tt, p)
			i++
		}
		b := new(big.Int).Exp(c, new(big.Int).Lsh(big.NewInt(1), uint(m-i-1)), p)
		m = i
		c = new(big.Int).Exp(b, big.NewInt(2), p)
		t.Mul(t, c)
		t.Mod(t, p)
		r.Mul(r, b)
		r.Mod(r, p)
	}
	return r, true
}

// hashToCurve derives a curve point deterministically from a domain label
// using try-and-increment: hash the label and a counter into a candidate
// x-coordinate with field.StringToField, then attempt to recover y.
func hashToCurve(label string) Point {
	for ctr := uint64(0); ; ctr++ {
		x := field.StringToField(fmt.Sprintf("grumpkin-generator:%s:%d", label, ctr))
		rhs := field.Add(field.Mul(field.Mul(x, x), x), field.Mod(curveB))
		y, ok := sqrt(rhs.BigInt())
		if !ok {
			continue
		}
		p := Point{X: x, Y: field.Mod(y)}
		if p.IsOnCurve() && !(p.X.IsZero() && p.Y.IsZero()) {
			return p
		}
	}
}
