package client

import (
	"math/big"
	"testing"
)

func TestSplitScalarRoundTrips(t *testing.T) {
	s, ok := new(big.Int).SetString("123456789012345678901234567890123456789", 10)
	if !ok {
		t.Fatal("failed to construct test scalar")
	}
	low := splitScalarLow(s)
	high := splitScalarHigh(s)

	reconstructed := new(big.Int).Lsh(high.BigInt(), 128)
	reconstructed.Add(reconstructed, low.BigInt())
	if reconstructed.Cmp(s) != 0 {
		t.Errorf("low/high split does not reconstruct the original scalar: got %s, want %s", reconstructed, s)
	}
}

func TestSplitScalarZero(t *testing.T) {
	low := splitScalarLow(big.NewInt(0))
	high := splitScalarHigh(big.NewInt(0))
	if !low.IsZero() || !high.IsZero() {
		t.Error("expected both halves of zero to be zero")
	}
}
