package paybackend

import (
	"context"
	"math/big"
	"strconv"
	"sync"
)

// MockBackend accepts any well-formed payment without touching a chain. It
// exists so integration tests and local development can exercise the
// settle algorithm without an RPC endpoint; it is only wired in when
// ALLOW_MOCK_PAYMENTS is set.
type MockBackend struct {
	mu       sync.Mutex
	settled  map[string]bool // nonce -> settled, guards double-settlement
	txSerial int
}

// NewMockBackend constructs an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{settled: make(map[string]bool)}
}

// Verify accepts any payment with a positive value and a present nonce.
func (m *MockBackend) Verify(ctx context.Context, payment Payment, req Requirements) (VerifyResult, error) {
	value, ok := new(big.Int).SetString(payment.Value, 10)
	if !ok || value.Sign() <= 0 {
		return VerifyResult{Valid: false, InvalidReason: "invalid value"}, nil
	}
	if payment.Nonce == "" {
		return VerifyResult{Valid: false, InvalidReason: "missing nonce"}, nil
	}
	return VerifyResult{Valid: true}, nil
}

// Settle records the nonce as settled and converts value (assumed 6
// decimals, matching USDC) to cents. Re-settling the same nonce returns the
// prior success rather than erroring, mirroring the real backend's
// idempotence requirement.
func (m *MockBackend) Settle(ctx context.Context, payment Payment, req Requirements) (SettleResult, error) {
	value, ok := new(big.Int).SetString(payment.Value, 10)
	if !ok {
		return SettleResult{Success: false, ErrorReason: "invalid value"}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cents := new(big.Int).Div(value, big.NewInt(10_000)).Int64() // 10^(6-2)

	if m.settled[payment.Nonce] {
		return SettleResult{Success: true, Transaction: mockTxHash(payment.Nonce), AmountCents: cents}, nil
	}
	m.settled[payment.Nonce] = true
	m.txSerial++
	return SettleResult{Success: true, Transaction: mockTxHash(payment.Nonce), AmountCents: cents}, nil
}

func mockTxHash(nonce string) string {
	return "0xmock" + strconv.FormatUint(uint64(fnv32(nonce)), 16)
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
