// Package presentation implements the client's presentation-index
// strategies (§4.6.2): the policy that picks identity_index ∈
// [0, identity_budget) for a given proof request.
package presentation

import (
	"math/big"
	"sync"

	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/poseidon"
)

// Strategy names the closed set of presentation-index policies.
type Strategy string

const (
	MaxPrivacy     Strategy = "max-privacy"
	MaxPerformance Strategy = "max-performance"
	PerOrigin      Strategy = "per-origin"
	TimeBucketed   Strategy = "time-bucketed"
)

// IsValid reports whether s is one of the four registered strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case MaxPrivacy, MaxPerformance, PerOrigin, TimeBucketed:
		return true
	}
	return false
}

// FreshIndexFunc returns the next never-before-used identity_index for a
// credential, sourced from the persisted presentation_count (spec: "Fresh
// index = presentation_count++" — the persisted counter IS the index, not
// an independent in-memory one). Callers pass a closure over their
// clientstore.Store.IncrementPresentationCount so a fresh index is only
// consumed, and the store only incremented, when a strategy actually needs
// one this call.
type FreshIndexFunc func() (int, error)

// Selector picks an identity_index for a (service, origin) pair according
// to a configured Strategy. PerOrigin needs to remember which index it
// handed out for the first sighting of each (service_id, origin_id) pair;
// TimeBucketed needs no state at all since its bucket is a pure function.
// Selector owns a mutex-guarded map rather than being a stateless function,
// but — unlike identity_index allocation itself — this memoization never
// needs to survive a process restart: a restarted process simply
// rememoizes on first sighting, consuming one more fresh index from the
// persisted counter, exactly as if it were a genuinely new origin.
type Selector struct {
	mu             sync.Mutex
	strategy       Strategy
	timeBucketSecs int64
	perOriginIndex map[string]int // "service_id_hex|origin_id_hex" -> memoized index
}

// NewSelector constructs a Selector for the given strategy.
// timeBucketSeconds is only consulted for TimeBucketed.
func NewSelector(strategy Strategy, timeBucketSeconds int64) *Selector {
	return &Selector{
		strategy:       strategy,
		timeBucketSecs: timeBucketSeconds,
		perOriginIndex: make(map[string]int),
	}
}

// Select computes identity_index for a request against originID, given the
// credential's identity_budget, service_id, and obtained_at anchor.
// forceUnlinkable, when true, behaves like MaxPrivacy regardless of the
// configured strategy, for exactly this one call. fresh is consulted only
// by strategies that consume a new slice of the identity budget
// (MaxPrivacy always; PerOrigin on the first sighting of an origin); it is
// never called by MaxPerformance or TimeBucketed, which derive their index
// without touching the persisted counter.
func (s *Selector) Select(originID field.Element, identityBudget int, serviceID field.Element, obtainedAt, now int64, forceUnlinkable bool, fresh FreshIndexFunc) (int, error) {
	if identityBudget <= 0 {
		return 0, nil
	}

	strategy := s.strategy
	if forceUnlinkable {
		strategy = MaxPrivacy
	}

	switch strategy {
	case MaxPerformance:
		return 0, nil

	case MaxPrivacy:
		n, err := fresh()
		if err != nil {
			return 0, err
		}
		return n % identityBudget, nil

	case PerOrigin:
		key := serviceID.Hex() + "|" + originID.Hex()
		s.mu.Lock()
		if idx, ok := s.perOriginIndex[key]; ok {
			s.mu.Unlock()
			return idx, nil
		}
		s.mu.Unlock()

		n, err := fresh()
		if err != nil {
			return 0, err
		}
		idx := n % identityBudget

		s.mu.Lock()
		s.perOriginIndex[key] = idx
		s.mu.Unlock()
		return idx, nil

	case TimeBucketed:
		bucket := (now / s.timeBucketSecs) * s.timeBucketSecs
		h := poseidon.Hash3(field.FromUint64(uint64(bucket)), serviceID, field.FromUint64(uint64(obtainedAt)))
		mod := h.BigInt()
		mod.Mod(mod, bigFromInt(identityBudget))
		return int(mod.Int64()), nil

	default:
		return 0, nil
	}
}

func bigFromInt(n int) *big.Int {
	return big.NewInt(int64(n))
}

// Strategy reports the Selector's configured strategy.
func (s *Selector) Strategy() Strategy {
	return s.strategy
}

// TimeBucket returns floor(now/B)*B for the configured time-bucket width.
// It is exposed so callers (e.g. the proof cache key) can compute the
// same bucket value the TimeBucketed strategy uses, regardless of which
// strategy is actually configured.
func (s *Selector) TimeBucket(now int64) int64 {
	if s.timeBucketSecs <= 0 {
		return 0
	}
	return (now / s.timeBucketSecs) * s.timeBucketSecs
}
