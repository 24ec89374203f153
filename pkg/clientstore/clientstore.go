// Package clientstore implements the client's credential storage (§4.7): a
// key-value store indexed by service_id with an atomic
// increment_presentation_count operation.
package clientstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/x402zk/credential-gateway/pkg/credential"
)

// Store is the client-local credential storage contract.
type Store interface {
	Get(ctx context.Context, serviceID string) (credential.StoredCredential, bool, error)
	Set(ctx context.Context, serviceID string, cred credential.StoredCredential) error
	Remove(ctx context.Context, serviceID string) error
	List(ctx context.Context) ([]credential.StoredCredential, error)
	Clear(ctx context.Context) error

	// IncrementPresentationCount performs an atomic read-modify-write and
	// returns the new count. Concurrent callers against the same
	// serviceID MUST observe strictly monotonic, non-repeating counts.
	IncrementPresentationCount(ctx context.Context, serviceID string) (int, error)
}

// ErrNotFound is returned by operations that require an existing entry.
var ErrNotFound = fmt.Errorf("clientstore: credential not found")

// MemoryStore is an in-process Store, the default for short-lived clients
// and tests; StoragePath-backed persistence is informative only (§1) so a
// durable file format is not required here.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]credential.StoredCredential
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]credential.StoredCredential)}
}

func (m *MemoryStore) Get(ctx context.Context, serviceID string) (credential.StoredCredential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[serviceID]
	return c, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, serviceID string, cred credential.StoredCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[serviceID] = cred
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, serviceID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]credential.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]credential.StoredCredential, 0, len(m.creds))
	for _, c := range m.creds {
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = make(map[string]credential.StoredCredential)
	return nil
}

func (m *MemoryStore) IncrementPresentationCount(ctx context.Context, serviceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[serviceID]
	if !ok {
		return 0, ErrNotFound
	}
	c.PresentationCount++
	m.creds[serviceID] = c
	return c.PresentationCount, nil
}
