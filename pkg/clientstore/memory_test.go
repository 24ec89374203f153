package clientstore

import (
	"context"
	"sync"
	"testing"

	"github.com/x402zk/credential-gateway/pkg/credential"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "svc"); err != nil || ok {
		t.Fatalf("expected no entry for unset service, got ok=%v err=%v", ok, err)
	}

	cred := credential.StoredCredential{PresentationCount: 0}
	if err := s.Set(ctx, "svc", cred); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "svc")
	if err != nil || !ok {
		t.Fatalf("expected entry after Set, got ok=%v err=%v", ok, err)
	}
	if got.PresentationCount != 0 {
		t.Errorf("unexpected stored value: %+v", got)
	}
}

func TestMemoryStoreRemoveAndClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Set(ctx, "a", credential.StoredCredential{})
	s.Set(ctx, "b", credential.StoredCredential{})

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Error("expected a to be removed")
	}
	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(list))
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	list, _ = s.List(ctx)
	if len(list) != 0 {
		t.Errorf("expected empty store after Clear, got %d entries", len(list))
	}
}

func TestMemoryStoreIncrementPresentationCountMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.IncrementPresentationCount(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreIncrementPresentationCountIsMonotonicUnderConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Set(ctx, "svc", credential.StoredCredential{})

	const n = 50
	counts := make(chan int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c, err := s.IncrementPresentationCount(ctx, "svc")
			if err != nil {
				t.Error(err)
			}
			counts <- c
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool)
	for c := range counts {
		if seen[c] {
			t.Fatalf("duplicate presentation count observed: %d", c)
		}
		seen[c] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct counts, got %d", n, len(seen))
	}
}
