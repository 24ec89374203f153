package proofcache

import (
	"testing"
	"time"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	c := New(10, time.Minute)
	key := Key{ServiceID: "svc", OriginID: "origin", IdentityIndex: 0}
	entry := Entry{OriginToken: "tok", Tier: 1, ExpiresAt: 9999}

	c.Set(key, entry)
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.OriginToken != "tok" || got.Tier != 1 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(10, time.Minute)
	_, ok := c.Get(Key{ServiceID: "svc", OriginID: "missing"})
	if ok {
		t.Error("expected a miss for an unset key")
	}
}

func TestGetDeletesExpiredEntry(t *testing.T) {
	fakeNow := time.Unix(1000, 0)
	c := New(10, time.Second)
	c.now = func() time.Time { return fakeNow }

	key := Key{ServiceID: "svc", OriginID: "origin"}
	c.Set(key, Entry{OriginToken: "tok"})

	fakeNow = fakeNow.Add(2 * time.Second)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected the entry to have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected the expired entry to be deleted on Get, Len=%d", c.Len())
	}
}

func TestSetEvictsOldestWhenAtCapacity(t *testing.T) {
	c := New(2, time.Hour)
	c.Set(Key{ServiceID: "a"}, Entry{OriginToken: "a"})
	c.Set(Key{ServiceID: "b"}, Entry{OriginToken: "b"})
	c.Set(Key{ServiceID: "c"}, Entry{OriginToken: "c"})

	if _, ok := c.Get(Key{ServiceID: "a"}); ok {
		t.Error("expected the oldest entry (a) to have been evicted")
	}
	if _, ok := c.Get(Key{ServiceID: "b"}); !ok {
		t.Error("expected b to survive eviction")
	}
	if _, ok := c.Get(Key{ServiceID: "c"}); !ok {
		t.Error("expected c to survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("expected capacity to be respected, Len=%d", c.Len())
	}
}

func TestPruneRemovesOnlyExpiredEntries(t *testing.T) {
	fakeNow := time.Unix(1000, 0)
	c := New(10, time.Second)
	c.now = func() time.Time { return fakeNow }

	c.Set(Key{ServiceID: "stale"}, Entry{OriginToken: "stale"})
	fakeNow = fakeNow.Add(2 * time.Second)
	c.Set(Key{ServiceID: "fresh"}, Entry{OriginToken: "fresh"})

	c.Prune()

	if _, ok := c.Get(Key{ServiceID: "stale"}); ok {
		t.Error("expected the stale entry to be pruned")
	}
	if _, ok := c.Get(Key{ServiceID: "fresh"}); !ok {
		t.Error("expected the fresh entry to survive pruning")
	}
}

func TestSetOverwritesExistingKeyWithoutDoubleCounting(t *testing.T) {
	c := New(10, time.Hour)
	key := Key{ServiceID: "svc"}
	c.Set(key, Entry{OriginToken: "first"})
	c.Set(key, Entry{OriginToken: "second"})

	if c.Len() != 1 {
		t.Errorf("expected a re-Set to replace, not duplicate, Len=%d", c.Len())
	}
	got, _ := c.Get(key)
	if got.OriginToken != "second" {
		t.Errorf("expected the latest value to win, got %q", got.OriginToken)
	}
}

func TestKeyDistinguishesTimeBucketAndIdentityIndex(t *testing.T) {
	c := New(10, time.Hour)
	k1 := Key{ServiceID: "svc", OriginID: "origin", IdentityIndex: 0, TimeBucket: 100}
	k2 := Key{ServiceID: "svc", OriginID: "origin", IdentityIndex: 1, TimeBucket: 100}
	k3 := Key{ServiceID: "svc", OriginID: "origin", IdentityIndex: 0, TimeBucket: 400}

	c.Set(k1, Entry{OriginToken: "a"})
	c.Set(k2, Entry{OriginToken: "b"})
	c.Set(k3, Entry{OriginToken: "c"})

	if c.Len() != 3 {
		t.Errorf("expected three distinct cache entries, Len=%d", c.Len())
	}
}
