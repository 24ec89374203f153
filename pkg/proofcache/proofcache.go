// Package proofcache implements the client's proof cache (§4.6.3): a
// FIFO+TTL cache keyed by (service_id, origin_id, identity_index,
// time_bucket) that lets the client reuse a previously generated proof
// instead of re-running the prover.
package proofcache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the cache size used when a client does not override it.
const DefaultCapacity = 100

// Key identifies a cached proof. TimeBucket participates in the key, so
// entries from different time buckets never collide; pkg/client fills it
// from the selector's bucket width whatever the strategy.
type Key struct {
	ServiceID     string
	OriginID      string
	IdentityIndex int
	TimeBucket    int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d|%d", k.ServiceID, k.OriginID, k.IdentityIndex, k.TimeBucket)
}

// Entry is a cached proof along with the public outputs it attests to.
type Entry struct {
	ProofBytes  []byte
	OriginToken string
	Tier        int
	ExpiresAt   int64
	Meta        map[string]string
}

type record struct {
	key       Key
	entry     Entry
	expiresAt int64 // cache-entry TTL, independent of Entry.ExpiresAt (credential expiry)
	elem      *list.Element
}

// Cache is a FIFO-ordered, TTL-bounded proof cache. Insertion order (not
// access order) governs eviction: a cache hit does not move an entry to
// the back, matching the plain insertion-ordered map the reference
// client relies on.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List // front = oldest
	records  map[string]*record
}

// New constructs a Cache with the given capacity and per-entry TTL. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		order:    list.New(),
		records:  make(map[string]*record),
	}
}

// Get returns the cached entry for key, deleting and reporting a miss if
// it has expired.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	rec, ok := c.records[k]
	if !ok {
		return Entry{}, false
	}
	if c.now().Unix() >= rec.expiresAt {
		c.removeLocked(k, rec)
		return Entry{}, false
	}
	return rec.entry, true
}

// Set stores entry under key, pruning expired entries first and then
// evicting the oldest surviving entry by insertion order if the cache is
// still at capacity.
func (c *Cache) Set(key Key, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if existing, ok := c.records[k]; ok {
		c.removeLocked(k, existing)
	}

	if len(c.records) >= c.capacity {
		c.pruneLocked()
	}
	if len(c.records) >= c.capacity {
		c.evictOldestLocked()
	}

	rec := &record{
		key:       key,
		entry:     entry,
		expiresAt: c.now().Add(c.ttl).Unix(),
	}
	rec.elem = c.order.PushBack(k)
	c.records[k] = rec
}

// Prune drops all expired entries, then — if the cache is still at or
// above capacity — evicts the single oldest surviving entry.
func (c *Cache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
	if len(c.records) >= c.capacity {
		c.evictOldestLocked()
	}
}

// Len reports the number of live (not necessarily unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *Cache) pruneLocked() {
	now := c.now().Unix()
	var next *list.Element
	for e := c.order.Front(); e != nil; e = next {
		next = e.Next()
		k := e.Value.(string)
		rec, ok := c.records[k]
		if !ok {
			c.order.Remove(e)
			continue
		}
		if now >= rec.expiresAt {
			c.order.Remove(e)
			delete(c.records, k)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	k := front.Value.(string)
	c.order.Remove(front)
	delete(c.records, k)
}

func (c *Cache) removeLocked(k string, rec *record) {
	c.order.Remove(rec.elem)
	delete(c.records, k)
}
