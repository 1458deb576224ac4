package tablebase

import (
	"container/list"
	"sync"
	"time"
)

// Cache maps position keys to evaluations. It is bounded two ways: a fixed
// capacity with oldest-inserted-first eviction, and a fixed per-entry TTL
// measured from insertion (reads do not refresh it). Expired entries are
// dropped lazily when Get touches them.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    *list.List // front = oldest insertion
	capacity int
	ttl      time.Duration

	hits   uint64
	misses uint64

	now func() time.Time // overridable in tests
}

type cacheEntry struct {
	key        string
	record     *Evaluation
	insertedAt time.Time
	elem       *list.Element
}

// CacheStats is a point-in-time counter snapshot.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewCache creates a cache holding at most capacity entries for at most ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the evaluation for key, or nil on a miss. An entry past its
// TTL counts as a miss and is removed.
func (c *Cache) Get(key string) *Evaluation {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.ttl > 0 && c.now().Sub(entry.insertedAt) >= c.ttl {
		c.remove(entry)
		c.misses++
		return nil
	}
	c.hits++
	return entry.record
}

// Put inserts record under key, evicting the oldest-inserted entry when the
// cache is full. Re-inserting an existing key counts as a fresh insertion.
func (c *Cache) Put(key string, record *Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.remove(old)
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*cacheEntry))
	}

	entry := &cacheEntry{key: key, record: record, insertedAt: c.now()}
	entry.elem = c.order.PushBack(entry)
	c.entries[key] = entry
}

// remove expects c.mu to be held.
func (c *Cache) remove(entry *cacheEntry) {
	delete(c.entries, entry.key)
	c.order.Remove(entry.elem)
}

// Len returns the number of live entries, expired ones included until a Get
// sweeps them.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
