package svcpipe

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const cacheShardCount = 16

// CacheEntry is a stored response and its lifetime.
type CacheEntry struct {
	Key      string
	Value    *Response
	StoredAt time.Time
	TTL      time.Duration
}

func (e *CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// CacheStore is a per-service key -> response map with expiry on read.
// It is safe for concurrent use.
type CacheStore struct {
	shards []*cacheShard
	clock  Clock
}

type cacheShard struct {
	mu    sync.Mutex
	store map[string]*CacheEntry
}

// NewCacheStore creates an empty store using clock for timestamps.
func NewCacheStore(clock Clock) *CacheStore {
	if clock == nil {
		clock = SystemClock()
	}
	shards := make([]*cacheShard, cacheShardCount)
	for i := range shards {
		shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return &CacheStore{shards: shards, clock: clock}
}

func (c *CacheStore) shard(key string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the live value for key. A stale entry is evicted and reported as a miss.
func (c *CacheStore) Get(key string) (*Response, bool) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.store[key]
	if !ok {
		return nil, false
	}
	if entry.expired(c.clock.Now()) {
		delete(s.store, key)
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key for ttl.
func (c *CacheStore) Set(key string, value *Response, ttl time.Duration) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store[key] = &CacheEntry{
		Key:      key,
		Value:    value,
		StoredAt: c.clock.Now(),
		TTL:      ttl,
	}
}

// Delete removes key.
func (c *CacheStore) Delete(key string) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.store, key)
}

// Clear removes every key containing pattern, or all keys when pattern is
// empty. It returns the number of entries removed.
func (c *CacheStore) Clear(pattern string) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		if pattern == "" {
			removed += len(s.store)
			s.store = make(map[string]*CacheEntry)
		} else {
			for key := range s.store {
				if strings.Contains(key, pattern) {
					delete(s.store, key)
					removed++
				}
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, stale ones included.
func (c *CacheStore) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.store)
		s.mu.Unlock()
	}
	return total
}
