package profile

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCacheTTL bounds how long a cached snapshot is considered live.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	profile    Profile
	capturedAt time.Time
}

// Cache is an in-process, time-boxed map of user id to profile snapshot.
// Entries older than the TTL behave as misses; they are not evicted
// eagerly, a later Set simply overwrites.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]cacheEntry
}

// NewCache constructs a cache. A zero ttl falls back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

// Get returns the cached snapshot if one was captured within the TTL.
func (c *Cache) Get(id uuid.UUID) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return Profile{}, false
	}
	if c.now().Sub(entry.capturedAt) >= c.ttl {
		return Profile{}, false
	}
	return entry.profile, true
}

// Set stores a snapshot captured now, overwriting any previous entry.
func (c *Cache) Set(id uuid.UUID, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = cacheEntry{profile: p, capturedAt: c.now()}
}

// Clear drops the entry for a single user.
func (c *Cache) Clear(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// ClearAll drops every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]cacheEntry)
}
