// Package cache provides the bounded, TTL-aware LRU used for answers and case contexts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	HitRate   float64 `json:"hit_rate"`
}

// entry is what actually sits in the LRU. ttl <= 0 never expires.
type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	hitCount  int64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Cache is a capacity-bounded LRU with per-entry TTL. It is safe for concurrent use;
// every operation runs under the instance mutex because simplelru is not.
type Cache struct {
	mu         sync.Mutex
	lru        *simplelru.LRU
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64
	expired   int64
}

type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache holding at most capacity entries. defaultTTL applies to Put.
func New(capacity int, defaultTTL time.Duration, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	lru, err := simplelru.NewLRU(capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c := &Cache{
		lru:        lru,
		capacity:   capacity,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the live value for key and marks it most recently used.
// Expired entries are removed and reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	e := raw.(*entry)
	if e.expired(c.now()) {
		c.lru.Remove(key)
		c.expired++
		c.misses++
		return nil, false
	}
	e.hitCount++
	c.hits++
	return e.value, true
}

// Put stores value under key with the default TTL.
func (c *Cache) Put(key string, value any) {
	c.PutWithTTL(key, value, c.defaultTTL)
}

// PutWithTTL stores value under key. Re-putting an existing key resets its age.
func (c *Cache) PutWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Add(key, &entry{value: value, createdAt: c.now(), ttl: ttl}) {
		c.evictions++
	}
}

// Invalidate removes key and reports whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// InvalidateFunc removes every entry for which match returns true and returns the count.
// Recency order of the survivors is left untouched.
func (c *Cache) InvalidateFunc(match func(key string, value any) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.lru.Keys() {
		raw, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		key := k.(string)
		if match(key, raw.(*entry).value) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// HitCount returns how many times key has been served. Zero for absent keys.
func (c *Cache) HitCount(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.lru.Peek(key)
	if !ok {
		return 0
	}
	return raw.(*entry).hitCount
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// AnswerKey identifies an answer by case and normalized question text.
func AnswerKey(caseID, question string) string {
	h := sha256.New()
	h.Write([]byte(caseID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeQuestion(question)))
	return hex.EncodeToString(h.Sum(nil))
}

// ContextKey identifies the aggregated context of a case.
func ContextKey(caseID string) string {
	return "context:" + caseID
}

// NormalizeQuestion lowercases and trims a question for keying.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
