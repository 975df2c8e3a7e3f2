// Package cache provides the bounded LRU query cache that fronts the vector store.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// DefaultCapacity bounds the cache when no explicit capacity is configured.
const DefaultCapacity = 100

// Key identifies one cached result set: (namespace, normalized query, k).
type Key struct {
	Namespace string
	Query     string
	K         int
}

// NewKey normalizes the query text (trim + case fold) and builds a lookup key.
// Collapsing inner whitespace is deliberately not done: it changes token
// positions for code-like queries.
func NewKey(namespace, query string, k int) Key {
	return Key{
		Namespace: namespace,
		Query:     strings.ToLower(strings.TrimSpace(query)),
		K:         k,
	}
}

type entry struct {
	key      Key
	results  []domain.RetrievedChunk
	storedAt time.Time
}

// Stats is a point-in-time cache snapshot.
type Stats struct {
	Size     int
	Capacity int
	Enabled  bool
}

// QueryCache is a strict LRU cache over (namespace, query, k) result sets.
// Recency is updated on both reads and writes. Safe for concurrent use; a
// stampede of concurrent misses for one key degrades to redundant computation
// rather than request coalescing.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[Key]*list.Element
	order    *list.List // front = most recently used
	capacity int
	enabled  bool
	lookups  *prometheus.CounterVec // label "result": hit / miss; optional
}

// New creates a query cache. lookups is a counter vec with label "result"
// ("hit"/"miss"), passed explicitly; nil disables instrumentation.
func New(capacity int, enabled bool, lookups *prometheus.CounterVec) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &QueryCache{
		entries:  make(map[Key]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		enabled:  enabled,
		lookups:  lookups,
	}
}

// Get returns the cached result set for key, refreshing its recency.
// A disabled cache always misses.
func (c *QueryCache) Get(key Key) ([]domain.RetrievedChunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil, false
	}

	el, ok := c.entries[key]
	if !ok {
		c.inc("miss")
		return nil, false
	}

	c.order.MoveToFront(el)
	c.inc("hit")
	return el.Value.(*entry).results, true
}

// Put stores a result set, evicting the least recently used entry past capacity.
// No-op when disabled.
func (c *QueryCache) Put(key Key, results []domain.RetrievedChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).results = results
		el.Value.(*entry).storedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, results: results, storedAt: time.Now()})
}

// InvalidateNamespace drops every entry scoped to the namespace and reports
// how many were dropped. Required after any mutating store operation touching it.
func (c *QueryCache) InvalidateNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, el := range c.entries {
		if key.Namespace == namespace {
			c.order.Remove(el)
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Clear removes everything.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*list.Element, c.capacity)
	c.order.Init()
}

// Stats returns the current size, capacity and enabled flag.
func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{Size: len(c.entries), Capacity: c.capacity, Enabled: c.enabled}
}

func (c *QueryCache) inc(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}
