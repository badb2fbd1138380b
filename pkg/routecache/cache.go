// Package routecache implements the router's bounded, TTL'd LRU cache of
// routing results keyed by (text, recent-context) fingerprint.
//
// No library in the reference corpus provides an LRU-with-TTL cache, and the
// structure here is small and self-contained (an insertion-ordered map plus
// expiry check), so it is hand-rolled on top of container/list rather than
// pulled in as a dependency.
package routecache

import (
	"container/list"
	"sync"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

// DefaultCapacity is the maximum number of entries the cache retains.
const DefaultCapacity = 1000

// DefaultTTL is how long a cached routing result stays valid.
const DefaultTTL = 30 * time.Minute

type entry struct {
	key        string
	result     memtypes.RoutingResult
	insertedAt time.Time
}

// Cache is a bounded, insertion-ordered map from cache key to routing
// result, evicting least-recently-used entries past capacity and treating
// entries past TTL as misses.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// New creates a Cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// NewDefault creates a Cache with DefaultCapacity and DefaultTTL.
func NewDefault() *Cache {
	return New(DefaultCapacity, DefaultTTL)
}

// Key builds the cache fingerprint from text and the last-3 context lines.
func Key(text string, last3Context []string) string {
	key := text
	for _, line := range last3Context {
		key += "|" + line
	}
	return key
}

// Get returns the cached result for k, moving it to the MRU end. It reports
// a miss if k is absent or its entry has expired, evicting expired entries
// as it finds them.
func (c *Cache) Get(k string) (memtypes.RoutingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[k]
	if !ok {
		return memtypes.RoutingResult{}, false
	}

	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeElement(el)
		return memtypes.RoutingResult{}, false
	}

	c.ll.MoveToFront(el)
	return e.result, true
}

// Set stores v under k, resetting its position to MRU and evicting the LRU
// entry if the cache is at capacity.
func (c *Cache) Set(k string, v memtypes.RoutingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[k]; ok {
		c.removeElement(el)
	}

	if c.ll.Len() >= c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.removeElement(back)
		}
	}

	el := c.ll.PushFront(&entry{key: k, result: v, insertedAt: c.now()})
	c.items[k] = el
}

// Clear empties the cache. Any learning event must call this: changed
// weights invalidate every cached ML decision.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Len returns the current number of entries, including any not yet
// lazily evicted for TTL expiry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	e := el.Value.(*entry)
	delete(c.items, e.key)
}
