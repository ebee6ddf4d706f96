package cache

import (
	"container/list"
	"path"
	"sync"
	"time"
)

// DefaultL1Size bounds the in-process layer.
const DefaultL1Size = 1000

type l1Entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	hits      int64
}

// L1 is an in-process LRU with per-entry expiry.
type L1 struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[string]*list.Element
	now   func() time.Time

	hits, misses, evictions int64
}

// NewL1 creates an LRU holding at most size entries.
func NewL1(size int) *L1 {
	if size <= 0 {
		size = DefaultL1Size
	}
	return &L1{
		max:   size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
		now:   time.Now,
	}
}

// Get returns a copy-free view of the value; callers must not modify it.
func (c *L1) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*l1Entry)
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		c.misses++
		return nil, false
	}
	e.hits++
	c.hits++
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value for ttl. A non-positive ttl never expires.
func (c *L1) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*l1Entry)
		e.value, e.expiresAt = value, expiresAt
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.max {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}
	c.items[key] = c.order.PushFront(&l1Entry{key: key, value: value, expiresAt: expiresAt})
}

// Delete removes keys.
func (c *L1) Delete(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.removeElement(el)
		}
	}
}

// DeletePattern removes every key matching a glob pattern such as "bot:12:*".
func (c *L1) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, el := range c.items {
		if ok, _ := path.Match(pattern, k); ok {
			c.removeElement(el)
			n++
		}
	}
	return n
}

func (c *L1) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*l1Entry).key)
}

// L1Stats reports counters of the in-process layer.
type L1Stats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Stats returns the current counters.
func (c *L1) Stats() L1Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return L1Stats{Size: c.order.Len(), Hits: c.hits, Misses: c.misses, Evictions: c.evictions}
}
