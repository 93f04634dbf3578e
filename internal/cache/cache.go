// Package cache implements the Gossip Cache: a bounded, insertion-ordered
// set of recently seen application-message payloads used for duplicate
// suppression (spec.md §4.2). The eviction structure mirrors the teacher's
// objects-cache package, which keeps a container/heap alongside a map so
// eviction is O(log n) instead of shifting a slice on every insert; here the
// heap orders by insertion sequence rather than TTL since the Gossip Cache
// has no expiry, only a capacity bound.
package cache

import "container/heap"

// DefaultSize is the reference CACHE_SIZE.
const DefaultSize = 50

// Cache is a bounded FIFO membership test over exact payload strings.
// It is not safe for concurrent use; the node's event loop owns it.
type Cache struct {
	maxEntries int
	seq        uint64

	members map[string]*entry
	order   entryHeap
}

type entry struct {
	payload string
	seq     uint64
	index   int
}

// New builds an empty cache bounded to maxEntries payloads.
func New(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		members:    make(map[string]*entry),
		order:      make(entryHeap, 0, maxEntries),
	}
}

// Seen reports whether payload was previously recorded via Observe.
func (c *Cache) Seen(payload string) bool {
	_, ok := c.members[payload]
	return ok
}

// Observe records payload as seen, evicting the oldest entry first if the
// cache is already at capacity. No-op if the payload is already present.
func (c *Cache) Observe(payload string) {
	if c.Seen(payload) {
		return
	}
	if len(c.members) >= c.maxEntries {
		c.evictOldest()
	}
	e := &entry{payload: payload, seq: c.seq}
	c.seq++
	c.members[payload] = e
	heap.Push(&c.order, e)
}

func (c *Cache) evictOldest() {
	if c.order.Len() == 0 {
		return
	}
	oldest := heap.Pop(&c.order).(*entry)
	delete(c.members, oldest.payload)
}

// Len returns the number of distinct payloads currently cached.
func (c *Cache) Len() int {
	return len(c.members)
}

// entryHeap implements heap.Interface ordered by insertion sequence, so
// Pop always yields the oldest-inserted surviving entry.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(v any) {
	e := v.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
