// Package receipt keeps a bounded map from task IDs to ledger signatures.
package receipt

import (
	"sync"
)

// DefaultCapacity is the number of receipts kept when no capacity is set.
const DefaultCapacity = 100

// Store maps committed task IDs to their ledger signatures.
type Store interface {
	Put(taskID, signature string)
	Get(taskID string) (string, bool)
	Len() int
}

// node is one entry in the insertion-order list.
type node struct {
	taskID    string
	signature string
	next      *node
}

func (n *node) reset() {
	n.taskID = ""
	n.signature = ""
	n.next = nil
}

// Cache is an in-memory receipt store that evicts the oldest inserted entry
// once the capacity is exceeded. Reads do not refresh an entry's position.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*node
	head     *node // oldest
	tail     *node // newest
	capacity int
	nodePool sync.Pool
}

// New creates a receipt cache with configuration options.
func New(opts ...Option) *Cache {
	c := &Cache{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*node, c.capacity)
	c.nodePool = sync.Pool{
		New: func() any {
			return &node{}
		},
	}
	return c
}

// Put records signature for taskID. Re-putting an existing task ID updates
// the signature in place and keeps its original position.
func (c *Cache) Put(taskID, signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[taskID]; ok {
		n.signature = signature
		return
	}

	n := c.nodePool.Get().(*node)
	n.taskID = taskID
	n.signature = signature
	if c.tail == nil {
		c.head = n
	} else {
		c.tail.next = n
	}
	c.tail = n
	c.entries[taskID] = n

	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

// evictOldest removes the head of the list. Must be called with c.mu held.
func (c *Cache) evictOldest() {
	n := c.head
	if n == nil {
		return
	}
	c.head = n.next
	if c.head == nil {
		c.tail = nil
	}
	delete(c.entries, n.taskID)
	n.reset()
	c.nodePool.Put(n)
}

// Get returns the signature recorded for taskID.
func (c *Cache) Get(taskID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.entries[taskID]
	if !ok {
		return "", false
	}
	return n.signature, true
}

// Len returns the number of receipts currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Capacity returns the configured maximum size.
func (c *Cache) Capacity() int {
	return c.capacity
}
