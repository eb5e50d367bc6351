// Package lrucache keeps keys in least recently used order. It does not
// evict on its own: callers pick victims with Oldest and drop them with Remove.
// A Cache is not safe for concurrent use.
package lrucache

type entry[K comparable] struct {
	key  K
	prev *entry[K]
	next *entry[K]
}

type Cache[K comparable] struct {
	entries map[K]*entry[K]
	head    *entry[K]
	tail    *entry[K]
}

func New[K comparable]() *Cache[K] {
	return &Cache[K]{
		entries: make(map[K]*entry[K]),
	}
}

// Put marks the key most recently used, adding it if needed.
func (c *Cache[K]) Put(key K) {
	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return
	}

	e := &entry[K]{key: key}
	c.entries[key] = e
	c.addToFront(e)
}

// Remove drops the key, reporting whether it was present.
func (c *Cache[K]) Remove(key K) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.unlink(e)
	delete(c.entries, key)
	return true
}

// Oldest returns the least recently used key without removing it.
func (c *Cache[K]) Oldest() (K, bool) {
	if c.tail == nil {
		var zero K
		return zero, false
	}
	return c.tail.key, true
}

func (c *Cache[K]) Len() int {
	return len(c.entries)
}

func (c *Cache[K]) moveToFront(e *entry[K]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *Cache[K]) unlink(e *entry[K]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *Cache[K]) addToFront(e *entry[K]) {
	e.next = c.head
	e.prev = nil

	if c.head != nil {
		c.head.prev = e
	}
	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}
