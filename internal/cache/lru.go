// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides a bounded least-recently-used cache.
package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a fixed capacity cache that evicts the least recently used entry
// when a new key is added to a full cache.  It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[K]*list.Element
	onEvict  func(K, V)
}

// NewLRU returns an empty cache holding at most capacity entries.  A capacity
// below one is treated as one.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[K]*list.Element, capacity),
	}
}

// NewEvictingLRU is like NewLRU but calls onEvict with every entry that
// leaves the cache, whether evicted, replaced or cleared.  onEvict runs after
// the cache is unlocked.
func NewEvictingLRU[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	c := NewLRU[K, V](capacity)
	c.onEvict = onEvict
	return c
}

func (c *LRU[K, V]) evicted(entries []*entry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}

// Get returns the value stored for key and marks it as most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.order.MoveToFront(e)
		return e.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Has reports whether key is present without changing its recency.
func (c *LRU[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Set stores value for key.  An existing key is updated and refreshed;
// otherwise the least recently used entry is evicted if the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	var gone []*entry[K, V]
	if e, ok := c.items[key]; ok {
		current := e.Value.(*entry[K, V])
		gone = append(gone, &entry[K, V]{key, current.value})
		current.value = value
		c.order.MoveToFront(e)
	} else {
		if c.order.Len() >= c.capacity {
			oldest := c.order.Back()
			c.order.Remove(oldest)
			e := oldest.Value.(*entry[K, V])
			delete(c.items, e.key)
			gone = append(gone, e)
		}
		c.items[key] = c.order.PushFront(&entry[K, V]{key, value})
	}
	c.mu.Unlock()

	c.evicted(gone)
}

// Clear removes every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	var gone []*entry[K, V]
	if c.onEvict != nil {
		for e := c.order.Front(); e != nil; e = e.Next() {
			gone = append(gone, e.Value.(*entry[K, V]))
		}
	}
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
	c.mu.Unlock()

	c.evicted(gone)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}
