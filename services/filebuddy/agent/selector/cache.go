// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// selectionCache caches selection results with LRU eviction.
//
// Description:
//
//	Thread-safe LRU cache with TTL expiration. Keys are computed from
//	query + toolsHash so results are invalidated when the tool set
//	changes.
//
// Thread Safety: This type is safe for concurrent use.
type selectionCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	ttl     time.Duration
	maxSize int

	hits   atomic.Int64
	misses atomic.Int64
}

type selectionEntry struct {
	key       string
	result    *Result
	expiresAt time.Time
}

func newSelectionCache(ttl time.Duration, maxSize int) *selectionCache {
	return &selectionCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves a cached result if it has not expired.
func (c *selectionCache) Get(query, toolsHash string) (*Result, bool) {
	key := c.computeKey(query, toolsHash)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		c.misses.Add(1)
		return nil, false
	}

	entry := elem.Value.(*selectionEntry)
	if time.Now().After(entry.expiresAt) {
		// Expired, remove lazily
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	c.hits.Add(1)

	// Copy so callers cannot mutate the cached value
	result := *entry.result
	result.Cached = true
	return &result, true
}

// Set stores a result, evicting the least recently used entry at capacity.
func (c *selectionCache) Set(query, toolsHash string, result *Result) {
	key := c.computeKey(query, toolsHash)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*selectionEntry)
		entry.result = result
		entry.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}

	elem := c.lru.PushFront(&selectionEntry{
		key:       key,
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem
}

func (c *selectionCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*selectionEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

// Size returns the current entry count.
func (c *selectionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// HitRate returns the fraction of lookups served from cache.
func (c *selectionCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *selectionCache) computeKey(query, toolsHash string) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte("|"))
	h.Write([]byte(toolsHash))
	return hex.EncodeToString(h.Sum(nil))
}
