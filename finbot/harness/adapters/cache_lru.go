// Package adapters provides concrete implementations of the harness ports.
package adapters

import (
	"container/list"
	"context"
	"sync"
	"time"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// ReplyCache is an LRU cache with per-entry TTL, used to memoize reply text
// keyed by transcript hash.
type ReplyCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type replyEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

var _ harnessports.Cache = (*ReplyCache)(nil)

func NewReplyCache(capacity int) *ReplyCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplyCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *ReplyCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*replyEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

func (c *ReplyCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*replyEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.order.PushFront(&replyEntry{key: key, value: value, expiresAt: expiresAt})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*replyEntry).key)
	}
	return nil
}

func (c *ReplyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	return nil
}
