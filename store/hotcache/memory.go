// Package hotcache provides the volatile recency tier implementations:
// an in-process LRU for single-node deployments and a Redis list cache
// for shared ones.
package hotcache

import (
	"context"
	"sync"
	"time"

	"github.com/crewmind/crewmind/ai/cache"
	"github.com/crewmind/crewmind/store"
)

const memoryCapacity = 4096

// Memory is the in-process hot tier. Entries expire after the standard
// hot TTL and the least recently used conversations fall out first.
type Memory struct {
	mu  sync.Mutex
	lru *cache.LRU[string, []*store.Message]
	ttl time.Duration
}

// NewMemory creates an in-process hot tier.
func NewMemory() *Memory {
	ttl := time.Duration(store.HotTTLSeconds) * time.Second
	return &Memory{
		lru: cache.NewLRU[string, []*store.Message](memoryCapacity, ttl),
		ttl: ttl,
	}
}

func (m *Memory) Push(_ context.Context, conversationUID string, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lru.Get(conversationUID)
	if !ok {
		// Absent key: only Replace may create a list.
		return nil
	}
	next := make([]*store.Message, 0, len(list)+1)
	next = append(next, msg)
	next = append(next, list...)
	if len(next) > store.HotDepth {
		next = next[:store.HotDepth]
	}
	m.lru.Set(conversationUID, next, m.ttl)
	return nil
}

func (m *Memory) Recent(_ context.Context, conversationUID string, limit int) ([]*store.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lru.Get(conversationUID)
	if !ok {
		return nil, false, nil
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]*store.Message, len(list))
	copy(out, list)
	return out, true, nil
}

func (m *Memory) Replace(_ context.Context, conversationUID string, msgs []*store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*store.Message, len(msgs))
	copy(list, msgs)
	if len(list) > store.HotDepth {
		list = list[:store.HotDepth]
	}
	m.lru.Set(conversationUID, list, m.ttl)
	return nil
}

func (m *Memory) Evict(_ context.Context, conversationUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(conversationUID)
	return nil
}
