// Package syncutil provides keyed mutual exclusion primitives.
//
// Spend ledgers and frequency trackers are partitioned by identity;
// every check-then-commit sequence against them must run inside a
// per-identity critical section. These primitives provide that locking
// with bounded memory, at the cost of occasional false sharing between
// identities that hash to the same shard.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 256

// KeyMutex provides a fixed-size pool of mutexes keyed by string.
type KeyMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (m *KeyMutex) Lock(key string) func() {
	mu := m.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (m *KeyMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%shardCount]
}

// ContextKeyMutex is a keyed mutex whose acquisition respects context
// cancellation. Each shard is a channel-based mutex so callers waiting on a
// contended identity can bail out when their request is cancelled.
type ContextKeyMutex struct {
	shards [shardCount]chanMutex
	once   sync.Once
}

type chanMutex struct {
	ch chan struct{}
}

// NewContextKeyMutex creates a new context-aware keyed mutex.
func NewContextKeyMutex() *ContextKeyMutex {
	m := &ContextKeyMutex{}
	m.init()
	return m
}

func (m *ContextKeyMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i].ch = make(chan struct{}, 1)
			m.shards[i].ch <- struct{}{} // Start unlocked.
		}
	})
}

// LockContext acquires the mutex for the given key, respecting context
// cancellation. On success it returns an unlock function the caller MUST
// invoke. On cancellation it returns nil and the context error.
func (m *ContextKeyMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	shard := &m.shards[m.shardIdx(key)]

	select {
	case <-shard.ch:
		return func() { shard.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ContextKeyMutex) shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
