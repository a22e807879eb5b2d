// Package keymutex provides fine-grained locking keyed by resource identifier.
package keymutex

import (
	"sync"
)

// KeyMutex distributes locks across N shards based on a hash of the resource
// key, so operations on different keys rarely contend while operations on the
// same key always serialize. The append writer uses it to serialize the
// read-latest/build/insert critical section per tenant chain.
type KeyMutex struct {
	shards [32]sync.Mutex
}

// New creates a KeyMutex with 32 shards.
func New() *KeyMutex {
	return &KeyMutex{}
}

// Lock acquires the lock for the given key's shard.
// Empty keys default to shard 0.
func (m *KeyMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
// Empty keys default to shard 0.
func (m *KeyMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// shardFor returns the shard index for the given key.
func (m *KeyMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString provides a simple hash for shard selection.
// Uses djb2-style hashing for good distribution.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
