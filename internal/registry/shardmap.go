package registry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// shardMap is a string-keyed map split into independently locked
// shards, so unrelated usernames never contend on the same mutex.
type shardMap[V any] struct {
	shards [shardCount]*shard[V]
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newShardMap[V any]() *shardMap[V] {
	sm := &shardMap[V]{}
	for i := range sm.shards {
		sm.shards[i] = &shard[V]{m: make(map[string]V)}
	}
	return sm
}

func (sm *shardMap[V]) shardFor(key string) *shard[V] {
	return sm.shards[xxhash.Sum64String(key)%shardCount]
}

func (sm *shardMap[V]) Get(key string) (V, bool) {
	s := sm.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Swap stores v under key and returns the previous value, if any.
func (sm *shardMap[V]) Swap(key string, v V) (V, bool) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.m[key]
	s.m[key] = v
	return prev, ok
}

// DeleteIf removes key only when match approves the current value.
func (sm *shardMap[V]) DeleteIf(key string, match func(V) bool) (V, bool) {
	s := sm.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok || !match(v) {
		var zero V
		return zero, false
	}
	delete(s.m, key)
	return v, true
}

// Values returns a copy of every value.  Shards are visited one at a
// time, so the result is weakly consistent under concurrent writes.
func (sm *shardMap[V]) Values() []V {
	var out []V
	for _, s := range sm.shards {
		s.mu.RLock()
		for _, v := range s.m {
			out = append(out, v)
		}
		s.mu.RUnlock()
	}
	return out
}

// Keys returns a weakly consistent copy of every key.
func (sm *shardMap[V]) Keys() []string {
	var out []string
	for _, s := range sm.shards {
		s.mu.RLock()
		for k := range s.m {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	return out
}

func (sm *shardMap[V]) Len() int {
	n := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
