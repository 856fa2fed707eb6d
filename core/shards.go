package core

import (
	"hash/maphash"
	"sync"
)

const defaultShardCount = 16

// shardedMap stripes a string-keyed map across independently locked shards
// so unrelated keys never contend on one mutex.
type shardedMap[V any] struct {
	seed   maphash.Seed
	shards []mapShard[V]
}

type mapShard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

func newShardedMap[V any](count int) *shardedMap[V] {
	if count <= 0 {
		count = defaultShardCount
	}
	shards := make([]mapShard[V], count)
	for i := range shards {
		shards[i].items = map[string]V{}
	}
	return &shardedMap[V]{seed: maphash.MakeSeed(), shards: shards}
}

func (m *shardedMap[V]) shardFor(key string) *mapShard[V] {
	index := maphash.String(m.seed, key) % uint64(len(m.shards))
	return &m.shards[index]
}

// with runs fn holding the lock of the shard that owns key. fn may read and
// mutate any entry of that shard but must not call back into the map.
func (m *shardedMap[V]) with(key string, fn func(items map[string]V)) {
	shard := m.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	fn(shard.items)
}

func (m *shardedMap[V]) load(key string) (V, bool) {
	var (
		value V
		ok    bool
	)
	m.with(key, func(items map[string]V) {
		value, ok = items[key]
	})
	return value, ok
}

func (m *shardedMap[V]) store(key string, value V) {
	m.with(key, func(items map[string]V) {
		items[key] = value
	})
}

// storeIfAbsent stores value unless key is already present and reports
// whether it stored.
func (m *shardedMap[V]) storeIfAbsent(key string, value V) (stored bool) {
	m.with(key, func(items map[string]V) {
		if _, exists := items[key]; exists {
			return
		}
		items[key] = value
		stored = true
	})
	return stored
}

func (m *shardedMap[V]) remove(key string) (V, bool) {
	var (
		value V
		ok    bool
	)
	m.with(key, func(items map[string]V) {
		value, ok = items[key]
		delete(items, key)
	})
	return value, ok
}

func (m *shardedMap[V]) size() int {
	total := 0
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		total += len(shard.items)
		shard.mu.Unlock()
	}
	return total
}
