package core

// inflightEntry is one scheduled execution and every future waiting on it.
type inflightEntry struct {
	key     string
	waiters []*ResultFuture
}

// inflightTable maps dedup keys to their running execution. Attaching a
// waiter and completing an entry take the same shard lock, so a waiter is
// either attached before completion drains the list or starts a new
// execution.
type inflightTable struct {
	entries *shardedMap[*inflightEntry]
}

func newInflightTable(shards int) *inflightTable {
	return &inflightTable{entries: newShardedMap[*inflightEntry](shards)}
}

// attachOrCreate attaches future to the running execution for key. created
// is true when no execution existed and the caller must schedule one.
func (t *inflightTable) attachOrCreate(key string, future *ResultFuture) (entry *inflightEntry, created bool) {
	t.entries.with(key, func(items map[string]*inflightEntry) {
		if existing, ok := items[key]; ok {
			existing.waiters = append(existing.waiters, future)
			entry = existing
			return
		}
		entry = &inflightEntry{key: key, waiters: []*ResultFuture{future}}
		items[key] = entry
		created = true
	})
	return entry, created
}

// complete removes the entry and returns the waiters to notify. Delivery
// happens outside the shard lock.
func (t *inflightTable) complete(entry *inflightEntry) []*ResultFuture {
	var waiters []*ResultFuture
	t.entries.with(entry.key, func(items map[string]*inflightEntry) {
		if items[entry.key] == entry {
			delete(items, entry.key)
		}
		waiters = entry.waiters
		entry.waiters = nil
	})
	return waiters
}

func (t *inflightTable) size() int {
	return t.entries.size()
}
