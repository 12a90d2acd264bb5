// Package cache provides the bounded maps that back the document store:
// a generic, sharded, string-keyed LRU map with an exact capacity bound.
//
// # Design
//
//   - Concurrency: the map is split into shards, each protected by its own
//     mutex. The shard count is a power of two picked from GOMAXPROCS and is
//     lowered for tiny capacities so that every shard owns at least one slot.
//
//   - Storage: each shard keeps a map[string]*node for lookups and an
//     intrusive MRU↔LRU doubly linked list for ordering. All operations are
//     O(1) expected, except RemoveFunc which walks every shard.
//
//   - Capacity: Capacity is split exactly across shards (the remainder goes
//     to the first shards), so Len() never exceeds Capacity.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom provides a Prometheus adapter.
//
// # Basic usage
//
//	m := cache.New[*Doc](cache.Options[*Doc]{Capacity: 10_000})
//	m.Set("wiki:space.page", doc)
//	if d, ok := m.Get("wiki:space.page"); ok {
//	    _ = d
//	}
//	m.RemoveFunc(func(k string, _ *Doc) bool { return strings.HasPrefix(k, "wiki:space.page:") })
//
// Values are handed out as-is; store immutable values (or pointers to values
// nobody mutates) when the map is shared between goroutines.
package cache
