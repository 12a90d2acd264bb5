package cache

import (
	"sync/atomic"

	"github.com/IvanBrykalov/doccache/internal/util"
)

// boundedMap is a sharded LRU map with an exact capacity bound.
type boundedMap[V any] struct {
	shards   []*shard[V]
	capacity int
	total    atomic.Int64
	closed   atomic.Bool
}

// New constructs a Map with the provided Options.
// Capacity must be > 0; New panics otherwise.
func New[V any](opt Options[V]) Map[V] {
	if opt.Capacity <= 0 {
		panic("cache: Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	sh := util.ShardCount(opt.Shards, opt.Capacity)
	m := &boundedMap[V]{shards: make([]*shard[V], sh), capacity: opt.Capacity}
	for i := range m.shards {
		m.shards[i] = newShard(util.SplitCapacity(opt.Capacity, sh, i), opt, &m.total)
	}
	return m
}

func (m *boundedMap[V]) Add(k string, v V) bool {
	if m.closed.Load() {
		return false
	}
	return m.shardFor(k).add(k, v)
}

func (m *boundedMap[V]) Set(k string, v V) {
	if m.closed.Load() {
		return
	}
	m.shardFor(k).set(k, v)
}

func (m *boundedMap[V]) Get(k string) (V, bool) {
	if m.closed.Load() {
		var zero V
		return zero, false
	}
	return m.shardFor(k).get(k)
}

func (m *boundedMap[V]) Peek(k string) (V, bool) {
	if m.closed.Load() {
		var zero V
		return zero, false
	}
	return m.shardFor(k).peek(k)
}

func (m *boundedMap[V]) Remove(k string) bool {
	if m.closed.Load() {
		return false
	}
	return m.shardFor(k).remove(k)
}

func (m *boundedMap[V]) RemoveFunc(fn func(k string, v V) bool) int {
	if m.closed.Load() {
		return 0
	}
	n := 0
	for _, s := range m.shards {
		n += s.removeFunc(fn)
	}
	return n
}

func (m *boundedMap[V]) Len() int { return int(m.total.Load()) }

func (m *boundedMap[V]) Capacity() int { return m.capacity }

func (m *boundedMap[V]) Stats() Stats {
	var st Stats
	for _, s := range m.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
	}
	return st
}

// Close is idempotent. Entries are released so a discarded map does not pin
// values until the garbage collector finds the map itself.
func (m *boundedMap[V]) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	for _, s := range m.shards {
		s.clear()
	}
	return nil
}

// shardFor picks a shard by hashing the key; len(m.shards) is a power of two.
func (m *boundedMap[V]) shardFor(k string) *shard[V] {
	return m.shards[util.ShardIndex(util.HashKey(k), len(m.shards))]
}
