package cache

// EvictReason explains why an entry left the map.
type EvictReason int

const (
	// EvictCapacity: removed as the LRU entry of a full shard.
	EvictCapacity EvictReason = iota
	// EvictRemoved: removed explicitly (Remove / RemoveFunc).
	EvictRemoved
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictRemoved:
		return "removed"
	default:
		return "capacity"
	}
}

// Metrics exposes map-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int) // resident entries of the whole map
}

// Options configures the map. Zero values are safe; defaults are applied in New():
//   - Shards <= 0  => auto (power of two, never more than Capacity)
//   - nil Metrics  => NoopMetrics
type Options[V any] struct {
	// Capacity is the entry count limit. Must be > 0.
	Capacity int

	// Shards defines the number of shards. It is rounded up to a power of two
	// and lowered if needed so that no shard ends up with zero capacity.
	Shards int

	// OnEvict is called for capacity evictions under the shard lock;
	// keep callbacks lightweight and never call back into the map.
	OnEvict func(k string, v V)

	Metrics Metrics
}
