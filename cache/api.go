package cache

// Map is a bounded, sharded, string-keyed LRU map.
// All methods are safe for concurrent use by multiple goroutines.
//
// The map never holds more than its configured capacity: each shard owns a
// fixed slice of the capacity and evicts its least recently used entry as
// soon as an insert overflows it.
type Map[V any] interface {
	// Add inserts k→v only if k is not present.
	// Returns false if the key already exists (no update is performed).
	Add(k string, v V) bool

	// Set inserts or updates k→v and promotes the entry to MRU.
	Set(k string, v V)

	// Get returns the value for k and a presence flag.
	// On hit, the entry is promoted to MRU.
	Get(k string) (V, bool)

	// Peek returns the value for k without promoting it or touching metrics.
	Peek(k string) (V, bool)

	// Remove deletes k if present and returns true on success.
	Remove(k string) bool

	// RemoveFunc deletes every entry for which fn returns true and reports
	// how many were removed. fn runs under the shard lock and must not call
	// back into the map.
	RemoveFunc(fn func(k string, v V) bool) int

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Capacity returns the configured entry limit.
	Capacity() int

	// Stats returns hit/miss/eviction counters summed over all shards.
	Stats() Stats

	// Close marks the map closed and drops all entries.
	// Subsequent reads miss and writes are ignored.
	Close() error
}

// Stats is a point-in-time snapshot of the map counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
}
