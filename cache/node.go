package cache

// node is an intrusive doubly linked list element owned by a shard.
// head is MRU, tail is LRU.
type node[V any] struct {
	key string
	val V

	prev *node[V]
	next *node[V]
}
