package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/doccache/internal/util"
)

// shard is an independent partition of the map with its own lock, index
// map and intrusive doubly linked list (head=MRU, tail=LRU).
type shard[V any] struct {
	// ---- guarded by mu ----
	mu   sync.Mutex
	m    map[string]*node[V]
	head *node[V]
	tail *node[V]
	len  int
	cap  int

	onEvict func(k string, v V)
	metrics Metrics
	total   *atomic.Int64 // resident entries of the whole map

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[V any](capacity int, opt Options[V], total *atomic.Int64) *shard[V] {
	return &shard[V]{
		m:       make(map[string]*node[V], capacity),
		cap:     capacity,
		onEvict: opt.OnEvict,
		metrics: opt.Metrics,
		total:   total,
	}
}

// add inserts a new entry as MRU. Returns false if the key already exists.
func (s *shard[V]) add(k string, v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.m[k]; exists {
		return false
	}
	s.insertLocked(k, v)
	return true
}

// set inserts or updates an entry and promotes it to MRU.
func (s *shard[V]) set(k string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		n.val = v
		s.moveToFront(n)
		return
	}
	s.insertLocked(k, v)
}

// get returns the value and promotes the entry to MRU.
func (s *shard[V]) get(k string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.metrics.Miss()
		var zero V
		return zero, false
	}
	s.moveToFront(n)
	s.hits.Add(1)
	s.metrics.Hit()
	return n.val, true
}

// peek returns the value without changing recency.
func (s *shard[V]) peek(k string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		return n.val, true
	}
	var zero V
	return zero, false
}

func (s *shard[V]) remove(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.dropLocked(n)
	s.metrics.Evict(EvictRemoved)
	s.metrics.Size(int(s.total.Load()))
	return true
}

func (s *shard[V]) removeFunc(fn func(k string, v V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for n := s.head; n != nil; {
		next := n.next
		if fn(n.key, n.val) {
			s.dropLocked(n)
			s.metrics.Evict(EvictRemoved)
			removed++
		}
		n = next
	}
	if removed > 0 {
		s.metrics.Size(int(s.total.Load()))
	}
	return removed
}

func (s *shard[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total.Add(-int64(s.len))
	s.m = make(map[string]*node[V])
	s.head, s.tail, s.len = nil, nil, 0
}

// -------------------- internals (mu held) --------------------

// insertLocked makes room at the LRU end, then links a new node at MRU, so
// the shard never holds more than cap entries.
func (s *shard[V]) insertLocked(k string, v V) {
	for s.len >= s.cap && s.tail != nil {
		s.evictLocked(s.tail)
	}
	n := &node[V]{key: k, val: v}
	s.m[k] = n
	s.pushFront(n)
	s.total.Add(1)
	s.metrics.Size(int(s.total.Load()))
}

func (s *shard[V]) pushFront(n *node[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

func (s *shard[V]) moveToFront(n *node[V]) {
	if n == s.head {
		return
	}
	s.unlink(n)
	s.len++ // unlink decremented it; the node stays resident
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

func (s *shard[V]) dropLocked(n *node[V]) {
	s.unlink(n)
	delete(s.m, n.key)
	s.total.Add(-1)
}

func (s *shard[V]) evictLocked(n *node[V]) {
	s.dropLocked(n)
	s.evicts.Add(1)
	s.metrics.Evict(EvictCapacity)
	if cb := s.onEvict; cb != nil {
		cb(n.key, n.val)
	}
}
