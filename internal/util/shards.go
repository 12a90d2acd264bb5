package util

import "runtime"

// maxShards caps the automatic shard count.
const maxShards = 256

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x (1 for x == 0).
// Overflow is clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	if x == 0 {
		return 1 << 63
	}
	return x
}

// PrevPow2 returns the largest power of two <= x (1 for x == 0).
func PrevPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	return NextPow2(x/2 + 1)
}

// ShardCount picks the number of shards for a map holding at most capacity
// entries. requested <= 0 means auto: nextPow2(2*GOMAXPROCS) clamped to 256.
// The result is a power of two and never exceeds capacity, so every shard
// owns at least one slot and the per-shard bounds add up to capacity exactly.
func ShardCount(requested, capacity int) int {
	n := requested
	if n <= 0 {
		p := runtime.GOMAXPROCS(0)
		if p < 1 {
			p = 1
		}
		n = 2 * p
		if n > maxShards {
			n = maxShards
		}
	}
	sh := int(NextPow2(uint64(n)))
	if capacity > 0 && sh > capacity {
		sh = int(PrevPow2(uint64(capacity)))
	}
	return sh
}

// ShardIndex maps a 64-bit hash to a shard index. shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(hash & uint64(shards-1))
}

// SplitCapacity returns the capacity of shard i when capacity entries are
// spread over shards: the remainder goes to the lowest indices.
func SplitCapacity(capacity, shards, i int) int {
	c := capacity / shards
	if i < capacity%shards {
		c++
	}
	return c
}
