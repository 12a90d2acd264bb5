// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// HashKey hashes a cache key for shard selection.
// Cache keys are short ASCII strings ("ns:id[:lang]"), so xxhash's
// string path avoids the []byte conversion and allocation.
func HashKey(k string) uint64 {
	return xxhash.Sum64String(k)
}
