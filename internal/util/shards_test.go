package util

import "testing"

func TestShardCount_NeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		requested, capacity, want int
	}{
		{requested: 16, capacity: 1000, want: 16},
		{requested: 10, capacity: 1000, want: 16},
		{requested: 16, capacity: 5, want: 4},
		{requested: 16, capacity: 1, want: 1},
		{requested: 1, capacity: 7, want: 1},
	}
	for _, tc := range cases {
		if got := ShardCount(tc.requested, tc.capacity); got != tc.want {
			t.Fatalf("ShardCount(%d, %d) = %d, want %d", tc.requested, tc.capacity, got, tc.want)
		}
	}

	if got := ShardCount(0, 3); got > 3 || !IsPowerOfTwo(uint64(got)) {
		t.Fatalf("auto shard count for cap=3 must be a power of two <= 3, got %d", got)
	}
}

func TestSplitCapacity_SumsToCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 7, 16, 1001} {
		shards := ShardCount(8, capacity)
		total := 0
		for i := 0; i < shards; i++ {
			c := SplitCapacity(capacity, shards, i)
			if c < 1 {
				t.Fatalf("cap=%d shard %d got %d slots", capacity, i, c)
			}
			total += c
		}
		if total != capacity {
			t.Fatalf("cap=%d: shard capacities sum to %d", capacity, total)
		}
	}
}

func TestPow2Helpers(t *testing.T) {
	t.Parallel()

	for x, want := range map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64} {
		if got := NextPow2(x); got != want {
			t.Fatalf("NextPow2(%d) = %d, want %d", x, got, want)
		}
	}
	for x, want := range map[uint64]uint64{0: 1, 1: 1, 3: 2, 4: 4, 7: 4, 9: 8} {
		if got := PrevPow2(x); got != want {
			t.Fatalf("PrevPow2(%d) = %d, want %d", x, got, want)
		}
	}
}
