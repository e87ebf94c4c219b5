package leaves

import (
	"slices"
	"sort"
)

// stringHash implements the FNV32A hash for strings,
// taking d as a parameter to provide a variation of the hash
func stringHash(d int32, str string) int {
	result := int(d)
	if d == 0 {
		result = 0x01000193
	}

	// Use the FNV algorithm from http://isthe.com/chongo/tech/comp/fnv/
	for _, c := range []byte(str) {
		result = ((result * 0x01000193) ^ int(c)) & 0xffffffff
	}

	return result
}

// minimalPerfectHash places each key in its own slot in 0..len(keys)-1 so
// that slotOf finds it again.
//
// Keys are grouped into buckets by stringHash(0, key). G has one entry per
// bucket: for a bucket of several keys, the variant d of stringHash that
// sends all of them to free slots; for a bucket of one key, -slot-1 of the
// slot it was given directly. The second result maps each slot to the index
// of the key stored there.
func minimalPerfectHash(keys []string) ([]int32, []int) {
	size := len(keys)
	G := make([]int32, size)
	owner := make([]int, size)
	for i := range owner {
		owner[i] = -1
	}
	if size == 0 {
		return G, owner
	}

	type bucket struct {
		index int
		keys  []int
	}
	buckets := make([]bucket, size)
	for i := range buckets {
		buckets[i].index = i
	}
	for k, key := range keys {
		b := stringHash(0, key) % size
		buckets[b].keys = append(buckets[b].keys, k)
	}

	// the largest buckets are the hardest to place, so they go first
	sort.SliceStable(buckets, func(i, j int) bool {
		return len(buckets[i].keys) > len(buckets[j].keys)
	})

	next := 0
	slots := make([]int, 0, 8)
	for ; next < len(buckets) && len(buckets[next].keys) > 1; next++ {
		b := buckets[next]
		for d := int32(1); ; d++ {
			slots = slots[:0]
			for _, k := range b.keys {
				slot := stringHash(d, keys[k]) % size
				if owner[slot] != -1 || slices.Contains(slots, slot) {
					break
				}
				slots = append(slots, slot)
			}
			if len(slots) == len(b.keys) {
				G[b.index] = d
				break
			}
		}
		for i, k := range b.keys {
			owner[slots[i]] = k
		}
	}

	free := size - 1
	for ; next < len(buckets) && len(buckets[next].keys) == 1; next++ {
		for owner[free] != -1 {
			free--
		}
		b := buckets[next]
		G[b.index] = int32(-free - 1)
		owner[free] = b.keys[0]
	}

	return G, owner
}

// slotOf returns the slot a key is placed in, given the G array.
func slotOf(G []int32, key string) int {
	d := G[stringHash(0, key)%len(G)]
	if d < 0 {
		return int(-d - 1)
	}
	return stringHash(d, key) % len(G)
}
