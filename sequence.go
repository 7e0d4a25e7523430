package progpow

import (
	"golang.org/x/exp/slices"
)

// mixSequence is a permutation of register indices read round-robin.
//
// Merges are read-modify-write, so walking a full permutation of destinations
// guarantees every register is modified within any window of len(order)
// reads. Walking a permutation of cache sources guarantees no cache load is
// duplicated (and therefore optimised away) before all others were issued.
type mixSequence struct {
	order  []int
	cursor int
}

// next returns the next register index and advances the cursor.
// After len(order) reads the same order is replayed.
func (s *mixSequence) next() int {
	v := s.order[s.cursor%len(s.order)]
	s.cursor++
	return v
}

// snapshot returns a copy of the underlying permutation.
func (s *mixSequence) snapshot() []int {
	return slices.Clone(s.order)
}

// newMixSequences builds the destination and cache-source permutations for
// the given register count. Both start as the identity and are shuffled with
// one interleaved Fisher-Yates pass: per position, one draw for the
// destination array followed by one draw for the cache array.
func newMixSequences(rng *kiss99, registers int) (dst, cache *mixSequence) {
	dst = &mixSequence{order: make([]int, registers)}
	cache = &mixSequence{order: make([]int, registers)}
	for i := 0; i < registers; i++ {
		dst.order[i] = i
		cache.order[i] = i
	}

	for i := registers - 1; i > 0; i-- {
		j := int(rng.next() % uint32(i+1))
		dst.order[i], dst.order[j] = dst.order[j], dst.order[i]

		j = int(rng.next() % uint32(i+1))
		cache.order[i], cache.order[j] = cache.order[j], cache.order[i]
	}

	traceSequence("mix_seq_dst", dst.order)
	traceSequence("mix_seq_cache", cache.order)
	return dst, cache
}
