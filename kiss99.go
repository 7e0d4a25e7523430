package progpow

// fnvOffsetBasis is the 32-bit FNV-1a offset basis used to seed kiss99.
const fnvOffsetBasis = 0x811c9dc5

// fnvPrime is the 32-bit FNV prime.
const fnvPrime = 0x1000193

// fnv1a folds d into the accumulator h and returns the new accumulator value.
// The accumulator is updated in place so that successive calls form a chain.
func fnv1a(h *uint32, d uint32) uint32 {
	*h = (*h ^ d) * fnvPrime
	return *h
}

// kiss99 is Marsaglia's KISS99 generator: a multiply-with-carry pair,
// a 3-shift register and a linear congruential generator, combined.
//
// The output sequence is part of the consensus contract. Every node must draw
// the exact same values in the exact same order, so the arithmetic below must
// not be "improved" in any way.
type kiss99 struct {
	z     uint32
	w     uint32
	jsr   uint32
	jcong uint32
}

// newKiss99 seeds a generator from a 64-bit program seed.
// The low and high halves are each folded twice through one FNV-1a chain.
func newKiss99(seed uint64) *kiss99 {
	lo := uint32(seed)
	hi := uint32(seed >> 32)

	h := uint32(fnvOffsetBasis)
	k := &kiss99{}
	k.z = fnv1a(&h, lo)
	k.w = fnv1a(&h, hi)
	k.jsr = fnv1a(&h, lo)
	k.jcong = fnv1a(&h, hi)

	traceKiss99("kiss99 seeded", k)
	return k
}

// next advances the generator and returns the next 32-bit output.
func (k *kiss99) next() uint32 {
	k.z = 36969*(k.z&0xffff) + (k.z >> 16)
	k.w = 18000*(k.w&0xffff) + (k.w >> 16)
	mwc := (k.z << 16) + k.w

	k.jsr ^= k.jsr << 17
	k.jsr ^= k.jsr >> 13
	k.jsr ^= k.jsr << 5

	k.jcong = 69069*k.jcong + 1234567

	return (mwc ^ k.jcong) + k.jsr
}
