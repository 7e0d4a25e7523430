package progpow

import (
	"fmt"
)

// MergeOp selects how a new value is folded into a destination register.
// Every merge assumes the destination has high entropy and only uses
// operations that retain it, even when the merged value has little.
type MergeOp uint8

const (
	// MergeMulAdd computes dst = dst*33 + src.
	MergeMulAdd MergeOp = iota
	// MergeXorMul computes dst = (dst ^ src) * 33.
	MergeXorMul
	// MergeRotL computes dst = rotl32(dst, n) ^ src.
	MergeRotL
	// MergeRotR computes dst = rotr32(dst, n) ^ src.
	MergeRotR

	mergeOpCount = 4
)

var mergeOpNames = [mergeOpCount]string{
	MergeMulAdd: "mul_add",
	MergeXorMul: "xor_mul",
	MergeRotL:   "rotl",
	MergeRotR:   "rotr",
}

// String returns the trace token for the merge operation.
func (op MergeOp) String() string {
	if int(op) < len(mergeOpNames) {
		return mergeOpNames[op]
	}
	return fmt.Sprintf("MergeOp(%d)", op)
}

// Merge is a fully decoded merge: the operation plus its rotation amount.
// Rotate is in [1, 31] for MergeRotL and MergeRotR, and zero otherwise.
type Merge struct {
	Op     MergeOp
	Rotate uint32
}

// String returns the trace token, e.g. "mul_add" or "rotl:13".
func (m Merge) String() string {
	switch m.Op {
	case MergeRotL, MergeRotR:
		return fmt.Sprintf("%s:%d", m.Op, m.Rotate)
	default:
		return m.Op.String()
	}
}

// decodeMerge derives a merge from one engine output.
func decodeMerge(r uint32) Merge {
	m := Merge{Op: MergeOp(r % mergeOpCount)}
	if m.Op == MergeRotL || m.Op == MergeRotR {
		m.Rotate = ((r >> 16) % 31) + 1
	}
	return m
}

// MathOp selects the binary operation of a random math step.
type MathOp uint8

const (
	MathAdd      MathOp = iota // a + b
	MathMul                    // low 32 bits of a * b
	MathMulHi                  // high 32 bits of a * b
	MathMin                    // min(a, b)
	MathRotL                   // rotl32(a, b % 32)
	MathRotR                   // rotr32(a, b % 32)
	MathAnd                    // a & b
	MathOr                     // a | b
	MathXor                    // a ^ b
	MathClz                    // clz(a) + clz(b)
	MathPopcount               // popcount(a) + popcount(b)

	mathOpCount = 11
)

var mathOpNames = [mathOpCount]string{
	MathAdd:      "add",
	MathMul:      "mul",
	MathMulHi:    "mul_hi",
	MathMin:      "min",
	MathRotL:     "rotl",
	MathRotR:     "rotr",
	MathAnd:      "and",
	MathOr:       "or",
	MathXor:      "xor",
	MathClz:      "clz",
	MathPopcount: "popcount",
}

// String returns the trace token for the math operation.
func (op MathOp) String() string {
	if int(op) < len(mathOpNames) {
		return mathOpNames[op]
	}
	return fmt.Sprintf("MathOp(%d)", op)
}

// decodeMath derives a math operation from one engine output.
func decodeMath(r uint32) MathOp {
	return MathOp(r % mathOpCount)
}

// pickSources draws two distinct register indices in [0, registers).
// A single draw selects from the (registers-1)*registers ordered pairs,
// and the second index skips over the first.
func pickSources(rng *kiss99, registers int) (a, b int) {
	n := uint32(registers)
	t := rng.next() % ((n - 1) * n)
	a = int(t % n)
	b = int(t / n)
	if b >= a {
		b++
	}
	return a, b
}
