package progpow

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/opd-ai/go-progpow/internal"
)

// Kind identifies the role of an instruction in the inner loop.
type Kind uint8

const (
	// KindGlobalLoad computes the dataset address from mix[0] and issues
	// the dataset read. Its words are consumed only at the end of the loop.
	KindGlobalLoad Kind = iota

	// KindCacheLoad reads one cache word addressed by a mix register and
	// merges it into a destination register.
	KindCacheLoad

	// KindMath combines two distinct mix registers and merges the result
	// into a destination register.
	KindMath

	// KindDatasetMerge merges one word of the global load into a register.
	KindDatasetMerge
)

var kindNames = [...]string{
	KindGlobalLoad:   "global_load",
	KindCacheLoad:    "cache_load",
	KindMath:         "math",
	KindDatasetMerge: "dataset_merge",
}

// String returns the trace token for the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Instruction is one step of a generated program.
// Fields that do not apply to the instruction's Kind are zero.
type Instruction struct {
	Kind  Kind
	Step  int // loop iteration for cache loads and math steps
	Word  int // dataset word index for dataset merges
	Dst   int // destination register
	Src   int // cache-load address register, or first math operand
	Src2  int // second math operand
	Math  MathOp
	Merge Merge
}

// String returns the canonical trace line for the instruction.
func (in Instruction) String() string {
	switch in.Kind {
	case KindGlobalLoad:
		return in.Kind.String()
	case KindCacheLoad:
		return fmt.Sprintf("cache_load src=%d dst=%d merge=%s", in.Src, in.Dst, in.Merge)
	case KindMath:
		return fmt.Sprintf("math a=%d b=%d op=%s dst=%d merge=%s", in.Src, in.Src2, in.Math, in.Dst, in.Merge)
	case KindDatasetMerge:
		return fmt.Sprintf("dataset_merge word=%d dst=%d merge=%s", in.Word, in.Dst, in.Merge)
	default:
		return in.Kind.String()
	}
}

// Program is the dialect-independent instruction sequence generated for one
// program seed. A Program is immutable and safe to share between goroutines.
type Program struct {
	seed         uint64
	config       Config
	instructions []Instruction
	dstOrder     []int
	cacheOrder   []int
}

// NewProgram validates cfg and generates the program for seed.
func NewProgram(seed uint64, cfg Config) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return generateProgram(seed, cfg), nil
}

// generateProgram assembles the inner loop. cfg must already be valid.
//
// The order of engine draws below is the consensus contract: every call to
// rng.next, dst.next and cache.next happens in the same place for every
// implementation.
func generateProgram(seed uint64, cfg Config) *Program {
	rng := newKiss99(seed)
	dst, cache := newMixSequences(rng, cfg.Registers)

	steps := cfg.CacheAccesses
	if cfg.MathOps > steps {
		steps = cfg.MathOps
	}

	p := &Program{
		seed:         seed,
		config:       cfg,
		instructions: make([]Instruction, 0, 1+cfg.CacheAccesses+cfg.MathOps+cfg.DatasetLoads),
		dstOrder:     dst.snapshot(),
		cacheOrder:   cache.snapshot(),
	}

	// Issue the dataset load first so its latency overlaps the loop body.
	p.emit(Instruction{Kind: KindGlobalLoad})

	for i := 0; i < steps; i++ {
		if i < cfg.CacheAccesses {
			src := cache.next()
			d := dst.next()
			r := rng.next()
			p.emit(Instruction{
				Kind:  KindCacheLoad,
				Step:  i,
				Src:   src,
				Dst:   d,
				Merge: decodeMerge(r),
			})
		}
		if i < cfg.MathOps {
			a, b := pickSources(rng, cfg.Registers)
			r1 := rng.next()
			d := dst.next()
			r2 := rng.next()
			p.emit(Instruction{
				Kind:  KindMath,
				Step:  i,
				Src:   a,
				Src2:  b,
				Math:  decodeMath(r1),
				Dst:   d,
				Merge: decodeMerge(r2),
			})
		}
	}

	// mix[0] always absorbs the first dataset word so the next loop's
	// address depends on this loop's load.
	p.emit(Instruction{Kind: KindDatasetMerge, Word: 0, Dst: 0, Merge: decodeMerge(rng.next())})
	for w := 1; w < cfg.DatasetLoads; w++ {
		d := dst.next()
		r := rng.next()
		p.emit(Instruction{Kind: KindDatasetMerge, Word: w, Dst: d, Merge: decodeMerge(r)})
	}

	logger().Debug("Generated ProgPoW program", "seed", seed, "instructions", len(p.instructions))
	return p
}

func (p *Program) emit(in Instruction) {
	traceInstruction(len(p.instructions), in)
	p.instructions = append(p.instructions, in)
}

// Seed returns the program seed the program was generated from.
func (p *Program) Seed() uint64 {
	return p.seed
}

// Config returns the parameters the program was generated with.
func (p *Program) Config() Config {
	return p.config
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.instructions)
}

// Instructions returns a copy of the instruction sequence.
func (p *Program) Instructions() []Instruction {
	return slices.Clone(p.instructions)
}

// DestinationSequence returns a copy of the destination-register permutation.
func (p *Program) DestinationSequence() []int {
	return slices.Clone(p.dstOrder)
}

// CacheSequence returns a copy of the cache-source permutation.
func (p *Program) CacheSequence() []int {
	return slices.Clone(p.cacheOrder)
}

// Equal reports whether two programs consist of the same instructions.
func (p *Program) Equal(other *Program) bool {
	if p == nil || other == nil {
		return p == other
	}
	return slices.Equal(p.instructions, other.instructions)
}

// String returns the canonical trace: one line per instruction, each line
// terminated by a newline.
func (p *Program) String() string {
	var b strings.Builder
	for _, in := range p.instructions {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Fingerprint returns the Blake2b-256 digest of the canonical trace.
// Two implementations agree on a seed exactly when their fingerprints match.
func (p *Program) Fingerprint() [32]byte {
	h, err := internal.NewBlake2bStream(32, nil)
	if err != nil {
		// Unkeyed 32-byte Blake2b cannot fail.
		panic(err)
	}
	for _, in := range p.instructions {
		h.WriteString(in.String())
		h.WriteString("\n")
	}
	return h.Sum256()
}

// MathHistogram counts the math operations used by the program.
func (p *Program) MathHistogram() map[MathOp]int {
	h := make(map[MathOp]int)
	for _, in := range p.instructions {
		if in.Kind == KindMath {
			h[in.Math]++
		}
	}
	return h
}

// MergeHistogram counts the merge operations used by the program.
func (p *Program) MergeHistogram() map[MergeOp]int {
	h := make(map[MergeOp]int)
	for _, in := range p.instructions {
		if in.Kind != KindGlobalLoad {
			h[in.Merge.Op]++
		}
	}
	return h
}
