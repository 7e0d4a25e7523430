package progpow

import (
	"encoding/hex"
	"strings"
	"testing"
)

// seedZeroTrace is the reference trace for seed 0 under DefaultConfig.
const seedZeroTrace = `global_load
cache_load src=29 dst=18 merge=rotr:6
math a=21 b=14 op=min dst=31 merge=mul_add
cache_load src=8 dst=13 merge=rotr:20
math a=22 b=16 op=and dst=19 merge=rotr:14
cache_load src=31 dst=3 merge=rotl:8
math a=13 b=14 op=clz dst=22 merge=rotr:28
cache_load src=4 dst=28 merge=xor_mul
math a=28 b=9 op=xor dst=0 merge=mul_add
cache_load src=1 dst=14 merge=rotl:13
math a=12 b=31 op=min dst=23 merge=rotl:7
cache_load src=18 dst=24 merge=xor_mul
math a=28 b=19 op=rotr dst=21 merge=mul_add
cache_load src=11 dst=5 merge=mul_add
math a=17 b=23 op=or dst=16 merge=rotl:22
cache_load src=27 dst=26 merge=mul_add
math a=5 b=10 op=min dst=12 merge=rotr:19
cache_load src=24 dst=20 merge=rotr:16
math a=29 b=6 op=and dst=4 merge=rotr:27
cache_load src=17 dst=27 merge=mul_add
math a=2 b=12 op=xor dst=11 merge=xor_mul
cache_load src=7 dst=10 merge=mul_add
math a=7 b=13 op=popcount dst=8 merge=rotl:26
math a=16 b=21 op=xor dst=7 merge=rotr:7
math a=28 b=21 op=or dst=1 merge=xor_mul
math a=0 b=2 op=clz dst=9 merge=rotr:3
math a=24 b=9 op=rotl dst=17 merge=rotl:12
math a=8 b=13 op=mul dst=25 merge=mul_add
math a=30 b=4 op=popcount dst=6 merge=mul_add
math a=6 b=24 op=and dst=29 merge=rotr:12
dataset_merge word=0 dst=0 merge=rotr:17
dataset_merge word=1 dst=15 merge=rotl:4
dataset_merge word=2 dst=2 merge=rotr:29
dataset_merge word=3 dst=30 merge=rotr:22
`

func mustProgram(t testing.TB, seed uint64, cfg Config) *Program {
	t.Helper()
	p, err := NewProgram(seed, cfg)
	if err != nil {
		t.Fatalf("NewProgram(%d) error = %v", seed, err)
	}
	return p
}

// TestProgramSeedZeroGolden is the end-to-end reference scenario.
func TestProgramSeedZeroGolden(t *testing.T) {
	p := mustProgram(t, 0, DefaultConfig())

	if got := p.String(); got != seedZeroTrace {
		t.Errorf("trace mismatch\ngot:\n%s\nwant:\n%s", got, seedZeroTrace)
	}
	if p.Len() != 34 {
		t.Errorf("Len() = %d, want 34", p.Len())
	}

	wantMath := map[MathOp]int{
		MathAnd: 3, MathClz: 2, MathMin: 3, MathMul: 1, MathOr: 2,
		MathPopcount: 2, MathRotL: 1, MathRotR: 1, MathXor: 3,
	}
	gotMath := p.MathHistogram()
	for op := MathOp(0); op < mathOpCount; op++ {
		if gotMath[op] != wantMath[op] {
			t.Errorf("MathHistogram()[%v] = %d, want %d", op, gotMath[op], wantMath[op])
		}
	}

	wantMerge := map[MergeOp]int{MergeMulAdd: 9, MergeXorMul: 4, MergeRotL: 7, MergeRotR: 13}
	gotMerge := p.MergeHistogram()
	for op := MergeOp(0); op < mergeOpCount; op++ {
		if gotMerge[op] != wantMerge[op] {
			t.Errorf("MergeHistogram()[%v] = %d, want %d", op, gotMerge[op], wantMerge[op])
		}
	}

	fp := p.Fingerprint()
	if got, want := hex.EncodeToString(fp[:]), "0f1035c6308890bdfc35271eae35f9bfdec1245d24f00a42ac4c968b152c3966"; got != want {
		t.Errorf("Fingerprint() = %s, want %s", got, want)
	}
}

// TestProgramShape verifies the fixed ordering: one global load, interleaved
// cache/math steps, then the deferred dataset merges.
func TestProgramShape(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"default", func(*Config) {}},
		{"more cache than math", func(c *Config) { c.CacheAccesses, c.MathOps = 20, 3 }},
		{"no cache loads", func(c *Config) { c.CacheAccesses = 0 }},
		{"no math", func(c *Config) { c.MathOps = 0 }},
		{"single dataset word", func(c *Config) { c.DatasetLoads = 1 }},
		{"two registers", func(c *Config) { c.Registers = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.cfg(&cfg)
			p := mustProgram(t, 12345, cfg)
			ins := p.Instructions()

			if want := 1 + cfg.CacheAccesses + cfg.MathOps + cfg.DatasetLoads; len(ins) != want {
				t.Fatalf("len = %d, want %d", len(ins), want)
			}
			if ins[0].Kind != KindGlobalLoad {
				t.Fatalf("first instruction = %v, want global load", ins[0].Kind)
			}

			// Expected interleaving of the loop body.
			i := 1
			steps := cfg.CacheAccesses
			if cfg.MathOps > steps {
				steps = cfg.MathOps
			}
			for step := 0; step < steps; step++ {
				if step < cfg.CacheAccesses {
					if ins[i].Kind != KindCacheLoad || ins[i].Step != step {
						t.Fatalf("instruction %d = %v step %d, want cache load step %d", i, ins[i].Kind, ins[i].Step, step)
					}
					i++
				}
				if step < cfg.MathOps {
					if ins[i].Kind != KindMath || ins[i].Step != step {
						t.Fatalf("instruction %d = %v step %d, want math step %d", i, ins[i].Kind, ins[i].Step, step)
					}
					i++
				}
			}

			for w := 0; w < cfg.DatasetLoads; w++ {
				in := ins[i+w]
				if in.Kind != KindDatasetMerge || in.Word != w {
					t.Fatalf("instruction %d = %v word %d, want dataset merge word %d", i+w, in.Kind, in.Word, w)
				}
			}
			if ins[i].Dst != 0 {
				t.Errorf("dataset word 0 merged into mix[%d], want mix[0]", ins[i].Dst)
			}
		})
	}
}

// TestProgramMathSourcesDistinct checks every math step reads two registers.
func TestProgramMathSourcesDistinct(t *testing.T) {
	cfg := DefaultConfig()
	for seed := uint64(0); seed < 500; seed++ {
		p := mustProgram(t, seed, cfg)
		for _, in := range p.instructions {
			if in.Kind == KindMath && in.Src == in.Src2 {
				t.Fatalf("seed %d step %d: math sources equal (%d)", seed, in.Step, in.Src)
			}
		}
	}
}

// TestProgramRegisterSchedule verifies destinations follow the destination
// permutation round-robin and cache sources follow the cache permutation.
func TestProgramRegisterSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheAccesses, cfg.MathOps = 40, 50 // exceed one full cycle

	for seed := uint64(0); seed < 50; seed++ {
		p := mustProgram(t, seed, cfg)
		dstOrder := p.DestinationSequence()
		cacheOrder := p.CacheSequence()

		if !isPermutation(dstOrder, cfg.Registers) || !isPermutation(cacheOrder, cfg.Registers) {
			t.Fatalf("seed %d: sequences are not permutations", seed)
		}

		var dn, cn int
		for _, in := range p.instructions {
			switch in.Kind {
			case KindCacheLoad:
				if want := cacheOrder[cn%cfg.Registers]; in.Src != want {
					t.Fatalf("seed %d: cache load %d reads mix[%d], want mix[%d]", seed, cn, in.Src, want)
				}
				cn++
				fallthrough
			case KindMath:
				if want := dstOrder[dn%cfg.Registers]; in.Dst != want {
					t.Fatalf("seed %d: destination %d = mix[%d], want mix[%d]", seed, dn, in.Dst, want)
				}
				dn++
			case KindDatasetMerge:
				if in.Word == 0 {
					continue
				}
				if want := dstOrder[dn%cfg.Registers]; in.Dst != want {
					t.Fatalf("seed %d: dataset word %d into mix[%d], want mix[%d]", seed, in.Word, in.Dst, want)
				}
				dn++
			}
		}
	}
}

// TestProgramDeterminism checks repeated generation yields identical programs.
func TestProgramDeterminism(t *testing.T) {
	for _, seed := range []uint64{0, 1, 600, 1 << 32, 0xffffffffffffffff} {
		a := mustProgram(t, seed, DefaultConfig())
		b := mustProgram(t, seed, DefaultConfig())
		if !a.Equal(b) {
			t.Errorf("seed %d: programs differ", seed)
		}
		if a.Fingerprint() != b.Fingerprint() {
			t.Errorf("seed %d: fingerprints differ", seed)
		}
	}

	if mustProgram(t, 1, DefaultConfig()).Equal(mustProgram(t, 2, DefaultConfig())) {
		t.Error("seeds 1 and 2 produced the same program")
	}
}

// TestProgramAccessorsCopy verifies callers cannot mutate a shared program.
func TestProgramAccessorsCopy(t *testing.T) {
	p := mustProgram(t, 9, DefaultConfig())
	before := p.String()

	ins := p.Instructions()
	ins[1].Dst = 99
	p.DestinationSequence()[0] = 99
	p.CacheSequence()[0] = 99

	if p.String() != before {
		t.Error("mutating returned slices changed the program")
	}
	if p.Seed() != 9 {
		t.Errorf("Seed() = %d, want 9", p.Seed())
	}
	if p.Config() != DefaultConfig() {
		t.Errorf("Config() = %+v, want default", p.Config())
	}
}

// TestProgramEqualNil covers the nil cases of Equal.
func TestProgramEqualNil(t *testing.T) {
	var a, b *Program
	if !a.Equal(b) {
		t.Error("nil programs should be equal")
	}
	if mustProgram(t, 0, DefaultConfig()).Equal(nil) {
		t.Error("program should not equal nil")
	}
}

// TestNewProgramInvalidConfig verifies configuration errors are surfaced.
func TestNewProgramInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registers = 0
	if _, err := NewProgram(0, cfg); err == nil {
		t.Error("NewProgram() should reject zero registers")
	}
}

// TestInstructionString covers every kind's trace line.
func TestInstructionString(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Kind: KindGlobalLoad}, "global_load"},
		{Instruction{Kind: KindCacheLoad, Src: 1, Dst: 2, Merge: Merge{Op: MergeRotL, Rotate: 5}}, "cache_load src=1 dst=2 merge=rotl:5"},
		{Instruction{Kind: KindMath, Src: 3, Src2: 4, Math: MathMulHi, Dst: 5, Merge: Merge{Op: MergeXorMul}}, "math a=3 b=4 op=mul_hi dst=5 merge=xor_mul"},
		{Instruction{Kind: KindDatasetMerge, Word: 2, Dst: 7}, "dataset_merge word=2 dst=7 merge=mul_add"},
		{Instruction{Kind: Kind(9)}, "Kind(9)"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// TestProgramStringLines checks one line per instruction.
func TestProgramStringLines(t *testing.T) {
	p := mustProgram(t, 77, DefaultConfig())
	lines := strings.Split(strings.TrimSuffix(p.String(), "\n"), "\n")
	if len(lines) != p.Len() {
		t.Errorf("trace has %d lines, want %d", len(lines), p.Len())
	}
}

func BenchmarkNewProgram(b *testing.B) {
	cfg := DefaultConfig()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := NewProgram(uint64(i), cfg); err != nil {
			b.Fatal(err)
		}
	}
}
