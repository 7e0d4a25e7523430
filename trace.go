package progpow

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedKernel is returned when kernel text cannot be traced.
	ErrMalformedKernel = errors.New("progpow: malformed kernel")

	// ErrTraceMismatch is returned when two kernels spell different programs.
	ErrTraceMismatch = errors.New("progpow: kernel traces differ")
)

// Line patterns for the shared instruction spelling. Dialect-specific lines
// (preamble, broadcast, fences, scratch copies) match none of them.
var (
	reGlobalLoad = regexp.MustCompile(`^data_dag = g_dag\[offset\];$`)
	reCacheStep  = regexp.MustCompile(`^// cache load (\d+)$`)
	reCacheAddr  = regexp.MustCompile(`^offset = mix\[(\d+)\] % PROGPOW_CACHE_WORDS;$`)
	reMathStep   = regexp.MustCompile(`^// random math (\d+)$`)

	reMathInfix = regexp.MustCompile(`^data = mix\[(\d+)\] ([+*&|^]) mix\[(\d+)\];$`)
	reMathCall  = regexp.MustCompile(`^data = (mul_hi|min)\(mix\[(\d+)\], mix\[(\d+)\]\);$`)
	reMathRot   = regexp.MustCompile(`^data = ROT([LR])32\(mix\[(\d+)\], mix\[(\d+)\] % 32\);$`)
	reMathCount = regexp.MustCompile(`^data = (clz|popcount)\(mix\[(\d+)\]\) \+ (clz|popcount)\(mix\[(\d+)\]\);$`)

	reMergeMulAdd = regexp.MustCompile(`^mix\[(\d+)\] = \(mix\[(\d+)\] \* 33\) \+ (\S+);$`)
	reMergeXorMul = regexp.MustCompile(`^mix\[(\d+)\] = \(mix\[(\d+)\] \^ (\S+)\) \* 33;$`)
	reMergeRot    = regexp.MustCompile(`^mix\[(\d+)\] = ROT([LR])32\(mix\[(\d+)\], (\d+)\) \^ (\S+);$`)

	reDatasetWord = regexp.MustCompile(`^data_dag\.s\[(\d+)\]$`)
)

var infixMathOps = map[string]MathOp{
	"+": MathAdd,
	"*": MathMul,
	"&": MathAnd,
	"|": MathOr,
	"^": MathXor,
}

// Loop phases in the order a kernel must pass through them.
const (
	phaseEntry   = iota // before the global load
	phaseBody           // cache loads and math steps
	phaseConsume        // dataset merges
)

// traceParser is a line-driven state machine: step comments and operand
// lines fill pending, and the merge line completes the instruction.
type traceParser struct {
	out      []Instruction
	pending  *Instruction
	haveMath bool
	phase    int
	lineNo   int
}

// ParseKernel recovers the instruction sequence from rendered kernel text in
// any dialect. It is the inverse of Program.Render for the instruction list.
// The text must contain exactly one global load, followed by the cache and
// math steps, followed by at least one dataset merge.
func ParseKernel(text string) ([]Instruction, error) {
	p := &traceParser{}
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		p.lineNo++
		if err := p.parseLine(strings.TrimSpace(sc.Text())); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKernel, err)
	}
	if p.pending != nil {
		return nil, p.errorf("unterminated %v step", p.pending.Kind)
	}
	switch p.phase {
	case phaseEntry:
		return nil, fmt.Errorf("%w: no global load", ErrMalformedKernel)
	case phaseBody:
		return nil, fmt.Errorf("%w: global load is never consumed", ErrMalformedKernel)
	}
	return p.out, nil
}

func (p *traceParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedKernel, p.lineNo, fmt.Sprintf(format, args...))
}

func (p *traceParser) begin(kind Kind, step string) error {
	if p.pending != nil {
		return p.errorf("%v step started before previous %v step merged", kind, p.pending.Kind)
	}
	switch p.phase {
	case phaseEntry:
		return p.errorf("%v step before the global load", kind)
	case phaseConsume:
		return p.errorf("%v step after a dataset merge", kind)
	}
	n, _ := strconv.Atoi(step)
	p.pending = &Instruction{Kind: kind, Step: n}
	p.haveMath = false
	return nil
}

func (p *traceParser) parseLine(line string) error {
	if m := reGlobalLoad.FindStringSubmatch(line); m != nil {
		if p.phase != phaseEntry {
			return p.errorf("second global load")
		}
		p.out = append(p.out, Instruction{Kind: KindGlobalLoad})
		p.phase = phaseBody
		return nil
	}
	if m := reCacheStep.FindStringSubmatch(line); m != nil {
		return p.begin(KindCacheLoad, m[1])
	}
	if m := reMathStep.FindStringSubmatch(line); m != nil {
		return p.begin(KindMath, m[1])
	}
	if m := reCacheAddr.FindStringSubmatch(line); m != nil {
		if p.pending == nil || p.pending.Kind != KindCacheLoad {
			return p.errorf("cache address outside a cache load")
		}
		p.pending.Src = atoi(m[1])
		return nil
	}
	if strings.HasPrefix(line, "data = ") && line != "data = c_dag[offset];" {
		return p.parseMath(line)
	}
	// mix[i] only appears in the scratch copy loops.
	if strings.HasPrefix(line, "mix[") && !strings.HasPrefix(line, "mix[i]") {
		return p.parseMerge(line)
	}
	return nil
}

func (p *traceParser) parseMath(line string) error {
	if p.pending == nil || p.pending.Kind != KindMath {
		return p.errorf("math expression outside a math step")
	}
	in := p.pending
	switch {
	case reMathInfix.MatchString(line):
		m := reMathInfix.FindStringSubmatch(line)
		op, ok := infixMathOps[m[2]]
		if !ok {
			return p.errorf("unknown math operator %q", m[2])
		}
		in.Src, in.Math, in.Src2 = atoi(m[1]), op, atoi(m[3])
	case reMathCall.MatchString(line):
		m := reMathCall.FindStringSubmatch(line)
		in.Math = MathMulHi
		if m[1] == "min" {
			in.Math = MathMin
		}
		in.Src, in.Src2 = atoi(m[2]), atoi(m[3])
	case reMathRot.MatchString(line):
		m := reMathRot.FindStringSubmatch(line)
		in.Math = MathRotL
		if m[1] == "R" {
			in.Math = MathRotR
		}
		in.Src, in.Src2 = atoi(m[2]), atoi(m[3])
	case reMathCount.MatchString(line):
		m := reMathCount.FindStringSubmatch(line)
		if m[1] != m[3] {
			return p.errorf("mixed count operators %q and %q", m[1], m[3])
		}
		in.Math = MathClz
		if m[1] == "popcount" {
			in.Math = MathPopcount
		}
		in.Src, in.Src2 = atoi(m[2]), atoi(m[4])
	default:
		return p.errorf("unrecognised math expression %q", line)
	}
	p.haveMath = true
	return nil
}

func (p *traceParser) parseMerge(line string) error {
	var dst, self int
	var src string
	var merge Merge

	if m := reMergeMulAdd.FindStringSubmatch(line); m != nil {
		dst, self, src = atoi(m[1]), atoi(m[2]), m[3]
		merge.Op = MergeMulAdd
	} else if m := reMergeXorMul.FindStringSubmatch(line); m != nil {
		dst, self, src = atoi(m[1]), atoi(m[2]), m[3]
		merge.Op = MergeXorMul
	} else if m := reMergeRot.FindStringSubmatch(line); m != nil {
		dst, self, src = atoi(m[1]), atoi(m[3]), m[5]
		merge.Op = MergeRotL
		if m[2] == "R" {
			merge.Op = MergeRotR
		}
		merge.Rotate = uint32(atoi(m[4]))
		if merge.Rotate < 1 || merge.Rotate > 31 {
			return p.errorf("merge rotation %d out of range", merge.Rotate)
		}
	} else {
		return p.errorf("unrecognised merge %q", line)
	}
	if dst != self {
		return p.errorf("merge writes mix[%d] but reads mix[%d]", dst, self)
	}

	if m := reDatasetWord.FindStringSubmatch(src); m != nil {
		if p.pending != nil {
			return p.errorf("dataset merge inside a %v step", p.pending.Kind)
		}
		if p.phase == phaseEntry {
			return p.errorf("dataset merge before the global load")
		}
		p.phase = phaseConsume
		p.out = append(p.out, Instruction{Kind: KindDatasetMerge, Word: atoi(m[1]), Dst: dst, Merge: merge})
		return nil
	}
	if src != "data" {
		return p.errorf("unexpected merge source %q", src)
	}
	if p.pending == nil {
		return p.errorf("merge outside a cache load or math step")
	}
	if p.pending.Kind == KindMath && !p.haveMath {
		return p.errorf("math step merged before its expression")
	}
	in := *p.pending
	in.Dst = dst
	in.Merge = merge
	p.out = append(p.out, in)
	p.pending = nil
	return nil
}

// atoi converts a string already matched by \d+.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// CompareKernels traces both kernels and reports the first instruction at
// which they diverge. Kernels in different dialects compare equal when they
// were rendered from the same program.
func CompareKernels(a, b string) error {
	ta, err := ParseKernel(a)
	if err != nil {
		return fmt.Errorf("first kernel: %w", err)
	}
	tb, err := ParseKernel(b)
	if err != nil {
		return fmt.Errorf("second kernel: %w", err)
	}
	n := len(ta)
	if len(tb) < n {
		n = len(tb)
	}
	for i := 0; i < n; i++ {
		if ta[i] != tb[i] {
			return fmt.Errorf("%w: instruction %d: %q != %q", ErrTraceMismatch, i, ta[i], tb[i])
		}
	}
	if len(ta) != len(tb) {
		return fmt.Errorf("%w: lengths %d != %d", ErrTraceMismatch, len(ta), len(tb))
	}
	return nil
}
