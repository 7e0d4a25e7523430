package progpow

import (
	"bytes"
	"fmt"
	"strconv"
)

// Render emits the program as progPowLoop source in the given dialect.
// The instruction order is preserved exactly; only surface syntax and
// synchronisation idioms depend on the dialect.
func (p *Program) Render(dialect Dialect) (string, error) {
	prof, err := profileFor(dialect)
	if err != nil {
		return "", err
	}

	buf := getBuffer()
	defer putBuffer(buf)

	r := renderer{buf: buf, prof: prof}
	r.header(p)
	r.body(p.instructions)

	logger().Debug("Rendered ProgPoW kernel", "seed", p.seed, "dialect", dialect, "bytes", buf.Len())
	return buf.String(), nil
}

type renderer struct {
	buf  *bytes.Buffer
	prof *dialectProfile
}

func (r *renderer) line(s string) {
	r.buf.WriteString(s)
	r.buf.WriteByte('\n')
}

func (r *renderer) linef(format string, args ...interface{}) {
	fmt.Fprintf(r.buf, format, args...)
	r.buf.WriteByte('\n')
}

// header writes the preamble, the PROGPOW_* constants and the signature.
func (r *renderer) header(p *Program) {
	cfg := p.config

	if r.prof.groupShare {
		r.line("#ifndef GROUP_SIZE")
		r.line("#define GROUP_SIZE 128")
		r.line("#endif")
		r.linef("#define GROUP_SHARE (GROUP_SIZE / %d)", cfg.Lanes)
		r.line("")
	}
	r.buf.WriteString(r.prof.preamble)

	r.linef("#define PROGPOW_LANES           %d", cfg.Lanes)
	r.linef("#define PROGPOW_REGS            %d", cfg.Registers)
	r.linef("#define PROGPOW_DAG_LOADS       %d", cfg.DatasetLoads)
	r.linef("#define PROGPOW_CACHE_WORDS     %d", cfg.CacheWords)
	r.linef("#define PROGPOW_CNT_DAG         %d", cfg.DatasetAccesses)
	r.linef("#define PROGPOW_CNT_MATH        %d", cfg.MathOps)
	if cfg.DatasetElements != 0 {
		r.line("#ifndef PROGPOW_DAG_ELEMENTS")
		r.linef("#define PROGPOW_DAG_ELEMENTS    %d", cfg.DatasetElements)
		r.line("#endif")
	}
	r.line("")

	r.buf.WriteString(r.prof.dagType)
	r.line("")
	r.linef("// Inner loop for prog_seed %d", p.seed)
	r.buf.WriteString(r.prof.signature)
}

// body writes the function body for the instruction sequence.
func (r *renderer) body(instructions []Instruction) {
	r.line("{")
	r.line("dag_t data_dag;")
	r.line("uint32_t offset, data;")
	if r.prof.localMix {
		r.line("uint32_t mix[PROGPOW_REGS];")
		r.line("for(int i=0; i<PROGPOW_REGS; i++)")
		r.line("    mix[i] = mix_arg[i];")
	}
	r.buf.WriteString(r.prof.laneSetup)

	consuming := false
	for _, in := range instructions {
		switch in.Kind {
		case KindGlobalLoad:
			// Lanes access sequential locations. mix[0] is hard-coded so
			// the address depends on the previous loop's load.
			r.line("// global load")
			r.buf.WriteString(r.prof.broadcast)
			r.line("offset %= PROGPOW_DAG_ELEMENTS;")
			r.line("offset = offset * PROGPOW_LANES + (lane_id ^ loop) % PROGPOW_LANES;")
			r.line("data_dag = g_dag[offset];")
			r.line("// hack to prevent compiler from reordering LD and usage")
			r.buf.WriteString(r.prof.fence)

		case KindCacheLoad:
			r.linef("// cache load %d", in.Step)
			r.linef("offset = %s %% PROGPOW_CACHE_WORDS;", mixReg(in.Src))
			r.line("data = c_dag[offset];")
			r.line(mergeText(mixReg(in.Dst), "data", in.Merge))

		case KindMath:
			r.linef("// random math %d", in.Step)
			r.line(mathText("data", mixReg(in.Src), mixReg(in.Src2), in.Math))
			r.line(mergeText(mixReg(in.Dst), "data", in.Merge))

		case KindDatasetMerge:
			if !consuming {
				// Consume the global load only at the very end of the
				// loop to hide its latency.
				r.line("// consume global load data")
				r.line("// hack to prevent compiler from reordering LD and usage")
				r.buf.WriteString(r.prof.fence)
				consuming = true
			}
			r.line(mergeText(mixReg(in.Dst), "data_dag.s["+strconv.Itoa(in.Word)+"]", in.Merge))
		}
	}

	if r.prof.localMix {
		r.line("for(int i=0; i<PROGPOW_REGS; i++)")
		r.line("    mix_arg[i] = mix[i];")
	}
	r.line("}")
	r.line("")
}

func mixReg(i int) string {
	return "mix[" + strconv.Itoa(i) + "]"
}

// mergeText spells "a = merge(a, b)".
func mergeText(a, b string, m Merge) string {
	switch m.Op {
	case MergeMulAdd:
		return a + " = (" + a + " * 33) + " + b + ";"
	case MergeXorMul:
		return a + " = (" + a + " ^ " + b + ") * 33;"
	case MergeRotL:
		return a + " = ROTL32(" + a + ", " + strconv.FormatUint(uint64(m.Rotate), 10) + ") ^ " + b + ";"
	case MergeRotR:
		return a + " = ROTR32(" + a + ", " + strconv.FormatUint(uint64(m.Rotate), 10) + ") ^ " + b + ";"
	}
	panic(fmt.Sprintf("progpow: unknown merge op %v", m.Op))
}

// mathText spells "d = op(a, b)".
func mathText(d, a, b string, op MathOp) string {
	switch op {
	case MathAdd:
		return d + " = " + a + " + " + b + ";"
	case MathMul:
		return d + " = " + a + " * " + b + ";"
	case MathMulHi:
		return d + " = mul_hi(" + a + ", " + b + ");"
	case MathMin:
		return d + " = min(" + a + ", " + b + ");"
	case MathRotL:
		return d + " = ROTL32(" + a + ", " + b + " % 32);"
	case MathRotR:
		return d + " = ROTR32(" + a + ", " + b + " % 32);"
	case MathAnd:
		return d + " = " + a + " & " + b + ";"
	case MathOr:
		return d + " = " + a + " | " + b + ";"
	case MathXor:
		return d + " = " + a + " ^ " + b + ";"
	case MathClz:
		return d + " = clz(" + a + ") + clz(" + b + ");"
	case MathPopcount:
		return d + " = popcount(" + a + ") + popcount(" + b + ");"
	}
	panic(fmt.Sprintf("progpow: unknown math op %v", op))
}
