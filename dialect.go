package progpow

import (
	"fmt"
	"strings"
)

// Dialect selects the source language a program is rendered in.
type Dialect int

const (
	// CUDA renders the loop for NVIDIA's CUDA compiler (NVRTC).
	CUDA Dialect = iota

	// OpenCL renders the loop as OpenCL C.
	OpenCL
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case CUDA:
		return "CUDA"
	case OpenCL:
		return "OpenCL"
	default:
		return fmt.Sprintf("Dialect(%d)", d)
	}
}

// ParseDialect maps a case-insensitive name ("cuda", "opencl" or "cl")
// to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "cuda":
		return CUDA, nil
	case "opencl", "cl":
		return OpenCL, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

// dialectProfile holds every spelling that differs between dialects.
// Instruction text (merges, math, cache loads) is shared: both preambles
// define ROTL32, ROTR32, min, mul_hi, clz and popcount with the same meaning.
type dialectProfile struct {
	// groupShare emits GROUP_SIZE/GROUP_SHARE for the local-memory
	// broadcast buffer.
	groupShare bool

	// preamble holds type aliases and operator macros.
	preamble string

	// dagType declares dag_t, the per-lane dataset entry.
	dagType string

	// signature is the progPowLoop declaration, without the opening brace.
	signature string

	// localMix copies the caller's register array into a private array at
	// entry and back at exit. This works around an AMD OpenCL compiler
	// defect that miscompiles updates to the volatile argument array.
	// It does not change the loop's semantics.
	localMix bool

	// laneSetup derives the lane (and group) identifiers.
	laneSetup string

	// broadcast makes mix[0] of lane (loop % LANES) visible to all lanes
	// as offset.
	broadcast string

	// fence keeps the compiler from moving the dataset load next to its
	// consumer. hack_false is always false at run time.
	fence string
}

var dialectProfiles = map[Dialect]*dialectProfile{
	CUDA: {
		preamble: `typedef unsigned int       uint32_t;
typedef unsigned long long uint64_t;
#if __CUDA_ARCH__ < 350
#define ROTL32(x,n) (((x) << (n % 32)) | ((x) >> (32 - (n % 32))))
#define ROTR32(x,n) (((x) >> (n % 32)) | ((x) << (32 - (n % 32))))
#else
#define ROTL32(x,n) __funnelshift_l((x), (x), (n))
#define ROTR32(x,n) __funnelshift_r((x), (x), (n))
#endif
#define min(a,b) ((a<b) ? a : b)
#define mul_hi(a, b) __umulhi(a, b)
#define clz(a) __clz(a)
#define popcount(a) __popc(a)

#define DEV_INLINE __device__ __forceinline__
#if (__CUDACC_VER_MAJOR__ > 8)
#define SHFL(x, y, z) __shfl_sync(0xFFFFFFFF, (x), (y), (z))
#else
#define SHFL(x, y, z) __shfl((x), (y), (z))
#endif


`,
		dagType: "typedef struct __align__(16) {uint32_t s[PROGPOW_DAG_LOADS];} dag_t;\n",
		signature: `__device__ __forceinline__ void progPowLoop(const uint32_t loop,
        uint32_t mix[PROGPOW_REGS],
        const dag_t *g_dag,
        const uint32_t c_dag[PROGPOW_CACHE_WORDS],
        const bool hack_false)
`,
		laneSetup: "const uint32_t lane_id = threadIdx.x & (PROGPOW_LANES-1);\n",
		broadcast: "offset = SHFL(mix[0], loop%PROGPOW_LANES, PROGPOW_LANES);\n",
		fence:     "if (hack_false) __threadfence_block();\n",
	},
	// min, mul_hi, clz and popcount are OpenCL C built-ins.
	OpenCL: {
		groupShare: true,
		preamble: `typedef unsigned int       uint32_t;
typedef unsigned long      uint64_t;
#define ROTL32(x, n) rotate((x), (uint32_t)(n))
#define ROTR32(x, n) rotate((x), (uint32_t)(32-n))

`,
		dagType: "typedef struct __attribute__ ((aligned (16))) {uint32_t s[PROGPOW_DAG_LOADS];} dag_t;\n",
		signature: `inline void progPowLoop(const uint32_t loop,
        volatile uint32_t mix_arg[PROGPOW_REGS],
        __global const dag_t *g_dag,
        __local const uint32_t c_dag[PROGPOW_CACHE_WORDS],
        __local uint64_t share[GROUP_SHARE],
        const bool hack_false)
`,
		localMix: true,
		laneSetup: `const uint32_t lane_id = get_local_id(0) & (PROGPOW_LANES-1);
const uint32_t group_id = get_local_id(0) / PROGPOW_LANES;
`,
		broadcast: `if(lane_id == (loop % PROGPOW_LANES))
    share[group_id] = mix[0];
barrier(CLK_LOCAL_MEM_FENCE);
offset = share[group_id];
`,
		fence: "if (hack_false) barrier(CLK_LOCAL_MEM_FENCE);\n",
	},
}

// profileFor returns the profile for d.
func profileFor(d Dialect) (*dialectProfile, error) {
	p, ok := dialectProfiles[d]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDialect, d)
	}
	return p, nil
}
