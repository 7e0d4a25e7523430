package progpow

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// debugEnabled controls whether generation tracing is enabled via PROGPOW_DEBUG env var
var debugEnabled = os.Getenv("PROGPOW_DEBUG") == "1"

// debugLogger writes traces to stderr when debugEnabled is set.
var debugLogger = newDebugLogger()

func newDebugLogger() log.Logger {
	if !debugEnabled {
		return nil
	}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelTrace, false))
}

// logger returns the logger used by the package: the debug logger when
// tracing is enabled, otherwise the host's root logger.
func logger() log.Logger {
	if debugLogger != nil {
		return debugLogger
	}
	return log.Root()
}

// traceKiss99 outputs the generator state
func traceKiss99(stage string, k *kiss99) {
	if debugEnabled {
		debugLogger.Trace(stage,
			"z", hex32(k.z), "w", hex32(k.w),
			"jsr", hex32(k.jsr), "jcong", hex32(k.jcong))
	}
}

// traceSequence outputs a register permutation
func traceSequence(name string, order []int) {
	if debugEnabled {
		debugLogger.Trace("mix sequence", "name", name, "order", fmt.Sprint(order))
	}
}

// traceInstruction outputs one assembled instruction
func traceInstruction(index int, in Instruction) {
	if debugEnabled {
		debugLogger.Trace("instruction", "index", index, "op", in.String())
	}
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
