// Package progpow provides a pure-Go generator for the ProgPoW inner loop.
//
// ProgPoW is a proof-of-work algorithm designed to close the efficiency gap
// available to fixed-function ASICs. Every period the inner loop is replaced
// with a new random sequence of cache loads and math operations, derived
// deterministically from a 64-bit program seed. Miners compile that loop for
// their GPUs; validators must derive the identical sequence.
//
// This package generates the sequence and renders it as CUDA or OpenCL
// source. It does not compile or execute the kernel and it does not build
// the dataset.
//
// Example usage:
//
//	gen, err := progpow.New(progpow.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gen.Close()
//
//	src, err := gen.KernelForBlock(blockNumber, progpow.CUDA)
package progpow

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("progpow: invalid config")

	// ErrUnsupportedDialect is returned for an unknown output dialect.
	ErrUnsupportedDialect = errors.New("progpow: unsupported dialect")

	// ErrClosed is returned when a closed Generator is used.
	ErrClosed = errors.New("progpow: generator is closed")
)

// maxRegisters bounds the register count so that the number of ordered
// source pairs, (R-1)*R, fits in 32 bits.
const maxRegisters = 1 << 16

// Config holds the fixed ProgPoW parameters. All nodes must agree on every
// field; changing any of them changes the generated programs.
type Config struct {
	// Period is the number of blocks that share one program seed.
	Period uint64

	// Lanes is the number of parallel lanes that share one hash.
	// Must be a power of two.
	Lanes int

	// Registers is the number of 32-bit mix registers per lane.
	Registers int

	// DatasetLoads is the number of 32-bit words loaded from the dataset
	// per lane per loop iteration.
	DatasetLoads int

	// CacheWords is the size of the cache table in 32-bit words.
	CacheWords int

	// DatasetAccesses is the number of loop iterations per hash.
	// It is only emitted as a kernel constant.
	DatasetAccesses int

	// CacheAccesses is the number of cache loads per loop iteration.
	CacheAccesses int

	// MathOps is the number of random math steps per loop iteration.
	MathOps int

	// DatasetElements, when non-zero, is emitted as PROGPOW_DAG_ELEMENTS.
	// Hosts normally define it at kernel compile time since it depends on
	// the epoch's dataset size.
	DatasetElements uint64
}

// DefaultConfig returns the ProgPoW 0.9.2 parameters.
func DefaultConfig() Config {
	return Config{
		Period:          10,
		Lanes:           16,
		Registers:       32,
		DatasetLoads:    4,
		CacheWords:      16 * 1024 / 4,
		DatasetAccesses: 64,
		CacheAccesses:   11,
		MathOps:         18,
	}
}

// Validate checks that the configuration can be used for generation.
// Parameters used as divisors are rejected when zero.
func (c *Config) Validate() error {
	if c.Period == 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if c.Registers < 2 || c.Registers > maxRegisters {
		return fmt.Errorf("%w: register count must be in [2, %d], got %d", ErrInvalidConfig, maxRegisters, c.Registers)
	}
	if c.Lanes <= 0 || c.Lanes&(c.Lanes-1) != 0 {
		return fmt.Errorf("%w: lane count must be a power of two, got %d", ErrInvalidConfig, c.Lanes)
	}
	if c.DatasetLoads <= 0 {
		return fmt.Errorf("%w: dataset loads must be positive, got %d", ErrInvalidConfig, c.DatasetLoads)
	}
	if c.CacheWords <= 0 {
		return fmt.Errorf("%w: cache word count must be positive, got %d", ErrInvalidConfig, c.CacheWords)
	}
	if c.DatasetAccesses < 0 || c.CacheAccesses < 0 || c.MathOps < 0 {
		return fmt.Errorf("%w: access counts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SeedForBlock returns the program seed in effect for a block number.
// period must be positive.
func SeedForBlock(block, period uint64) uint64 {
	return block / period
}

// Generate renders the program for seed in the given dialect.
// It is the stateless equivalent of Generator.Kernel.
func Generate(seed uint64, dialect Dialect, cfg Config) (string, error) {
	if _, err := profileFor(dialect); err != nil {
		return "", err
	}
	p, err := NewProgram(seed, cfg)
	if err != nil {
		return "", err
	}
	return p.Render(dialect)
}

// programCacheSize is the number of recent programs a Generator retains.
// Miners typically hold the current period and prepare the next one.
const programCacheSize = 4

// Generator produces programs and kernels for one Config.
// It is safe for concurrent use.
type Generator struct {
	config   Config
	programs []*Program // oldest first
	closed   bool
	mu       sync.RWMutex // Protects closed and programs
}

// New creates a Generator for the given configuration.
func New(config Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		config:   config,
		programs: make([]*Program, 0, programCacheSize),
	}, nil
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config {
	return g.config
}

// Program returns the program for seed, generating it if it is not cached.
func (g *Generator) Program(seed uint64) (*Program, error) {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return nil, ErrClosed
	}
	i := g.indexOf(seed)
	var cached *Program
	if i >= 0 {
		cached = g.programs[i]
	}
	g.mu.RUnlock()
	if cached != nil {
		logger().Trace("ProgPoW program cache hit", "seed", seed)
		return cached, nil
	}

	// Generation is pure, so it runs outside the lock. A concurrent caller
	// may race us to the same seed; the first insert wins.
	p := generateProgram(seed, g.config)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}
	if i := g.indexOf(seed); i >= 0 {
		return g.programs[i], nil
	}
	if len(g.programs) == programCacheSize {
		logger().Trace("ProgPoW program cache evict", "seed", g.programs[0].seed)
		g.programs = slices.Delete(g.programs, 0, 1)
	}
	g.programs = append(g.programs, p)
	return p, nil
}

// indexOf returns the cache slot holding seed, or -1. Callers hold mu.
func (g *Generator) indexOf(seed uint64) int {
	return slices.IndexFunc(g.programs, func(p *Program) bool {
		return p.seed == seed
	})
}

// Kernel renders the program for seed in the given dialect.
func (g *Generator) Kernel(seed uint64, dialect Dialect) (string, error) {
	if _, err := profileFor(dialect); err != nil {
		return "", err
	}
	p, err := g.Program(seed)
	if err != nil {
		return "", err
	}
	return p.Render(dialect)
}

// KernelForBlock renders the program in effect for a block number.
func (g *Generator) KernelForBlock(block uint64, dialect Dialect) (string, error) {
	return g.Kernel(SeedForBlock(block, g.config.Period), dialect)
}

// IsReady returns true if the generator can still be used.
func (g *Generator) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.closed
}

// Close releases the cached programs.
// After Close, the generator must not be used.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	g.programs = nil
	return nil
}
