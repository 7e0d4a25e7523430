package progpow

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// TestVector is a recorded program for one seed under DefaultConfig.
// These vectors pin the engine, the scheduler and the assembler to
// recorded ProgPoW 0.9.2 output.
type TestVector struct {
	Name                string         `json:"name"`
	Seed                string         `json:"seed"`  // decimal or 0x-prefixed hex
	Draws               []uint32       `json:"draws"` // first engine outputs after seeding
	DestinationSequence []int          `json:"destination_sequence"`
	CacheSequence       []int          `json:"cache_sequence"`
	Length              int            `json:"length"`
	MathHistogram       map[string]int `json:"math_histogram"`
	Fingerprint         string         `json:"fingerprint"` // hex Blake2b-256 of the trace
}

// TestVectorSuite contains all test vectors with metadata about their source.
type TestVectorSuite struct {
	Version     string       `json:"version"`
	Description string       `json:"description"`
	Source      string       `json:"source,omitempty"`
	Vectors     []TestVector `json:"vectors"`
}

// LoadTestVectors loads test vectors from a JSON file.
// Returns an error if the file cannot be read or parsed.
//
// This is used internally for testing but exported for potential external validation tools.
func LoadTestVectors(path string) (*TestVectorSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test vectors: %w", err)
	}

	var suite TestVectorSuite
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse test vectors: %w", err)
	}

	return &suite, nil
}

// GetSeed returns the decoded program seed.
func (tv *TestVector) GetSeed() (uint64, error) {
	seed, err := strconv.ParseUint(tv.Seed, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q: %w", tv.Seed, err)
	}
	return seed, nil
}

// GetFingerprint returns the decoded expected fingerprint.
func (tv *TestVector) GetFingerprint() ([32]byte, error) {
	var fp [32]byte
	raw, err := hex.DecodeString(tv.Fingerprint)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint hex: %w", err)
	}
	if len(raw) != len(fp) {
		return fp, fmt.Errorf("fingerprint must be 32 bytes, got %d", len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// Verify generates the vector's program under DefaultConfig and checks it
// against every recorded field.
func (tv *TestVector) Verify() error {
	seed, err := tv.GetSeed()
	if err != nil {
		return err
	}
	want, err := tv.GetFingerprint()
	if err != nil {
		return err
	}

	rng := newKiss99(seed)
	for i, d := range tv.Draws {
		if got := rng.next(); got != d {
			return fmt.Errorf("draw %d = %d, want %d", i, got, d)
		}
	}

	p, err := NewProgram(seed, DefaultConfig())
	if err != nil {
		return err
	}
	if err := equalOrders("destination sequence", p.DestinationSequence(), tv.DestinationSequence); err != nil {
		return err
	}
	if err := equalOrders("cache sequence", p.CacheSequence(), tv.CacheSequence); err != nil {
		return err
	}
	if p.Len() != tv.Length {
		return fmt.Errorf("length = %d, want %d", p.Len(), tv.Length)
	}
	hist := p.MathHistogram()
	for op := MathOp(0); op < mathOpCount; op++ {
		if hist[op] != tv.MathHistogram[op.String()] {
			return fmt.Errorf("math histogram[%s] = %d, want %d", op, hist[op], tv.MathHistogram[op.String()])
		}
	}
	if got := p.Fingerprint(); got != want {
		return fmt.Errorf("fingerprint = %x, want %x", got, want)
	}
	return nil
}

func equalOrders(name string, got, want []int) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s length = %d, want %d", name, len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("%s[%d] = %d, want %d", name, i, got[i], want[i])
		}
	}
	return nil
}
