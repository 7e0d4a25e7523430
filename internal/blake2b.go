// Package internal provides the hashing primitives used by progpow.
// This package wraps golang.org/x/crypto.
package internal

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Blake2b256 computes a 256-bit Blake2b hash (32 bytes).
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Blake2bStream provides streaming Blake2b hashing.
type Blake2bStream struct {
	hasher hash.Hash
}

// NewBlake2bStream creates a new streaming Blake2b hasher.
func NewBlake2bStream(size int, key []byte) (*Blake2bStream, error) {
	hasher, err := blake2b.New(size, key)
	if err != nil {
		return nil, err
	}
	return &Blake2bStream{hasher: hasher}, nil
}

// WriteString adds s to the hash.
func (b *Blake2bStream) WriteString(s string) {
	// hash.Hash writes never fail.
	_, _ = b.hasher.Write([]byte(s))
}

// Sum256 returns the current hash value. The stream must have been created
// with size 32.
func (b *Blake2bStream) Sum256() [32]byte {
	var out [32]byte
	copy(out[:], b.hasher.Sum(nil))
	return out
}

// Reset resets the hasher to initial state.
func (b *Blake2bStream) Reset() {
	b.hasher.Reset()
}
