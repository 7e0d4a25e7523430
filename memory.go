package progpow

import (
	"bytes"
	"sync"
)

const (
	// Initial render buffer capacity. A default-config kernel is ~4 KB.
	renderBufferSize = 8192

	// Buffers that grew beyond this are dropped instead of pooled so one
	// oversized configuration does not pin memory.
	maxPooledBufferSize = 1 << 20
)

// Global pool for render buffer reuse to minimize allocations
var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, renderBufferSize))
	},
}

// getBuffer retrieves an empty render buffer from the pool.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a render buffer to the pool for reuse.
func putBuffer(buf *bytes.Buffer) {
	if buf != nil && buf.Cap() <= maxPooledBufferSize {
		bufferPool.Put(buf)
	}
}
