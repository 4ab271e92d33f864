package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a chunk would push the buffer past its cap
var ErrBufferFull = errors.New("audio buffer full")

// ChunkBuffer accumulates PCM chunks in capture order until flushed
type ChunkBuffer struct {
	chunks    [][]byte
	totalSize int
	maxSize   int
	mu        sync.Mutex
}

// NewChunkBuffer creates a buffer holding at most maxSize bytes
func NewChunkBuffer(maxSize int) *ChunkBuffer {
	return &ChunkBuffer{
		chunks:  make([][]byte, 0),
		maxSize: maxSize,
	}
}

// MaxSize returns the buffer cap in bytes
func (b *ChunkBuffer) MaxSize() int {
	return b.maxSize
}

// Append adds a chunk. The chunk is rejected whole with ErrBufferFull if it
// does not fit.
func (b *ChunkBuffer) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	newSize := b.totalSize + len(chunk)
	if newSize > b.maxSize {
		return ErrBufferFull
	}

	b.chunks = append(b.chunks, chunk)
	b.totalSize = newSize
	return nil
}

// Flush concatenates all chunks in order and empties the buffer. The result is
// never nil, so a recording with no chunks still yields an (empty) payload.
func (b *ChunkBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]byte, 0, b.totalSize)
	for _, chunk := range b.chunks {
		result = append(result, chunk...)
	}

	b.chunks = make([][]byte, 0)
	b.totalSize = 0

	return result
}

// Reset empties the buffer without returning data
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = make([][]byte, 0)
	b.totalSize = 0
}

// Size returns the current buffered bytes
func (b *ChunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// ChunkCount returns the number of buffered chunks
func (b *ChunkBuffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
