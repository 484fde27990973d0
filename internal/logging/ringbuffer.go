package logging

import (
	"os"
	"sync"
)

// RingBuffer is a fixed-capacity byte buffer that keeps the most recent
// writes. It implements io.Writer and never returns an error.
type RingBuffer struct {
	mu    sync.Mutex
	data  []byte
	start int
	n     int
}

// NewRingBuffer creates a ring buffer holding at most capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 4 * 1024 * 1024
	}
	return &RingBuffer{data: make([]byte, capacity)}
}

// Write appends p, discarding the oldest bytes once full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := len(p)
	c := len(rb.data)
	if len(p) >= c {
		copy(rb.data, p[len(p)-c:])
		rb.start, rb.n = 0, c
		return written, nil
	}

	for len(p) > 0 {
		end := (rb.start + rb.n) % c
		chunk := copy(rb.data[end:], p)
		p = p[chunk:]
		rb.n += chunk
		if rb.n > c {
			rb.start = (rb.start + rb.n - c) % c
			rb.n = c
		}
	}
	return written, nil
}

// Len reports how many bytes are currently held.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.n
}

// Bytes returns the held bytes oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.n)
	first := copy(out, rb.data[rb.start:min(rb.start+rb.n, len(rb.data))])
	copy(out[first:], rb.data[:rb.n-first])
	return out
}

// DumpToFile writes the buffer contents to path.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
