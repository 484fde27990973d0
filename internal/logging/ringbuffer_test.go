package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferKeepsWritesInOrder(t *testing.T) {
	rb := NewRingBuffer(64)
	_, _ = rb.Write([]byte("hello "))
	_, _ = rb.Write([]byte("world"))

	assert.Equal(t, "hello world", string(rb.Bytes()))
	assert.Equal(t, 11, rb.Len())
}

func TestRingBufferWrapsAround(t *testing.T) {
	rb := NewRingBuffer(10)
	_, _ = rb.Write([]byte("abcdefghij"))
	_, _ = rb.Write([]byte("12345"))

	assert.Equal(t, "fghij12345", string(rb.Bytes()))
}

func TestRingBufferPartialWrap(t *testing.T) {
	rb := NewRingBuffer(10)
	_, _ = rb.Write([]byte("abcdefgh"))
	n, err := rb.Write([]byte("xyz"))

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "bcdefghxyz", string(rb.Bytes()))
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(5)
	_, _ = rb.Write([]byte("0123456789"))

	assert.Equal(t, "56789", string(rb.Bytes()))
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(32)
	_, _ = rb.Write([]byte("dump me"))

	path := filepath.Join(t.TempDir(), "ring.out")
	require.NoError(t, rb.DumpToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dump me", string(data))
}
