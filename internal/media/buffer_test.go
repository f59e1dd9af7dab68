package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCompactDropsOldestUntilWithinCap(t *testing.T) {
	t.Parallel()

	b := NewBuffer(100)
	for i := 0; i < 10; i++ {
		b.Append(bytes.Repeat([]byte{byte(i)}, 30))
	}
	require.Equal(t, int64(300), b.Total())

	chunks, dropped := b.Compact()
	// 10 -> 5 (150 bytes) -> 3 (90 bytes)
	assert.Equal(t, 7, chunks)
	assert.Equal(t, int64(210), dropped)
	assert.LessOrEqual(t, b.Total(), b.Cap())

	data := b.Drain()
	require.Len(t, data, 90)
	assert.Equal(t, byte(7), data[0], "oldest chunks go first")
	assert.Equal(t, byte(9), data[len(data)-1])
	assert.Zero(t, b.Total())
}

func TestBufferCompactNoopUnderCap(t *testing.T) {
	t.Parallel()

	b := NewBuffer(100)
	b.Append(make([]byte, 60))
	b.Append(nil)
	chunks, dropped := b.Compact()
	assert.Zero(t, chunks)
	assert.Zero(t, dropped)
	assert.Equal(t, 1, b.Len())
}

func TestBufferCompactOversizedSingleChunk(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10)
	b.Append(make([]byte, 11))
	b.Compact()
	assert.Zero(t, b.Total())
	assert.Nil(t, b.Drain())
}

func TestBufferAppendCopies(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	src := []byte("abc")
	b.Append(src)
	src[0] = 'z'
	assert.Equal(t, []byte("abc"), b.Drain())
}
