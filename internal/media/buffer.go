package media

import "sync"

// Buffer holds recorded chunks in capture order with a soft byte cap that
// Compact enforces.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	total  int64
	max    int64
}

func NewBuffer(maxBytes int64) *Buffer {
	return &Buffer{max: maxBytes}
}

// Append stores a copy of chunk. Empty chunks are ignored.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.total += int64(len(c))
	b.mu.Unlock()
}

// Compact drops the oldest half of the retained chunks while the total is
// over the cap. It returns the number of chunks and bytes discarded.
func (b *Buffer) Compact() (chunks int, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return 0, 0
	}
	for b.total > b.max && len(b.chunks) > 0 {
		n := len(b.chunks) / 2
		if n == 0 {
			n = 1
		}
		dropped := sumLen(b.chunks[:n])
		chunks += n
		bytes += dropped
		b.total -= dropped
		// copy so the dropped prefix can be collected
		b.chunks = append([][]byte(nil), b.chunks[n:]...)
	}
	return chunks, bytes
}

// Drain returns the concatenated chunks and empties the buffer.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	chunks, total := b.chunks, b.total
	b.chunks, b.total = nil, 0
	b.mu.Unlock()

	if total == 0 {
		return nil
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	b.chunks, b.total = nil, 0
	b.mu.Unlock()
}

func (b *Buffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

func (b *Buffer) Cap() int64 { return b.max }

func sumLen(chunks [][]byte) int64 {
	var n int64
	for _, c := range chunks {
		n += int64(len(c))
	}
	return n
}
