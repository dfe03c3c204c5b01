package supervise

import "sync"

// TailBuffer is a concurrency-safe writer that keeps only the last Limit bytes.
type TailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &TailBuffer{limit: limit}
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		return n, nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return n, nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
