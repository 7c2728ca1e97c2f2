package executor

import "sync"

// tailBuffer retains the last max bytes written to it. The retained window
// becomes the excerpt attached to execution errors.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) Excerpt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
