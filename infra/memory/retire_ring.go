package memory

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// RetireRing is a lock-free SPSC ring buffer for retired objects.
// The producer is the goroutine owning the participant; the consumer is
// whoever holds the collector's reclaim flag.
type RetireRing struct {
	head atomic.Uint64
	_    cpu.CacheLinePad
	tail atomic.Uint64
	_    cpu.CacheLinePad
	buf  []retired
	mask uint64
}

func NewRetireRing(size uint64) *RetireRing {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing{
		buf:  make([]retired, size),
		mask: size - 1,
	}
}

// Enqueue adds an entry; returns false if full.
func (r *RetireRing) Enqueue(v retired) bool {
	h := r.head.Load()
	t := r.tail.Load()
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = v
	r.head.Store(h + 1)
	return true
}

// Peek returns the oldest entry without removing it.
func (r *RetireRing) Peek() (retired, bool) {
	t := r.tail.Load()
	if t == r.head.Load() {
		return retired{}, false
	}
	return r.buf[t&r.mask], true
}

// Dequeue removes the oldest entry.
func (r *RetireRing) Dequeue() (retired, bool) {
	t := r.tail.Load()
	if t == r.head.Load() {
		return retired{}, false
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = retired{}
	r.tail.Store(t + 1)
	return v, true
}

// reclaim runs every entry retired strictly before safe.
func (r *RetireRing) reclaim(safe uint64) int {
	n := 0
	for {
		v, ok := r.Peek()
		if !ok || v.epoch >= safe {
			// Not safe yet → FIFO guarantees newer ones aren't either
			return n
		}
		_, _ = r.Dequeue()
		v.run()
		n++
	}
}

func (r *RetireRing) Len() int { return int(r.head.Load() - r.tail.Load()) }
func (r *RetireRing) Cap() int { return len(r.buf) }
