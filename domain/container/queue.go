package container

import (
	"iter"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"lockfree/infra/memory"
)

// Queue is a lock-free FIFO queue. head always references a sentinel
// whose value has been consumed; tail references the last linked node.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	_    cpu.CacheLinePad
	tail atomic.Pointer[node[T]]
	_    cpu.CacheLinePad
	occupancy

	nodes     *memory.Pool[node[T]]
	collector *memory.Collector
}

func NewQueue[T any](opts ...Option) *Queue[T] {
	o := buildOptions(opts)
	q := &Queue[T]{
		nodes:     newNodePool[T](),
		collector: o.collector,
	}
	sentinel := new(node[T])
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends v. The push linearizes at the tail swap; the new node is
// reachable from head once the previous tail's next is published.
func (q *Queue[T]) Push(v T) {
	n := q.nodes.Get()
	n.value = v

	g := q.collector.Pin()
	defer g.Unpin()

	// prev cannot be retired before its next is set: head only moves
	// past a node through that pointer.
	prev := q.tail.Swap(n)
	prev.next.Store(n)
	q.inc()
}

// Pop removes and returns the oldest value. ok is false when the queue
// is empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	g := q.collector.Pin()
	defer g.Unpin()

	var b backoff
	for {
		head := q.head.Load()
		next := head.next.Load()
		if next == nil {
			if q.tail.Load() == head {
				return v, false
			}
			// A push has swapped tail but not linked yet.
			b.wait()
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			q.dec()
			// next is the new sentinel; its value is ours alone.
			v = next.take()
			g.Retire(head, q.nodes)
			return v, true
		}
		b.wait()
	}
}

// Len returns the advisory element count.
func (q *Queue[T]) Len() int {
	return q.load()
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Extend pushes every element of seq in order.
func (q *Queue[T]) Extend(seq iter.Seq[T]) {
	for v := range seq {
		q.Push(v)
	}
}

// Clear pops until the queue is observed empty and returns how many
// values were removed.
func (q *Queue[T]) Clear() int {
	n := 0
	for {
		if _, ok := q.Pop(); !ok {
			return n
		}
		n++
	}
}

// Drain yields popped values in FIFO order until the queue is observed
// empty.
func (q *Queue[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := q.Pop()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
