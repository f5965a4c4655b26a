package container

import (
	"iter"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"lockfree/infra/memory"
)

// Stack is a lock-free LIFO stack.
type Stack[T any] struct {
	top atomic.Pointer[node[T]]
	_   cpu.CacheLinePad
	occupancy

	nodes     *memory.Pool[node[T]]
	collector *memory.Collector
}

// NewStack returns an empty stack. No node is allocated until Push.
func NewStack[T any](opts ...Option) *Stack[T] {
	o := buildOptions(opts)
	return &Stack[T]{
		nodes:     newNodePool[T](),
		collector: o.collector,
	}
}

// Push places v on top of the stack. It never fails and allocates at
// most one node regardless of contention.
func (s *Stack[T]) Push(v T) {
	n := s.nodes.Get()
	n.value = v

	g := s.collector.Pin()
	defer g.Unpin()

	var b backoff
	for {
		top := s.top.Load()
		n.next.Store(top)
		if s.top.CompareAndSwap(top, n) {
			s.inc()
			return
		}
		b.wait()
	}
}

// Pop removes and returns the most recently pushed value. ok is false
// when the stack is empty.
func (s *Stack[T]) Pop() (v T, ok bool) {
	g := s.collector.Pin()
	defer g.Unpin()

	var b backoff
	for {
		top := s.top.Load()
		if top == nil {
			return v, false
		}
		// top cannot be recycled while g is pinned, so reading its
		// next pointer is safe even if another pop unlinks it first.
		next := top.next.Load()
		if s.top.CompareAndSwap(top, next) {
			s.dec()
			v = top.take()
			g.Retire(top, s.nodes)
			return v, true
		}
		b.wait()
	}
}

// Len returns the advisory element count. It may be stale by the time
// it is observed.
func (s *Stack[T]) Len() int {
	return s.load()
}

func (s *Stack[T]) IsEmpty() bool {
	return s.Len() == 0
}

// Extend pushes every element of seq in order. The batch is not atomic;
// concurrent pops may interleave.
func (s *Stack[T]) Extend(seq iter.Seq[T]) {
	for v := range seq {
		s.Push(v)
	}
}

// Clear pops until the stack is observed empty and returns how many
// values were removed. It is a best-effort drain, not a linearizable clear.
func (s *Stack[T]) Clear() int {
	n := 0
	for {
		if _, ok := s.Pop(); !ok {
			return n
		}
		n++
	}
}

// Drain yields popped values until the stack is observed empty.
func (s *Stack[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := s.Pop()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
