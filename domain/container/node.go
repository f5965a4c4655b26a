package container

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"lockfree/infra/memory"
)

// node is a singly-linked cell, padded so adjacent nodes never share a
// cache line under CAS traffic.
type node[T any] struct {
	_     cpu.CacheLinePad
	next  atomic.Pointer[node[T]]
	value T
	_     cpu.CacheLinePad
}

// take moves the value out and vacates the slot. Only the goroutine whose
// CAS unlinked the node (or promoted it to sentinel) may call it.
func (n *node[T]) take() T {
	v := n.value
	var zero T
	n.value = zero
	return v
}

func (n *node[T]) reset() {
	n.next.Store(nil)
	var zero T
	n.value = zero
}

func newNodePool[T any]() *memory.Pool[node[T]] {
	return memory.NewPool(
		func() *node[T] { return new(node[T]) },
		(*node[T]).reset,
	)
}

// Container is the surface shared by Stack and Queue.
type Container[T any] interface {
	Push(v T)
	Pop() (T, bool)
	Len() int
	IsEmpty() bool
}

type options struct {
	collector *memory.Collector
}

// Option configures a container.
type Option func(*options)

// WithCollector places the container in the given reclamation domain
// instead of memory.Default().
func WithCollector(c *memory.Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}

func buildOptions(opts []Option) options {
	o := options{collector: memory.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// occupancy is an advisory element counter. It can dip below zero when a
// pop overtakes the matching push's increment, so reads clamp at zero.
type occupancy struct {
	n atomic.Int64
}

func (o *occupancy) inc() { o.n.Add(1) }
func (o *occupancy) dec() { o.n.Add(-1) }

func (o *occupancy) load() int {
	return int(max(o.n.Load(), 0))
}
